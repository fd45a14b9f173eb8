package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mktdata-cli/internal/cache"
	"github.com/sells-group/mktdata-cli/internal/exchange"
	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/store"
)

// BarOptions controls an intraday bar lookup.
type BarOptions struct {
	Event   model.EventType // defaults to TRADE
	Batch   bool            // unattended mode: skip incomplete days quietly
	Session string          // optional session filter for Intraday
}

// Bars fetches one day of intraday bars for a single ticker, serving
// from cache when the fragment exists. Domain-level failures (unknown
// asset class, missing market metadata, unresolvable futures generic,
// suppressed misses) degrade to an empty result.
func (e *Engine) Bars(ctx context.Context, ticker string, date time.Time, opts BarOptions) ([]model.Bar, error) {
	event := opts.Event
	if event == "" {
		event = model.EventTrade
	}
	if !event.Valid() {
		zap.L().Error("unknown event type", zap.String("event", string(event)))
		return nil, nil
	}

	// Freshness guard: a day this recent has an incomplete session;
	// unattended runs skip it rather than cache partial data.
	yesterday := civil(e.now()).AddDate(0, 0, -1)
	if opts.Batch && !civil(date).Before(yesterday) {
		zap.L().Warn("date too close to now for batch download, skipping",
			zap.String("ticker", ticker), zap.String("date", date.Format("2006-01-02")))
		return nil, nil
	}

	path := e.cache.ResolveBars(cache.BarKey{Ticker: ticker, Date: date, Event: event})
	if e.cache.Exists(path) {
		if opts.Batch {
			return nil, nil
		}
		zap.L().Info("reading bars from cache", zap.String("path", path))
		bars, err := e.cache.ReadBars(path)
		if err != nil {
			zap.L().Warn("unreadable bar fragment", zap.String("path", path), zap.Error(err))
			return nil, nil
		}
		return bars, nil
	}

	switch exchange.Asset(ticker) {
	case "Equity", "Curncy", "Index", "Comdty":
	default:
		zap.L().Error("unknown asset type", zap.String("ticker", ticker))
		return nil, nil
	}

	info, ok := exchange.MarketInfo(ticker)
	if !ok {
		zap.L().Warn("cannot find market info", zap.String("ticker", ticker))
		return nil, nil
	}

	start, end, err := exchange.DayWindow(info.Hours, date)
	if err != nil {
		zap.L().Warn("cannot build session window",
			zap.String("ticker", ticker), zap.Error(err))
		return nil, nil
	}

	qTicker := ticker
	if info.IsFutures {
		if info.Freq == "" {
			zap.L().Error("missing roll frequency", zap.String("ticker", ticker))
			return nil, nil
		}
		if e.resolver == nil {
			zap.L().Error("no futures resolver configured", zap.String("ticker", ticker))
			return nil, nil
		}
		qTicker, err = e.resolver.Resolve(ctx, ticker, date, info.Freq)
		if err != nil || qTicker == "" {
			zap.L().Error("cannot find futures ticker",
				zap.String("ticker", ticker), zap.Error(err))
			return nil, nil
		}
	}

	missKey := store.MissKey{Ticker: ticker, Date: date, Event: event}
	misses, err := e.store.MissCount(ctx, missKey)
	if err != nil {
		zap.L().Warn("miss counter unavailable", zap.Error(err))
	}
	if misses >= 2 {
		if !opts.Batch {
			zap.L().Info("suppressing fetch after repeated empty results",
				zap.String("ticker", ticker), zap.Int("misses", misses))
		}
		return nil, nil
	}

	ses, err := e.provider.Session(ctx)
	if err != nil {
		return nil, err
	}

	zap.L().Info("loading bars",
		zap.String("ticker", qTicker),
		zap.String("date", date.Format("2006-01-02")),
		zap.String("event", string(event)))
	bars, err := ses.IntradayBars(ctx, qTicker, event, 1, start, end)
	if err != nil {
		return nil, err
	}
	e.audit("bars", []string{qTicker}, []string{string(event)}, len(bars), 0)

	if len(bars) == 0 {
		zap.L().Warn("no bars returned",
			zap.String("ticker", qTicker), zap.String("date", date.Format("2006-01-02")))
		if err := e.store.RecordMiss(ctx, missKey); err != nil {
			zap.L().Warn("cannot record miss", zap.Error(err))
		}
		return nil, nil
	}

	// Gateway timestamps are UTC; persist in exchange-local time.
	loc, err := info.Hours.Location()
	if err != nil {
		zap.L().Warn("cannot load exchange timezone", zap.Error(err))
		return nil, nil
	}
	for i := range bars {
		bars[i].Time = bars[i].Time.In(loc)
	}

	if err := e.cache.WriteBars(path, bars); err != nil {
		zap.L().Warn("failed to persist bars", zap.String("path", path), zap.Error(err))
	}
	return bars, nil
}

// Intraday fetches bars and filters them to a session spec ("day",
// "am_open_30", "allday_exact_0930_1000"). An unknown spec returns the
// full day.
func (e *Engine) Intraday(ctx context.Context, ticker string, date time.Time, opts BarOptions) ([]model.Bar, error) {
	bars, err := e.Bars(ctx, ticker, date, opts)
	if err != nil || len(bars) == 0 || opts.Session == "" {
		return bars, err
	}

	info, ok := exchange.MarketInfo(ticker)
	if !ok {
		return bars, nil
	}
	sess, ok := exchange.ResolveSession(info.Hours, opts.Session)
	if !ok {
		zap.L().Warn("unknown session spec", zap.String("session", opts.Session))
		return bars, nil
	}

	out := bars[:0:0]
	for _, b := range bars {
		if withinSession(b.Time, sess) {
			out = append(out, b)
		}
	}
	return out, nil
}

// withinSession checks a bar's wall-clock time against session bounds,
// inclusive. Overnight sessions (end before start) wrap midnight.
func withinSession(t time.Time, sess exchange.Session) bool {
	hhmm := t.Format("15:04")
	if sess.Start <= sess.End {
		return hhmm >= sess.Start && hhmm <= sess.End
	}
	return hhmm >= sess.Start || hhmm <= sess.End
}

// civil truncates a timestamp to its calendar date.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
