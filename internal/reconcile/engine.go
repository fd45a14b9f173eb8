// Package reconcile implements the query layer over the terminal
// gateway: it decides per (ticker, field, date) cell what is already
// cached on disk versus what must be fetched, merges the two, and
// persists fresh results. All operations are synchronous and degrade to
// empty results on domain-level failures.
package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mktdata-cli/internal/cache"
	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/store"
	"github.com/sells-group/mktdata-cli/internal/terminal"
)

// ContractResolver maps a generic futures ticker to the dated contract
// active on a given day.
type ContractResolver interface {
	Resolve(ctx context.Context, generic string, asOf time.Time, freq string) (string, error)
}

// Config wires an Engine.
type Config struct {
	Provider terminal.Provider
	Cache    *cache.Store
	Store    store.Store      // optional; defaults to in-memory
	Now      func() time.Time // optional; tests override
}

// Engine reconciles requested data against the cache and the terminal.
type Engine struct {
	provider terminal.Provider
	cache    *cache.Store
	store    store.Store
	resolver ContractResolver
	now      func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Store == nil {
		cfg.Store = store.NewMemory()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		store:    cfg.Store,
		now:      cfg.Now,
	}
}

// SetResolver installs the futures resolver. Set after construction
// because the resolver itself queries through the engine.
func (e *Engine) SetResolver(r ContractResolver) { e.resolver = r }

// RefOptions controls a reference lookup.
type RefOptions struct {
	Cache     bool
	HasDate   bool
	Date      time.Time
	Overrides model.Overrides
}

// Reference performs a point-in-time reference lookup across
// tickers x fields. With caching enabled, cells already on disk are
// served locally and only the outstanding submatrix is fetched; fresh
// rows are persisted one-by-one and the merged result is de-duplicated
// by (ticker, field) keeping the freshest row.
func (e *Engine) Reference(ctx context.Context, tickers, fields []string, opts RefOptions) ([]model.RefRow, error) {
	ses, err := e.provider.Session(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: session")
	}

	if !opts.Cache {
		zap.L().Info("loading reference data",
			zap.Strings("tickers", tickers), zap.Strings("fields", fields))
		rows, err := ses.Reference(ctx, tickers, fields, opts.Overrides)
		if err != nil {
			return nil, err
		}
		e.audit("ref", tickers, fields, len(rows), 0)
		return rows, nil
	}

	matrix := newLoadedMatrix(tickers, fields)
	var cached []model.RefRow
	for _, t := range tickers {
		for _, f := range fields {
			path, ok := e.cache.Resolve(e.refKey(t, f, opts))
			if !ok || !e.cache.Exists(path) {
				continue
			}
			rows, err := e.cache.ReadRef(path)
			if err != nil {
				// Unreadable fragment: refetch the cell instead.
				zap.L().Warn("skipping unreadable cache fragment",
					zap.String("path", path), zap.Error(err))
				continue
			}
			cached = append(cached, rows...)
			matrix.mark(t, f)
		}
	}

	outTickers, outFields := matrix.outstanding()
	var fresh []model.RefRow
	if len(outTickers) > 0 && len(outFields) > 0 {
		zap.L().Info("loading reference data",
			zap.Strings("tickers", outTickers), zap.Strings("fields", outFields))
		fresh, err = ses.Reference(ctx, outTickers, outFields, opts.Overrides)
		if err != nil {
			return nil, err
		}
		e.audit("ref", outTickers, outFields, len(fresh), len(cached))

		for _, row := range fresh {
			path, ok := e.cache.Resolve(e.refKey(row.Ticker, row.Field, opts))
			if !ok {
				continue
			}
			if err := e.cache.WriteRef(path, []model.RefRow{row}); err != nil {
				zap.L().Warn("failed to persist reference row",
					zap.String("path", path), zap.Error(err))
			}
		}
	}

	return dedupeKeepLast(append(cached, fresh...)), nil
}

func (e *Engine) refKey(ticker, field string, opts RefOptions) cache.Key {
	return cache.Key{
		Ticker:    ticker,
		Field:     field,
		HasDate:   opts.HasDate,
		Date:      opts.Date,
		Overrides: opts.Overrides,
	}
}

// HistOptions controls a historical lookup.
type HistOptions struct {
	Elements  []model.Element
	Overrides model.Overrides
}

// Historical performs a date-ranged lookup. Pure pass-through: no
// caching layer, date bounds canonicalized to YYYYMMDD.
func (e *Engine) Historical(ctx context.Context, tickers, fields []string, start, end time.Time, opts HistOptions) ([]model.HistRow, error) {
	ses, err := e.provider.Session(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: session")
	}

	tickers = unique(tickers)
	fields = unique(fields)
	zap.L().Info("loading historical data",
		zap.Strings("tickers", tickers), zap.Strings("fields", fields))

	rows, err := ses.Historical(ctx, tickers, fields, opts.Elements, opts.Overrides,
		start.Format("20060102"), end.Format("20060102"))
	if err != nil {
		return nil, err
	}
	e.audit("hist", tickers, fields, len(rows), 0)
	return rows, nil
}

// BulkOptions controls a block lookup. Caching requires Date: cells
// without one are fetched every call.
type BulkOptions struct {
	Cache     bool
	Date      time.Time
	Overrides model.Overrides
}

// Bulk performs a block (one-to-many) lookup. Fetched rows are grouped
// by (ticker, field); each group is persisted as one fragment, and a
// group joins the result only when its cell had not already contributed
// cached rows.
func (e *Engine) Bulk(ctx context.Context, tickers, fields []string, opts BulkOptions) ([]model.BulkRow, error) {
	ses, err := e.provider.Session(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: session")
	}

	tickers = unique(tickers)
	fields = unique(fields)

	if !opts.Cache {
		zap.L().Info("loading block data",
			zap.Strings("tickers", tickers), zap.Strings("fields", fields))
		rows, err := ses.BulkReference(ctx, tickers, fields, opts.Overrides)
		if err != nil {
			return nil, err
		}
		e.audit("bulk", tickers, fields, len(rows), 0)
		return rows, nil
	}

	matrix := newLoadedMatrix(tickers, fields)
	var result []model.BulkRow
	for _, t := range tickers {
		for _, f := range fields {
			path, ok := e.cache.Resolve(e.bulkKey(t, f, opts))
			if !ok || !e.cache.Exists(path) {
				continue
			}
			rows, err := e.cache.ReadBulk(path)
			if err != nil {
				zap.L().Warn("skipping unreadable cache fragment",
					zap.String("path", path), zap.Error(err))
				continue
			}
			result = append(result, rows...)
			matrix.mark(t, f)
		}
	}

	outTickers, outFields := matrix.outstanding()
	if len(outTickers) > 0 && len(outFields) > 0 {
		zap.L().Info("loading block data",
			zap.Strings("tickers", outTickers), zap.Strings("fields", outFields))
		fresh, err := ses.BulkReference(ctx, outTickers, outFields, opts.Overrides)
		if err != nil {
			return nil, err
		}
		e.audit("bulk", outTickers, outFields, len(fresh), len(result))

		for _, grp := range groupBulk(fresh) {
			t, f := grp[0].Ticker, grp[0].Field
			if path, ok := e.cache.Resolve(e.bulkKey(t, f, opts)); ok {
				if err := e.cache.WriteBulk(path, grp); err != nil {
					zap.L().Warn("failed to persist block group",
						zap.String("path", path), zap.Error(err))
				}
			}
			// Over-fetched groups for cells served from cache stay out
			// of the result to avoid duplicate inclusion.
			if matrix.has(t, f) && !matrix.isLoaded(t, f) {
				result = append(result, grp...)
			}
		}
	}

	return result, nil
}

func (e *Engine) bulkKey(ticker, field string, opts BulkOptions) cache.Key {
	return cache.Key{
		Ticker:    ticker,
		Field:     field,
		HasDate:   true,
		Date:      opts.Date,
		Ext:       "json",
		Overrides: opts.Overrides,
	}
}

// CachedReference is the cached single-field lookup the futures
// resolver depends on.
func (e *Engine) CachedReference(ctx context.Context, tickers []string, field string) ([]model.RefRow, error) {
	return e.Reference(ctx, tickers, []string{field}, RefOptions{Cache: true})
}

// DayBars fetches trade bars for one day, for contract-liquidity
// comparison.
func (e *Engine) DayBars(ctx context.Context, ticker string, date time.Time) ([]model.Bar, error) {
	return e.Bars(ctx, ticker, date, BarOptions{})
}

func (e *Engine) audit(kind string, tickers, fields []string, rows, cacheHits int) {
	err := e.store.LogFetch(context.Background(), store.FetchEntry{
		Kind:      kind,
		Tickers:   tickers,
		Fields:    fields,
		Rows:      rows,
		CacheHits: cacheHits,
	})
	if err != nil {
		zap.L().Warn("failed to audit fetch", zap.String("kind", kind), zap.Error(err))
	}
}

// dedupeKeepLast keeps one row per (ticker, field), preferring the
// later occurrence, ordered by the position of the kept row.
func dedupeKeepLast(rows []model.RefRow) []model.RefRow {
	seen := make(map[cellKey]bool, len(rows))
	out := make([]model.RefRow, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		k := cellKey{rows[i].Ticker, rows[i].Field}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, rows[i])
	}
	// Restore forward order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// groupBulk splits rows into per-(ticker, field) groups, preserving the
// order groups first appear.
func groupBulk(rows []model.BulkRow) [][]model.BulkRow {
	idx := make(map[cellKey]int)
	var groups [][]model.BulkRow
	for _, r := range rows {
		k := cellKey{r.Ticker, r.Field}
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
