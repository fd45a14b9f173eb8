package futures

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mktdata-cli/internal/exchange"
	"github.com/sells-group/mktdata-cli/internal/model"
)

// Active decides which contract a continuous series currently tracks.
// Given a generic root ("ESA Index") and a date it resolves the two
// nearest chain generics; when the as-of month precedes the front
// contract's maturity month the front is active outright, otherwise the
// more liquid of the two wins on summed intraday volume.
func (r *Resolver) Active(ctx context.Context, ticker string, asOf time.Time) (string, error) {
	tokens := strings.Fields(ticker)
	if len(tokens) < 2 {
		return "", eris.Errorf("futures: malformed ticker %q", ticker)
	}
	asset := tokens[len(tokens)-1]
	root := strings.Join(tokens[:len(tokens)-1], "")
	if len(root) < 2 {
		return "", eris.Errorf("futures: malformed ticker %q", ticker)
	}
	// Strip the continuation marker to rebuild chain generics.
	base := root[:len(root)-1]
	front := base + "1 " + asset
	second := base + "2 " + asset

	info, ok := exchange.MarketInfo(front)
	if !ok {
		return "", eris.Errorf("futures: no market info for %s", front)
	}

	fut2, err := r.Resolve(ctx, second, asOf, info.Freq)
	if err != nil {
		return "", err
	}
	fut1, err := r.Resolve(ctx, front, asOf, info.Freq)
	if err != nil {
		return "", err
	}

	rows, err := r.api.CachedReference(ctx, []string{fut1, fut2}, "Last_Tradeable_Dt")
	if err != nil {
		return "", eris.Wrap(err, "futures: maturity lookup")
	}
	var frontMaturity time.Time
	for _, row := range rows {
		if row.Ticker == fut1 {
			frontMaturity, err = time.Parse("2006-01-02", row.Value)
			if err != nil {
				return "", eris.Wrapf(err, "futures: bad maturity for %s", fut1)
			}
		}
	}
	if frontMaturity.IsZero() {
		return "", eris.Errorf("futures: no maturity for %s", fut1)
	}

	// Outside the roll window the front contract is active; skip the
	// volume comparison entirely.
	if asOf.Month() < frontMaturity.Month() {
		return fut1, nil
	}

	d1, err := r.api.DayBars(ctx, front, asOf)
	if err != nil {
		return "", err
	}
	d2, err := r.api.DayBars(ctx, second, asOf)
	if err != nil {
		return "", err
	}

	v1, v2 := sumVolume(d1), sumVolume(d2)
	zap.L().Debug("roll-window volume comparison",
		zap.String("front", fut1), zap.Int64("front_volume", v1),
		zap.String("second", fut2), zap.Int64("second_volume", v2))
	if v1 > v2 {
		return fut1, nil
	}
	return fut2, nil
}

func sumVolume(bars []model.Bar) int64 {
	var total int64
	for _, b := range bars {
		total += b.Volume
	}
	return total
}
