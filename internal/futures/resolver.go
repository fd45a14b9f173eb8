// Package futures maps generic continuous-futures tickers to the dated
// exchange-listed contracts active on a given day.
package futures

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mktdata-cli/internal/exchange"
	"github.com/sells-group/mktdata-cli/internal/model"
)

// monthCodes is the standard futures month-letter table.
var monthCodes = map[time.Month]string{
	time.January:   "F",
	time.February:  "G",
	time.March:     "H",
	time.April:     "J",
	time.May:       "K",
	time.June:      "M",
	time.July:      "N",
	time.August:    "Q",
	time.September: "U",
	time.October:   "V",
	time.November:  "X",
	time.December:  "Z",
}

// maturityField is the reference field carrying a contract's last
// tradeable date.
const maturityField = "last_tradeable_dt"

// DataAPI is the slice of the query layer the resolver needs. The
// reconcile engine implements it; resolution reuses the reference cache
// so repeated chain lookups stay off the wire.
type DataAPI interface {
	CachedReference(ctx context.Context, tickers []string, field string) ([]model.RefRow, error)
	DayBars(ctx context.Context, ticker string, date time.Time) ([]model.Bar, error)
}

// Resolver resolves generic futures tickers.
type Resolver struct {
	api DataAPI
}

// NewResolver creates a Resolver over the given query layer.
func NewResolver(api DataAPI) *Resolver {
	return &Resolver{api: api}
}

// candidate is one synthesized contract in the roll window.
type candidate struct {
	symbol   string
	maturity time.Time
}

// Resolve maps a generic ticker ("ES1 Index") to the dated contract at
// its chain offset as of a date. Failures return an empty symbol with
// the reason; callers by convention log and degrade.
func (r *Resolver) Resolve(ctx context.Context, generic string, asOf time.Time, freq string) (string, error) {
	prefix, idx, postfix, err := parseGeneric(generic)
	if err != nil {
		zap.L().Error("cannot parse generic futures ticker",
			zap.String("ticker", generic), zap.Error(err))
		return "", err
	}

	step, err := freqMonths(freq)
	if err != nil {
		zap.L().Error("unsupported roll frequency",
			zap.String("ticker", generic), zap.String("freq", freq))
		return "", err
	}

	// Commodities run longer contract cycles, so their window is wider.
	monthExt := 2
	if exchange.Asset(generic) == "Comdty" {
		monthExt = 4
	}
	window := idx + monthExt
	if window < 3 {
		window = 3
	}

	anchor := rollAnchor(asOf, step)
	symbols := make([]string, 0, window)
	for i := 0; i < window; i++ {
		m := anchor.AddDate(0, i*step, 0)
		symbols = append(symbols, contractSymbol(prefix, postfix, m))
	}

	// One retry with the last candidate dropped: far-dated contracts are
	// the ones most likely to be unlisted and poison the whole batch.
	var rows []model.RefRow
	for attempt := 0; attempt < 2; attempt++ {
		zap.L().Debug("querying futures chain", zap.Strings("symbols", symbols))
		rows, err = r.api.CachedReference(ctx, symbols, maturityField)
		if err == nil {
			break
		}
		zap.L().Error("error downloading futures contracts",
			zap.Int("attempt", attempt+1), zap.Strings("symbols", symbols), zap.Error(err))
		symbols = symbols[:len(symbols)-1]
	}
	if err != nil {
		return "", eris.Wrapf(err, "futures: chain query failed for %s", generic)
	}

	chain := make([]candidate, 0, len(rows))
	for _, row := range rows {
		matu, perr := time.Parse("2006-01-02", row.Value)
		if perr != nil {
			zap.L().Warn("unparseable maturity date",
				zap.String("ticker", row.Ticker), zap.String("value", row.Value))
			continue
		}
		if matu.After(asOf) {
			chain = append(chain, candidate{symbol: row.Ticker, maturity: matu})
		}
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].maturity.Before(chain[j].maturity) })

	if idx >= len(chain) {
		return "", eris.Errorf("futures: chain offset %d out of range for %s (%d live contracts)",
			idx, generic, len(chain))
	}
	return chain[idx].symbol, nil
}

// parseGeneric splits a generic ticker into its contract prefix, chain
// offset and asset postfix. "ES1 Index" -> ("ES", 0, "Index"). For
// single-stock futures the postfix keeps every token after the first.
func parseGeneric(generic string) (prefix string, idx int, postfix string, err error) {
	tokens := strings.Fields(generic)
	if len(tokens) < 2 {
		return "", 0, "", eris.Errorf("futures: malformed ticker %q", generic)
	}
	asset := tokens[len(tokens)-1]

	var root string
	switch asset {
	case "Index", "Curncy", "Comdty":
		root = strings.Join(tokens[:len(tokens)-1], " ")
		postfix = asset
	case "Equity":
		root = tokens[0]
		postfix = strings.Join(tokens[1:], " ")
	default:
		return "", 0, "", eris.Errorf("futures: unknown asset type for ticker %q", generic)
	}

	last := root[len(root)-1]
	if last < '1' || last > '9' {
		return "", 0, "", eris.Errorf("futures: ticker %q has no chain digit", generic)
	}
	return root[:len(root)-1], int(last - '1'), postfix, nil
}

// contractSymbol synthesizes the dated symbol for an expiry month:
// month-code letter plus two-digit year ("ES" + March 2024 -> "ESH24").
func contractSymbol(prefix, postfix string, month time.Time) string {
	return fmt.Sprintf("%s%s%02d %s", prefix, monthCodes[month.Month()], month.Year()%100, postfix)
}

// rollAnchor picks the first candidate expiry month: quarterly cycles
// snap to the quarter-end month (Mar/Jun/Sep/Dec), monthly cycles start
// in the as-of month.
func rollAnchor(asOf time.Time, step int) time.Time {
	month := asOf.Month()
	if step == 3 {
		month = time.Month((int(month)-1)/3*3 + 3)
	}
	return time.Date(asOf.Year(), month, 1, 0, 0, 0, 0, time.UTC)
}

func freqMonths(freq string) (int, error) {
	switch strings.ToUpper(freq) {
	case "M":
		return 1, nil
	case "Q":
		return 3, nil
	case "":
		return 0, eris.New("futures: missing roll frequency")
	default:
		return 0, eris.Errorf("futures: unsupported roll frequency %q", freq)
	}
}
