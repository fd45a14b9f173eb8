// Package terminal defines the contract with the market-data terminal
// gateway and implements a JSON-over-HTTP client for it. The gateway
// owns the proprietary wire protocol, session licensing, and timeouts;
// this package only shapes requests and validates responses.
package terminal

import (
	"context"
	"time"

	"github.com/sells-group/mktdata-cli/internal/model"
)

// Session is one usable terminal connection. All calls block; the
// gateway enforces its own timeouts.
type Session interface {
	// Reference fetches point-in-time reference data, one row per
	// (ticker, field) cell.
	Reference(ctx context.Context, tickers, fields []string, ovrds model.Overrides) ([]model.RefRow, error)

	// Historical fetches a date-ranged series. Dates are YYYYMMDD.
	Historical(ctx context.Context, tickers, fields []string, elms []model.Element, ovrds model.Overrides, startDate, endDate string) ([]model.HistRow, error)

	// BulkReference fetches block data, one-to-many rows per cell.
	BulkReference(ctx context.Context, tickers, fields []string, ovrds model.Overrides) ([]model.BulkRow, error)

	// IntradayBars fetches OHLCV bars, UTC-indexed.
	IntradayBars(ctx context.Context, ticker string, event model.EventType, intervalMin int, start, end time.Time) ([]model.Bar, error)
}

// Provider hands out terminal sessions. Implementations may dial fresh
// or reuse a held connection; callers obtain one per operation.
type Provider interface {
	Session(ctx context.Context) (Session, error)
}

// StaticProvider returns the same session for every call.
type StaticProvider struct {
	S Session
}

// Session implements Provider.
func (p StaticProvider) Session(context.Context) (Session, error) {
	return p.S, nil
}
