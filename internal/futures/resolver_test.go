package futures

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mktdata-cli/internal/model"
)

// fakeAPI scripts CachedReference and DayBars responses and records the
// calls made against it.
type fakeAPI struct {
	maturities map[string]string // symbol -> maturity date
	failures   int               // fail this many reference calls first
	refCalls   [][]string
	barVolumes map[string]int64 // ticker -> per-bar volume
	barCalls   []string
}

func (f *fakeAPI) CachedReference(_ context.Context, tickers []string, _ string) ([]model.RefRow, error) {
	f.refCalls = append(f.refCalls, tickers)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("gateway rejected batch")
	}
	var rows []model.RefRow
	for _, t := range tickers {
		if matu, ok := f.maturities[t]; ok {
			rows = append(rows, model.RefRow{Ticker: t, Field: "last_tradeable_dt", Value: matu})
		}
	}
	return rows, nil
}

func (f *fakeAPI) DayBars(_ context.Context, ticker string, _ time.Time) ([]model.Bar, error) {
	f.barCalls = append(f.barCalls, ticker)
	return []model.Bar{{Volume: f.barVolumes[ticker]}, {Volume: f.barVolumes[ticker]}}, nil
}

func asOf() time.Time {
	return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
}

func TestResolveSkipsExpiredFrontContract(t *testing.T) {
	// Front quarterly contract matures on the as-of date itself; it must
	// be filtered out and the next contract selected.
	api := &fakeAPI{maturities: map[string]string{
		"ESH24 Index": "2024-03-15",
		"ESM24 Index": "2024-06-21",
		"ESU24 Index": "2024-09-20",
	}}
	r := NewResolver(api)

	symbol, err := r.Resolve(context.Background(), "ES1 Index", asOf(), "Q")
	require.NoError(t, err)
	assert.Equal(t, "ESM24 Index", symbol)

	require.Len(t, api.refCalls, 1)
	assert.Equal(t, []string{"ESH24 Index", "ESM24 Index", "ESU24 Index"}, api.refCalls[0])
}

func TestResolveChainOffset(t *testing.T) {
	api := &fakeAPI{maturities: map[string]string{
		"ESH24 Index": "2024-03-15",
		"ESM24 Index": "2024-06-21",
		"ESU24 Index": "2024-09-20",
	}}
	r := NewResolver(api)

	// ES2 asks for the second live contract.
	symbol, err := r.Resolve(context.Background(), "ES2 Index", asOf(), "Q")
	require.NoError(t, err)
	assert.Equal(t, "ESU24 Index", symbol)
}

func TestResolveCommodityWindow(t *testing.T) {
	api := &fakeAPI{maturities: map[string]string{
		"CLJ24 Comdty": "2024-03-20",
		"CLK24 Comdty": "2024-04-22",
		"CLM24 Comdty": "2024-05-21",
		"CLN24 Comdty": "2024-06-20",
	}}
	r := NewResolver(api)

	symbol, err := r.Resolve(context.Background(), "CL1 Comdty", asOf(), "M")
	require.NoError(t, err)
	assert.Equal(t, "CLJ24 Comdty", symbol)

	// Commodities widen the window to 4 months: Mar through Jun.
	require.Len(t, api.refCalls, 1)
	assert.Equal(t, []string{"CLH24 Comdty", "CLJ24 Comdty", "CLK24 Comdty", "CLM24 Comdty"}, api.refCalls[0])
}

func TestResolveRetryDropsLastCandidate(t *testing.T) {
	api := &fakeAPI{
		failures: 1,
		maturities: map[string]string{
			"ESH24 Index": "2024-03-22",
			"ESM24 Index": "2024-06-21",
		},
	}
	r := NewResolver(api)

	symbol, err := r.Resolve(context.Background(), "ES1 Index", asOf(), "Q")
	require.NoError(t, err)
	assert.Equal(t, "ESH24 Index", symbol)

	require.Len(t, api.refCalls, 2, "exactly one retry")
	assert.Len(t, api.refCalls[0], 3)
	assert.Len(t, api.refCalls[1], 2, "retry drops the last candidate")
}

func TestResolveFailsAfterTwoAttempts(t *testing.T) {
	api := &fakeAPI{failures: 5}
	r := NewResolver(api)

	symbol, err := r.Resolve(context.Background(), "ES1 Index", asOf(), "Q")
	assert.Error(t, err)
	assert.Empty(t, symbol)
	assert.Len(t, api.refCalls, 2, "at most two upstream calls")
}

func TestResolveUnknownAsset(t *testing.T) {
	api := &fakeAPI{}
	r := NewResolver(api)

	symbol, err := r.Resolve(context.Background(), "XY1 Muni", asOf(), "Q")
	assert.Error(t, err)
	assert.Empty(t, symbol)
	assert.Empty(t, api.refCalls, "no upstream call for unknown asset class")
}

func TestResolveMissingFrequency(t *testing.T) {
	api := &fakeAPI{}
	r := NewResolver(api)

	symbol, err := r.Resolve(context.Background(), "ES1 Index", asOf(), "")
	assert.Error(t, err)
	assert.Empty(t, symbol)
}

func TestResolveOffsetBeyondChain(t *testing.T) {
	// Only one live contract but ES2 wants the second: explicit error.
	api := &fakeAPI{maturities: map[string]string{
		"ESH24 Index": "2024-03-22",
	}}
	r := NewResolver(api)

	symbol, err := r.Resolve(context.Background(), "ES2 Index", asOf(), "Q")
	assert.Error(t, err)
	assert.Empty(t, symbol)
}

func TestParseGeneric(t *testing.T) {
	tests := []struct {
		ticker  string
		prefix  string
		idx     int
		postfix string
		wantErr bool
	}{
		{"ES1 Index", "ES", 0, "Index", false},
		{"ES2 Index", "ES", 1, "Index", false},
		{"CL1 Comdty", "CL", 0, "Comdty", false},
		{"UC1 Curncy", "UC", 0, "Curncy", false},
		{"XYZ1 US Equity", "XYZ", 0, "US Equity", false},
		{"ESA Index", "", 0, "", true}, // no chain digit
		{"ES1 Muni", "", 0, "", true},  // unknown asset
		{"Solo", "", 0, "", true},
	}
	for _, tt := range tests {
		prefix, idx, postfix, err := parseGeneric(tt.ticker)
		if tt.wantErr {
			assert.Error(t, err, tt.ticker)
			continue
		}
		require.NoError(t, err, tt.ticker)
		assert.Equal(t, tt.prefix, prefix, tt.ticker)
		assert.Equal(t, tt.idx, idx, tt.ticker)
		assert.Equal(t, tt.postfix, postfix, tt.ticker)
	}
}

func TestContractSymbol(t *testing.T) {
	assert.Equal(t, "ESH24 Index",
		contractSymbol("ES", "Index", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "CLZ99 Comdty",
		contractSymbol("CL", "Comdty", time.Date(1999, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRollAnchorQuarterly(t *testing.T) {
	anchor := rollAnchor(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, time.March, anchor.Month(), "quarterly cycles snap to quarter end")

	anchor = rollAnchor(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), 3)
	assert.Equal(t, time.December, anchor.Month())

	anchor = rollAnchor(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, time.February, anchor.Month())
}
