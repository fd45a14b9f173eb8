package reconcile

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mktdata-cli/internal/cache"
	"github.com/sells-group/mktdata-cli/internal/model"
	"github.com/sells-group/mktdata-cli/internal/store"
	"github.com/sells-group/mktdata-cli/internal/terminal"
)

type matrixCall struct {
	tickers []string
	fields  []string
}

type barCall struct {
	ticker     string
	start, end time.Time
}

// fakeSession returns one synthetic row per requested cell and records
// every call.
type fakeSession struct {
	refValue  string
	refCalls  []matrixCall
	bulkCalls []matrixCall
	histCalls []matrixCall
	histDates [][2]string
	bars      []model.Bar
	barCalls  []barCall
}

func (f *fakeSession) Reference(_ context.Context, tickers, fields []string, _ model.Overrides) ([]model.RefRow, error) {
	f.refCalls = append(f.refCalls, matrixCall{tickers, fields})
	var rows []model.RefRow
	for _, t := range tickers {
		for _, fl := range fields {
			rows = append(rows, model.RefRow{Ticker: t, Field: fl, Value: f.refValue})
		}
	}
	return rows, nil
}

func (f *fakeSession) Historical(_ context.Context, tickers, fields []string, _ []model.Element, _ model.Overrides, startDate, endDate string) ([]model.HistRow, error) {
	f.histCalls = append(f.histCalls, matrixCall{tickers, fields})
	f.histDates = append(f.histDates, [2]string{startDate, endDate})
	return []model.HistRow{{Ticker: tickers[0], Field: fields[0], Value: 1}}, nil
}

func (f *fakeSession) BulkReference(_ context.Context, tickers, fields []string, _ model.Overrides) ([]model.BulkRow, error) {
	f.bulkCalls = append(f.bulkCalls, matrixCall{tickers, fields})
	var rows []model.BulkRow
	for _, t := range tickers {
		for _, fl := range fields {
			for pos := 0; pos < 2; pos++ {
				rows = append(rows, model.BulkRow{
					Ticker: t, Field: fl, Name: "Member",
					Value: fmt.Sprintf("%s/%s/fresh", t, fl), Position: pos,
				})
			}
		}
	}
	return rows, nil
}

func (f *fakeSession) IntradayBars(_ context.Context, ticker string, _ model.EventType, _ int, start, end time.Time) ([]model.Bar, error) {
	f.barCalls = append(f.barCalls, barCall{ticker, start, end})
	return f.bars, nil
}

func testNow() time.Time {
	return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(ses *fakeSession) (*Engine, afero.Fs) {
	fs := afero.NewMemMapFs()
	e := New(Config{
		Provider: terminal.StaticProvider{S: ses},
		Cache:    cache.NewWithFs(fs, "/cache"),
		Store:    store.NewMemory(),
		Now:      testNow,
	})
	return e, fs
}

func countFiles(t *testing.T, fs afero.Fs) int {
	t.Helper()
	n := 0
	err := afero.Walk(fs, "/cache", func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("walk cache: %v", err)
	}
	return n
}

func TestReferencePassthrough(t *testing.T) {
	ses := &fakeSession{refValue: "42"}
	e, fs := newTestEngine(ses)

	rows, err := e.Reference(context.Background(), []string{"AAPL US Equity"}, []string{"Last_Price"}, RefOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "42", rows[0].Value)
	assert.Len(t, ses.refCalls, 1)
	assert.Zero(t, countFiles(t, fs), "passthrough must not write cache files")
}

func TestReferenceColdCacheFetchesOnceAndPersists(t *testing.T) {
	ses := &fakeSession{refValue: "7.5"}
	e, fs := newTestEngine(ses)

	rows, err := e.Reference(context.Background(), []string{"AAPL US Equity"}, []string{"Last_Price"}, RefOptions{Cache: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "7.5", rows[0].Value)
	assert.Len(t, ses.refCalls, 1, "exactly one gateway call on a cold cache")
	assert.Equal(t, 1, countFiles(t, fs), "exactly one fragment written")

	// Second identical request is served entirely from disk.
	rows, err = e.Reference(context.Background(), []string{"AAPL US Equity"}, []string{"Last_Price"}, RefOptions{Cache: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "7.5", rows[0].Value)
	assert.Len(t, ses.refCalls, 1, "no second gateway call")
	assert.Equal(t, 1, countFiles(t, fs), "re-serving must not add files")
}

func TestReferenceFetchesOnlyOutstandingTickers(t *testing.T) {
	ses := &fakeSession{refValue: "fresh"}
	e, _ := newTestEngine(ses)
	c := e.cache

	// Pre-load every field for the first ticker; only the second should
	// reach the gateway.
	for _, f := range []string{"Name", "Last_Price"} {
		path, ok := c.Resolve(cache.Key{Ticker: "AAPL US Equity", Field: f})
		require.True(t, ok)
		require.NoError(t, c.WriteRef(path, []model.RefRow{
			{Ticker: "AAPL US Equity", Field: f, Value: "cached"},
		}))
	}

	rows, err := e.Reference(context.Background(),
		[]string{"AAPL US Equity", "MSFT US Equity"},
		[]string{"Name", "Last_Price"}, RefOptions{Cache: true})
	require.NoError(t, err)
	require.Len(t, rows, 4)

	require.Len(t, ses.refCalls, 1)
	assert.Equal(t, []string{"MSFT US Equity"}, ses.refCalls[0].tickers)
	assert.Equal(t, []string{"Name", "Last_Price"}, ses.refCalls[0].fields)

	values := map[string]string{}
	for _, r := range rows {
		values[r.Ticker+"/"+r.Field] = r.Value
	}
	assert.Equal(t, "cached", values["AAPL US Equity/Name"])
	assert.Equal(t, "fresh", values["MSFT US Equity/Name"])
}

func TestReferenceOverfetchDeduplicates(t *testing.T) {
	ses := &fakeSession{refValue: "fresh"}
	e, _ := newTestEngine(ses)
	c := e.cache

	// A diagonal of cached cells leaves every ticker and every field
	// partially missing, so the fetch covers the whole matrix. The merge
	// must still yield one row per cell, preferring the fetched value.
	for _, cell := range []struct{ ticker, field string }{
		{"AAPL US Equity", "Name"},
		{"MSFT US Equity", "Last_Price"},
	} {
		path, ok := c.Resolve(cache.Key{Ticker: cell.ticker, Field: cell.field})
		require.True(t, ok)
		require.NoError(t, c.WriteRef(path, []model.RefRow{
			{Ticker: cell.ticker, Field: cell.field, Value: "cached"},
		}))
	}

	rows, err := e.Reference(context.Background(),
		[]string{"AAPL US Equity", "MSFT US Equity"},
		[]string{"Name", "Last_Price"}, RefOptions{Cache: true})
	require.NoError(t, err)
	require.Len(t, rows, 4, "one row per cell after dedup")

	require.Len(t, ses.refCalls, 1)
	assert.Len(t, ses.refCalls[0].tickers, 2)
	assert.Len(t, ses.refCalls[0].fields, 2)

	for _, r := range rows {
		assert.Equal(t, "fresh", r.Value, "%s/%s: fetched row wins the merge", r.Ticker, r.Field)
	}
}

func TestHistoricalPassthrough(t *testing.T) {
	ses := &fakeSession{}
	e, fs := newTestEngine(ses)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	_, err := e.Historical(context.Background(),
		[]string{"AAPL US Equity", "AAPL US Equity"}, []string{"Px_Last"},
		start, end, HistOptions{})
	require.NoError(t, err)

	require.Len(t, ses.histCalls, 1)
	assert.Equal(t, []string{"AAPL US Equity"}, ses.histCalls[0].tickers, "duplicate tickers dropped")
	assert.Equal(t, [2]string{"20240101", "20240131"}, ses.histDates[0])
	assert.Zero(t, countFiles(t, fs), "historical is never cached")
}

func TestBulkCachesGroupsAndReServes(t *testing.T) {
	ses := &fakeSession{}
	e, fs := newTestEngine(ses)
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	rows, err := e.Bulk(context.Background(),
		[]string{"SPX Index"}, []string{"Indx_Members"},
		BulkOptions{Cache: true, Date: date})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, ses.bulkCalls, 1)
	assert.Equal(t, 1, countFiles(t, fs), "one fragment per (ticker, field) group")

	rows, err = e.Bulk(context.Background(),
		[]string{"SPX Index"}, []string{"Indx_Members"},
		BulkOptions{Cache: true, Date: date})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, ses.bulkCalls, 1, "second call served from cache")
}

func TestBulkOverfetchedGroupStaysOut(t *testing.T) {
	ses := &fakeSession{}
	e, _ := newTestEngine(ses)
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := e.cache

	// Diagonal pre-load again: the fetch re-covers the cached cells, but
	// their fetched groups must not double up in the result.
	for _, cell := range []struct{ ticker, field string }{
		{"SPX Index", "Indx_Members"},
		{"INDU Index", "Indx_Weights"},
	} {
		path, ok := c.Resolve(cache.Key{
			Ticker: cell.ticker, Field: cell.field,
			HasDate: true, Date: date, Ext: "json",
		})
		require.True(t, ok)
		require.NoError(t, c.WriteBulk(path, []model.BulkRow{
			{Ticker: cell.ticker, Field: cell.field, Name: "Member", Value: "cached", Position: 0},
		}))
	}

	rows, err := e.Bulk(context.Background(),
		[]string{"SPX Index", "INDU Index"},
		[]string{"Indx_Members", "Indx_Weights"},
		BulkOptions{Cache: true, Date: date})
	require.NoError(t, err)

	// 2 cached singletons + 2 fresh pairs for the genuinely missing cells.
	require.Len(t, rows, 6)
	byCell := map[string][]string{}
	for _, r := range rows {
		k := r.Ticker + "/" + r.Field
		byCell[k] = append(byCell[k], r.Value)
	}
	assert.Equal(t, []string{"cached"}, byCell["SPX Index/Indx_Members"])
	assert.Equal(t, []string{"cached"}, byCell["INDU Index/Indx_Weights"])
	assert.Len(t, byCell["SPX Index/Indx_Weights"], 2)
	assert.Len(t, byCell["INDU Index/Indx_Members"], 2)
}

func TestBulkWithoutDateSkipsCache(t *testing.T) {
	ses := &fakeSession{}
	e, fs := newTestEngine(ses)

	// Zero date makes the cell non-cacheable; two calls hit the gateway
	// twice and leave nothing on disk.
	for i := 0; i < 2; i++ {
		rows, err := e.Bulk(context.Background(),
			[]string{"SPX Index"}, []string{"Indx_Members"},
			BulkOptions{Cache: true})
		require.NoError(t, err)
		require.Len(t, rows, 2)
	}
	assert.Len(t, ses.bulkCalls, 2)
	assert.Zero(t, countFiles(t, fs))
}

func TestDedupeKeepLast(t *testing.T) {
	rows := []model.RefRow{
		{Ticker: "A", Field: "F", Value: "old"},
		{Ticker: "B", Field: "F", Value: "b"},
		{Ticker: "A", Field: "F", Value: "new"},
	}
	out := dedupeKeepLast(rows)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Value)
	assert.Equal(t, "new", out[1].Value)
}

func TestOutstandingSubmatrix(t *testing.T) {
	m := newLoadedMatrix([]string{"A", "B"}, []string{"x", "y"})
	m.mark("A", "x")
	m.mark("A", "y")

	tickers, fields := m.outstanding()
	assert.Equal(t, []string{"B"}, tickers)
	assert.Equal(t, []string{"x", "y"}, fields)

	m.mark("B", "x")
	m.mark("B", "y")
	tickers, fields = m.outstanding()
	assert.Empty(t, tickers)
	assert.Empty(t, fields)
}

func TestGroupBulkPreservesOrder(t *testing.T) {
	rows := []model.BulkRow{
		{Ticker: "A", Field: "F", Position: 0},
		{Ticker: "B", Field: "F", Position: 0},
		{Ticker: "A", Field: "F", Position: 1},
	}
	groups := groupBulk(rows)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, "A", groups[0][0].Ticker)
	assert.Equal(t, "B", groups[1][0].Ticker)
}
