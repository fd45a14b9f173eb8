package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mktdata-cli/internal/model"
)

func memStore() *Store {
	return NewWithFs(afero.NewMemMapFs(), "/data")
}

func TestKeyPathDeterministic(t *testing.T) {
	k := Key{
		Ticker: "NVDA US Equity",
		Field:  "DVD_Hist_All",
		Overrides: model.Overrides{
			{Key: "DVD_Start_Dt", Value: "20180301"},
			{Key: "DVD_End_Dt", Value: "20181031"},
		},
	}
	p1, ok := k.Path("/data")
	require.True(t, ok)

	// Override order must not change the path.
	k.Overrides = model.Overrides{k.Overrides[1], k.Overrides[0]}
	p2, ok := k.Path("/data")
	require.True(t, ok)
	assert.Equal(t, p1, p2)

	assert.Equal(t, filepath.Join(
		"/data", "Equity", "NVDA_US_Equity", "DVD_Hist_All",
		"DVD_End_Dt=20181031,DVD_Start_Dt=20180301.csv",
	), p1)
}

func TestKeyPathCollisionFree(t *testing.T) {
	base := Key{Ticker: "IQ US Equity", Field: "Crncy"}
	withOvrd := base
	withOvrd.Overrides = model.Overrides{{Key: "EQY_FUND_CRNCY", Value: "JPY"}}
	dated := base
	dated.HasDate = true
	dated.Date = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	p1, _ := base.Path("/data")
	p2, _ := withOvrd.Path("/data")
	p3, _ := dated.Path("/data")

	assert.NotEqual(t, p1, p2)
	assert.NotEqual(t, p1, p3)
	assert.NotEqual(t, p2, p3)
}

func TestKeyPathDatedWithoutDate(t *testing.T) {
	k := Key{Ticker: "IQ US Equity", Field: "DVD_Hist_All", HasDate: true}
	_, ok := k.Path("/data")
	assert.False(t, ok, "dated key without a date is not cacheable")
}

func TestBarKeyPath(t *testing.T) {
	k := BarKey{
		Ticker: "ESM24 Index",
		Date:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Event:  model.EventTrade,
	}
	assert.Equal(t,
		filepath.Join("/data", "Index", "ESM24_Index", "TRADE", "2024-03-15.csv"),
		k.Path("/data"),
	)
}

func TestRefRoundTrip(t *testing.T) {
	s := memStore()
	k := Key{Ticker: "IQ US Equity", Field: "Crncy"}
	path, ok := s.Resolve(k)
	require.True(t, ok)
	assert.False(t, s.Exists(path))

	rows := []model.RefRow{{Ticker: "IQ US Equity", Field: "Crncy", Value: "USD"}}
	require.NoError(t, s.WriteRef(path, rows))
	assert.True(t, s.Exists(path))

	got, err := s.ReadRef(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestWriteOverwrites(t *testing.T) {
	s := memStore()
	k := Key{Ticker: "IQ US Equity", Field: "Crncy"}
	path, _ := s.Resolve(k)

	require.NoError(t, s.WriteRef(path, []model.RefRow{{Ticker: "IQ US Equity", Field: "Crncy", Value: "USD"}}))
	require.NoError(t, s.WriteRef(path, []model.RefRow{{Ticker: "IQ US Equity", Field: "Crncy", Value: "JPY"}}))

	got, err := s.ReadRef(path)
	require.NoError(t, err)
	require.Len(t, got, 1, "overwrite must not append")
	assert.Equal(t, "JPY", got[0].Value)
}

func TestBulkRoundTrip(t *testing.T) {
	s := memStore()
	k := Key{
		Ticker:  "NVDA US Equity",
		Field:   "DVD_Hist_All",
		HasDate: true,
		Date:    time.Date(2018, 10, 31, 0, 0, 0, 0, time.UTC),
		Ext:     "json",
	}
	path, ok := s.Resolve(k)
	require.True(t, ok)

	rows := []model.BulkRow{
		{Ticker: "NVDA US Equity", Field: "DVD_Hist_All", Name: "Ex-Date", Value: "2018-08-29", Position: 0},
		{Ticker: "NVDA US Equity", Field: "DVD_Hist_All", Name: "Dividend Amount", Value: "0.15", Position: 1},
	}
	require.NoError(t, s.WriteBulk(path, rows))

	got, err := s.ReadBulk(path)
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}

func TestBarsRoundTrip(t *testing.T) {
	s := memStore()
	k := BarKey{
		Ticker: "ESM24 Index",
		Date:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Event:  model.EventTrade,
	}
	path := s.ResolveBars(k)

	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	bars := []model.Bar{
		{Time: time.Date(2024, 3, 15, 8, 30, 0, 0, loc), Open: 5100, High: 5105.25, Low: 5099.5, Close: 5104, Volume: 1250, NumEvents: 310},
		{Time: time.Date(2024, 3, 15, 8, 31, 0, 0, loc), Open: 5104, High: 5106, Low: 5103.75, Close: 5105.5, Volume: 980, NumEvents: 244},
	}
	require.NoError(t, s.WriteBars(path, bars))

	got, err := s.ReadBars(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range bars {
		assert.True(t, bars[i].Time.Equal(got[i].Time))
		assert.Equal(t, bars[i].Close, got[i].Close)
		assert.Equal(t, bars[i].Volume, got[i].Volume)
	}
}

func TestReadMissing(t *testing.T) {
	s := memStore()
	_, err := s.ReadRef("/data/Equity/none/Crncy/ovrd=none.csv")
	assert.Error(t, err)
}
