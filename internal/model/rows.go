// Package model defines the typed row schemas returned by the terminal
// gateway and persisted by the cache. Query results are validated into
// these shapes at the boundary; nothing downstream deals with raw
// gateway payloads.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// RefRow is a single point-in-time reference data cell.
type RefRow struct {
	Ticker string `csv:"ticker" json:"ticker"`
	Field  string `csv:"field" json:"field"`
	Value  string `csv:"value" json:"value"`
}

// Validate checks that the row carries a usable cache identity.
func (r RefRow) Validate() error {
	if r.Ticker == "" || r.Field == "" {
		return eris.Errorf("model: reference row missing ticker/field: %+v", r)
	}
	return nil
}

// HistRow is one observation of a date-ranged historical series.
type HistRow struct {
	Date   time.Time `json:"date"`
	Ticker string    `json:"ticker"`
	Field  string    `json:"field"`
	Value  float64   `json:"value"`
}

// BulkRow is one element of a block (one-to-many) result. A single
// (ticker, field) cell expands into several rows, ordered by Position
// within the block.
type BulkRow struct {
	Ticker   string `json:"ticker"`
	Field    string `json:"field"`
	Name     string `json:"name"`
	Value    string `json:"value"`
	Position int    `json:"position"`
}

// Validate checks that the row can be grouped into a cache fragment.
func (r BulkRow) Validate() error {
	if r.Ticker == "" || r.Field == "" {
		return eris.Errorf("model: bulk row missing ticker/field: %+v", r)
	}
	return nil
}

// Bar is one OHLCV intraday bar. Time is UTC as returned by the gateway
// until the reconciler localizes it to the exchange timezone.
type Bar struct {
	Time      time.Time `csv:"time" json:"time"`
	Open      float64   `csv:"open" json:"open"`
	High      float64   `csv:"high" json:"high"`
	Low       float64   `csv:"low" json:"low"`
	Close     float64   `csv:"close" json:"close"`
	Volume    int64     `csv:"volume" json:"volume"`
	NumEvents int       `csv:"num_events" json:"num_events"`
}
