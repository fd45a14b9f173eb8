// Package store persists the miss log (consecutive empty-result counters
// for intraday queries) and an audit log of upstream fetches. Two
// backends: SQLite for single-user installs, Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/sells-group/mktdata-cli/internal/model"
)

// MissKey identifies one intraday lookup for miss tracking.
type MissKey struct {
	Ticker string
	Date   time.Time
	Event  model.EventType
}

// FetchEntry is one audited upstream call.
type FetchEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // ref, hist, bulk, bars
	Tickers   []string  `json:"tickers"`
	Fields    []string  `json:"fields"`
	Rows      int       `json:"rows"`
	CacheHits int       `json:"cache_hits"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes fetch activity within a lookback window.
type Stats struct {
	Fetches    int `json:"fetches"`
	Rows       int `json:"rows"`
	CacheHits  int `json:"cache_hits"`
	OpenMisses int `json:"open_misses"`
}

// Store is the persistence interface for miss tracking and fetch audit.
type Store interface {
	// MissCount returns the consecutive empty-result count for key.
	MissCount(ctx context.Context, key MissKey) (int, error)
	// RecordMiss increments the counter for key.
	RecordMiss(ctx context.Context, key MissKey) error
	// ResetMisses clears counters for a ticker (all tickers when empty)
	// and returns the number of cleared entries. Miss suppression is
	// lifted only by this external reset.
	ResetMisses(ctx context.Context, ticker string) (int, error)

	// LogFetch records one upstream call.
	LogFetch(ctx context.Context, entry FetchEntry) error
	// GetStats summarizes activity since now minus lookback.
	GetStats(ctx context.Context, lookback time.Duration) (*Stats, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
