package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS miss_log (
	ticker     TEXT NOT NULL,
	dt         TEXT NOT NULL,
	event      TEXT NOT NULL,
	misses     INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (ticker, dt, event)
);

CREATE TABLE IF NOT EXISTS fetch_log (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	tickers    TEXT NOT NULL,
	fields     TEXT NOT NULL,
	row_count  INTEGER NOT NULL,
	cache_hits INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_miss_log_ticker ON miss_log(ticker);
CREATE INDEX IF NOT EXISTS idx_fetch_log_created_at ON fetch_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) MissCount(ctx context.Context, key MissKey) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT misses FROM miss_log WHERE ticker = ? AND dt = ? AND event = ?`,
		key.Ticker, missDate(key.Date), string(key.Event),
	).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: miss count %s", key.Ticker)
	}
	return n, nil
}

func (s *SQLiteStore) RecordMiss(ctx context.Context, key MissKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO miss_log (ticker, dt, event, misses, updated_at) VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (ticker, dt, event) DO UPDATE SET misses = misses + 1, updated_at = excluded.updated_at`,
		key.Ticker, missDate(key.Date), string(key.Event), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: record miss %s", key.Ticker)
}

func (s *SQLiteStore) ResetMisses(ctx context.Context, ticker string) (int, error) {
	query := `DELETE FROM miss_log`
	var args []any
	if ticker != "" {
		query += ` WHERE ticker = ?`
		args = append(args, ticker)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset misses")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) LogFetch(ctx context.Context, entry FetchEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_log (id, kind, tickers, fields, row_count, cache_hits, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Kind,
		strings.Join(entry.Tickers, ","), strings.Join(entry.Fields, ","),
		entry.Rows, entry.CacheHits, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: log fetch")
}

func (s *SQLiteStore) GetStats(ctx context.Context, lookback time.Duration) (*Stats, error) {
	cutoff := time.Now().UTC().Add(-lookback)
	stats := &Stats{}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(row_count), 0), COALESCE(SUM(cache_hits), 0)
		 FROM fetch_log WHERE created_at >= ?`,
		cutoff,
	).Scan(&stats.Fetches, &stats.Rows, &stats.CacheHits)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch stats")
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(misses), 0) FROM miss_log`,
	).Scan(&stats.OpenMisses)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: miss stats")
	}
	return stats, nil
}

// missDate renders the date portion of a miss key. Miss counters apply
// per calendar day, not per instant.
func missDate(t time.Time) string {
	return t.Format("2006-01-02")
}

var _ Store = (*SQLiteStore)(nil)
