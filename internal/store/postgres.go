package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool abstracts the pgx pool surface the store needs, so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Tests use pgxmock here.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS miss_log (
	ticker     TEXT NOT NULL,
	dt         TEXT NOT NULL,
	event      TEXT NOT NULL,
	misses     INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (ticker, dt, event)
);

CREATE TABLE IF NOT EXISTS fetch_log (
	id         UUID PRIMARY KEY,
	kind       TEXT NOT NULL,
	tickers    TEXT NOT NULL,
	fields     TEXT NOT NULL,
	row_count  INTEGER NOT NULL,
	cache_hits INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_miss_log_ticker ON miss_log(ticker);
CREATE INDEX IF NOT EXISTS idx_fetch_log_created_at ON fetch_log(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) MissCount(ctx context.Context, key MissKey) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT misses FROM miss_log WHERE ticker = $1 AND dt = $2 AND event = $3`,
		key.Ticker, missDate(key.Date), string(key.Event),
	).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: miss count %s", key.Ticker)
	}
	return n, nil
}

func (s *PostgresStore) RecordMiss(ctx context.Context, key MissKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO miss_log (ticker, dt, event, misses, updated_at) VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (ticker, dt, event) DO UPDATE SET misses = miss_log.misses + 1, updated_at = EXCLUDED.updated_at`,
		key.Ticker, missDate(key.Date), string(key.Event), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: record miss %s", key.Ticker)
}

func (s *PostgresStore) ResetMisses(ctx context.Context, ticker string) (int, error) {
	var tag pgconn.CommandTag
	var err error
	if ticker == "" {
		tag, err = s.pool.Exec(ctx, `DELETE FROM miss_log`)
	} else {
		tag, err = s.pool.Exec(ctx, `DELETE FROM miss_log WHERE ticker = $1`, ticker)
	}
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset misses")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) LogFetch(ctx context.Context, entry FetchEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fetch_log (id, kind, tickers, fields, row_count, cache_hits, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.Kind,
		strings.Join(entry.Tickers, ","), strings.Join(entry.Fields, ","),
		entry.Rows, entry.CacheHits, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: log fetch")
}

func (s *PostgresStore) GetStats(ctx context.Context, lookback time.Duration) (*Stats, error) {
	cutoff := time.Now().UTC().Add(-lookback)
	stats := &Stats{}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(row_count), 0), COALESCE(SUM(cache_hits), 0)
		 FROM fetch_log WHERE created_at >= $1`,
		cutoff,
	).Scan(&stats.Fetches, &stats.Rows, &stats.CacheHits)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch stats")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(misses), 0) FROM miss_log`,
	).Scan(&stats.OpenMisses)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: miss stats")
	}
	return stats, nil
}

var _ Store = (*PostgresStore)(nil)
