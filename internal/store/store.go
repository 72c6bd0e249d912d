package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS scribe_runs (
	id            UUID PRIMARY KEY,
	workflow      TEXT NOT NULL,
	status        TEXT NOT NULL,
	records       INTEGER NOT NULL DEFAULT 0,
	chunks        INTEGER NOT NULL DEFAULT 0,
	chunks_failed INTEGER NOT NULL DEFAULT 0,
	rows_written  INTEGER NOT NULL DEFAULT 0,
	diagnostics   JSONB NOT NULL DEFAULT '{}'::jsonb,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS scribe_rows (
	run_id    UUID NOT NULL REFERENCES scribe_runs(id) ON DELETE CASCADE,
	sheet     TEXT NOT NULL,
	row_index INTEGER NOT NULL,
	data      JSONB NOT NULL,
	PRIMARY KEY (run_id, sheet, row_index)
);
`

// Migrate creates the scribe tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
