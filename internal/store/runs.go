package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is the persisted summary of one batch run.
type Run struct {
	ID           uuid.UUID      `json:"id"`
	Workflow     string         `json:"workflow"`
	Status       string         `json:"status"`
	Records      int            `json:"records"`
	Chunks       int            `json:"chunks"`
	ChunksFailed int            `json:"chunks_failed"`
	Rows         int            `json:"rows"`
	Diagnostics  map[string]int `json:"diagnostics"`
	Error        string         `json:"error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// Runs is the run bookkeeping used by the API and the workflows.
type Runs interface {
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
}

func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scribe_runs (id, workflow, status, records, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Workflow, run.Status, run.Records, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) FinishRun(ctx context.Context, run Run) error {
	diagnostics, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE scribe_runs
		SET status = $2, records = $3, chunks = $4, chunks_failed = $5, rows_written = $6,
		    diagnostics = $7, error = $8, finished_at = now()
		WHERE id = $1`,
		run.ID, run.Status, run.Records, run.Chunks, run.ChunksFailed, run.Rows, diagnostics, run.Error,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	var run Run
	var diagnostics []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, workflow, status, records, chunks, chunks_failed, rows_written,
		       diagnostics, error, created_at, finished_at
		FROM scribe_runs WHERE id = $1`, id,
	).Scan(&run.ID, &run.Workflow, &run.Status, &run.Records, &run.Chunks, &run.ChunksFailed,
		&run.Rows, &diagnostics, &run.Error, &run.CreatedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	if err := json.Unmarshal(diagnostics, &run.Diagnostics); err != nil {
		return Run{}, fmt.Errorf("decode diagnostics: %w", err)
	}
	return run, nil
}
