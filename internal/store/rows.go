package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/scribe/internal/sink"
)

// SheetWriter stores sheets for one run in scribe_rows, one JSONB object per row.
type SheetWriter struct {
	store *Store
	runID uuid.UUID
}

// Sheets returns a sink.Writer bound to a run.
func (s *Store) Sheets(runID uuid.UUID) *SheetWriter {
	return &SheetWriter{store: s, runID: runID}
}

func (w *SheetWriter) Write(ctx context.Context, sheet sink.Sheet) error {
	tx, err := w.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM scribe_rows WHERE run_id = $1 AND sheet = $2`, w.runID, sheet.Name); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}

	maps := sheet.Maps()
	rows := make([][]any, len(maps))
	for i, m := range maps {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal row %d: %w", i, err)
		}
		rows[i] = []any{w.runID, sheet.Name, i, data}
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"scribe_rows"},
		[]string{"run_id", "sheet", "row_index", "data"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close is a no-op; the pool belongs to the Store.
func (w *SheetWriter) Close() error { return nil }

// Rows returns the stored rows of a sheet in order.
func (s *Store) Rows(ctx context.Context, runID uuid.UUID, sheet string) ([]map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT data FROM scribe_rows WHERE run_id = $1 AND sheet = $2 ORDER BY row_index`,
		runID, sheet,
	)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var m map[string]string
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
