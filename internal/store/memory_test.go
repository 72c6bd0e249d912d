package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemory_RunLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id := uuid.New()

	if err := m.CreateRun(ctx, Run{ID: id, Workflow: "evaluate", Status: StatusRunning, Records: 12}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	run, err := m.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != StatusRunning || run.CreatedAt.IsZero() || run.FinishedAt != nil {
		t.Errorf("unexpected running run %+v", run)
	}

	err = m.FinishRun(ctx, Run{ID: id, Workflow: "evaluate", Status: StatusCompleted, Records: 12, Chunks: 2, Rows: 12,
		Diagnostics: map[string]int{"alignment_mismatch": 1}})
	if err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	run, _ = m.GetRun(ctx, id)
	if run.Status != StatusCompleted || run.FinishedAt == nil || run.Rows != 12 {
		t.Errorf("unexpected finished run %+v", run)
	}
	if run.Diagnostics["alignment_mismatch"] != 1 {
		t.Errorf("expected diagnostics to be kept, got %v", run.Diagnostics)
	}
}

func TestMemory_NotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetRun(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := m.FinishRun(context.Background(), Run{ID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
