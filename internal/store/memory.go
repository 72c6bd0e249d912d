package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory keeps runs in process. It is used when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]Run
}

func NewMemory() *Memory {
	return &Memory{runs: make(map[uuid.UUID]Run)}
}

func (m *Memory) CreateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) FinishRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.runs[run.ID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.CreatedAt = existing.CreatedAt
	if run.Workflow == "" {
		run.Workflow = existing.Workflow
	}
	run.FinishedAt = &now
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id uuid.UUID) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}
