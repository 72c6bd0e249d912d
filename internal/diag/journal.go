package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal is the on-disk diagnostic log for one run. It records every event and a
// per-kind tally, and is written once when the run finishes.
type Journal struct {
	mu sync.Mutex

	RunID      string       `json:"run_id"`
	Workflow   string       `json:"workflow"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Records    int          `json:"records"`
	Chunks     int          `json:"chunks"`
	ChunksOK   int          `json:"chunks_ok"`
	Counts     map[Kind]int `json:"counts"`
	Events     []Event      `json:"events"`

	path string // not serialized
}

// NewJournal starts a journal that Save writes to path. An empty path keeps it in memory only.
func NewJournal(path, runID, workflow string) *Journal {
	return &Journal{
		RunID:     runID,
		Workflow:  workflow,
		StartedAt: time.Now().UTC(),
		Counts:    make(map[Kind]int),
		path:      expandHome(path),
	}
}

func (j *Journal) Record(_ context.Context, e Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Events = append(j.Events, e)
	j.Counts[e.Kind]++
}

// SetTotals stores the run-level counters shown in the summary.
func (j *Journal) SetTotals(records, chunks, chunksOK int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Records = records
	j.Chunks = chunks
	j.ChunksOK = chunksOK
}

// Count returns the number of events of kind k.
func (j *Journal) Count(k Kind) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Counts[k]
}

// Tally returns a copy of the per-kind counts keyed by kind name.
func (j *Journal) Tally() map[string]int {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]int, len(j.Counts))
	for k, n := range j.Counts {
		out[string(k)] = n
	}
	return out
}

// Path returns where Save writes, after ~ expansion.
func (j *Journal) Path() string {
	return j.path
}

// Save stamps the finish time and persists the journal as indented JSON.
func (j *Journal) Save() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.FinishedAt = time.Now().UTC()

	if j.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	return os.WriteFile(j.path, data, 0o644)
}

// LoadJournal reads a journal written by Save.
func LoadJournal(path string) (*Journal, error) {
	p := expandHome(path)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	var j Journal
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse journal: %w", err)
	}
	if j.Counts == nil {
		j.Counts = make(map[Kind]int)
	}
	j.path = p
	return &j, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
