package diag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a non-fatal condition observed during a run.
type Kind string

const (
	KindParseFailure      Kind = "parse_failure"
	KindAlignmentMismatch Kind = "alignment_mismatch"
	KindGatewayFailure    Kind = "gateway_failure"
	KindChunkFailure      Kind = "chunk_failure"
	KindForcedTermination Kind = "forced_termination"
)

// Event is one diagnostic entry.
type Event struct {
	Kind     Kind      `json:"kind"`
	RunID    string    `json:"run_id,omitempty"`
	Chunk    string    `json:"chunk,omitempty"`
	Position int       `json:"position,omitempty"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Recorder receives diagnostic events. Implementations must be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

type ctxKey int

const (
	chunkKey ctxKey = iota
	runKey
)

// WithChunk tags events recorded under ctx with a chunk reference.
func WithChunk(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, chunkKey, ref)
}

// WithRun tags events recorded under ctx with a run ID.
func WithRun(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runKey, id)
}

// Emit fills the context tags and timestamp, then hands e to r. A nil recorder drops the event.
func Emit(ctx context.Context, r Recorder, e Event) {
	if r == nil {
		return
	}
	if e.Chunk == "" {
		if ref, ok := ctx.Value(chunkKey).(string); ok {
			e.Chunk = ref
		}
	}
	if e.RunID == "" {
		if id, ok := ctx.Value(runKey).(string); ok {
			e.RunID = id
		}
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	r.Record(ctx, e)
}

// Log writes events to a slog logger. Failed chunks log at error, everything else at warn.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Record(ctx context.Context, e Event) {
	level := slog.LevelWarn
	if e.Kind == KindGatewayFailure || e.Kind == KindChunkFailure {
		level = slog.LevelError
	}
	l.Logger.Log(ctx, level, e.Message,
		"kind", string(e.Kind),
		"run_id", e.RunID,
		"chunk", e.Chunk,
		"position", e.Position,
		"detail", e.Detail,
	)
}

// Multi fans an event out to several recorders.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, e Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, e)
		}
	}
}

// Func adapts a function to a Recorder.
type Func func(ctx context.Context, e Event)

func (f Func) Record(ctx context.Context, e Event) { f(ctx, e) }

// Collector keeps events in memory, mostly for tests and API responses.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *Collector) Record(_ context.Context, e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Count returns how many events of kind k were recorded.
func (c *Collector) Count(k Kind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}
