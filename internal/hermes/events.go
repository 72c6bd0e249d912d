package hermes

import (
	"context"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/diag"
)

const (
	SubjectRunStarted   = "swarm.scribe.run.started"
	SubjectRunCompleted = "swarm.scribe.run.completed"
	// SubjectRunRequested carries run submissions from other agents.
	SubjectRunRequested = "swarm.scribe.run.requested"
	// SubjectDiagnosticPrefix is followed by the diagnostic kind.
	SubjectDiagnosticPrefix = "swarm.scribe.diagnostic."
)

// Publisher is the part of Client the emitters need.
type Publisher interface {
	Publish(subject string, data any) error
}

// RunEvent announces the start or end of a run.
type RunEvent struct {
	RunID        string         `json:"run_id"`
	Workflow     string         `json:"workflow"`
	Status       string         `json:"status"`
	Records      int            `json:"records"`
	Chunks       int            `json:"chunks,omitempty"`
	ChunksFailed int            `json:"chunks_failed,omitempty"`
	Rows         int            `json:"rows,omitempty"`
	Diagnostics  map[string]int `json:"diagnostics,omitempty"`
	Error        string         `json:"error,omitempty"`
	At           time.Time      `json:"at"`
}

// DiagnosticSubject returns the subject a diagnostic kind is published on.
func DiagnosticSubject(k diag.Kind) string {
	return SubjectDiagnosticPrefix + string(k)
}

// Recorder publishes diagnostic events. Publish failures are logged and dropped
// so a broker outage never affects a run.
type Recorder struct {
	pub    Publisher
	logger *slog.Logger
}

func NewRecorder(pub Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{pub: pub, logger: logger}
}

func (r *Recorder) Record(_ context.Context, e diag.Event) {
	if err := r.pub.Publish(DiagnosticSubject(e.Kind), e); err != nil {
		r.logger.Warn("failed to publish diagnostic", "kind", string(e.Kind), "error", err)
	}
}

// PublishRun sends a run lifecycle event, logging rather than returning failures.
func PublishRun(pub Publisher, logger *slog.Logger, subject string, ev RunEvent) {
	if pub == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := pub.Publish(subject, ev); err != nil {
		logger.Warn("failed to publish run event", "subject", subject, "run_id", ev.RunID, "error", err)
	}
}
