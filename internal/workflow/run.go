// Package workflow glues the record source, partitioner, dispatcher and result
// sink into the two batch workflows: evaluate and reflect.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/align"
	"github.com/MikeSquared-Agency/scribe/internal/chunk"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/conversation"
	"github.com/MikeSquared-Agency/scribe/internal/diag"
	"github.com/MikeSquared-Agency/scribe/internal/dispatch"
	"github.com/MikeSquared-Agency/scribe/internal/gateway"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/prompt"
	"github.com/MikeSquared-Agency/scribe/internal/record"
	"github.com/MikeSquared-Agency/scribe/internal/report"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
	"github.com/MikeSquared-Agency/scribe/internal/sink"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

// Workflow names a per-chunk function.
type Workflow string

const (
	WorkflowEvaluate Workflow = "evaluate"
	WorkflowReflect  Workflow = "reflect"
)

// ParseWorkflow maps a command or API value to a Workflow.
func ParseWorkflow(s string) (Workflow, error) {
	switch w := Workflow(strings.ToLower(strings.TrimSpace(s))); w {
	case WorkflowEvaluate, WorkflowReflect:
		return w, nil
	default:
		return "", fmt.Errorf("%w: unknown workflow %q (supported: evaluate, reflect)", config.ErrInvalid, s)
	}
}

// OutputFunc opens the result sink for one run.
type OutputFunc func(runID uuid.UUID) (sink.Writer, error)

// Runner holds everything a run needs. Runs, Events and Recorder are optional.
type Runner struct {
	Config   config.Config
	Gateway  gateway.Gateway
	Searcher retrieval.Searcher
	Output   OutputFunc
	Runs     store.Runs
	Events   hermes.Publisher
	Recorder diag.Recorder
	Logger   *slog.Logger
	// UserReplies scripts the user proxy in reflect runs.
	UserReplies []string
	// Notify, when set, receives every finished run's summary.
	Notify func(ctx context.Context, s report.Summary)
	// JournalPath picks the diagnostic journal file for a run. Nil means every run
	// writes Config.DiagnosticLog.
	JournalPath func(runID uuid.UUID) string
}

// Job is a validated, registered run waiting to be executed.
type Job struct {
	ID       uuid.UUID
	Workflow Workflow

	runner   *Runner
	columns  []string
	field    string
	records  int
	chunks   []chunk.Chunk
	journal  *diag.Journal
	recorder diag.Recorder
	started  time.Time
}

// Run executes a whole run and returns its summary.
func (r *Runner) Run(ctx context.Context, id uuid.UUID, table *record.Table, wf Workflow) (report.Summary, error) {
	job, err := r.Begin(ctx, id, table, wf)
	if err != nil {
		return report.Summary{}, err
	}
	return job.Execute(ctx)
}

// Begin checks the run configuration and input, partitions the records and
// registers the run. Every configuration error surfaces here, before any chunk
// is dispatched.
func (r *Runner) Begin(ctx context.Context, id uuid.UUID, table *record.Table, wf Workflow) (*Job, error) {
	if err := r.check(wf); err != nil {
		return nil, err
	}
	if err := table.Require(r.Config.RequiredColumns...); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}
	chunks, err := chunk.Partition(table.Records, r.Config.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	logger := r.logger()
	journal := diag.NewJournal(r.journalPath(id), id.String(), string(wf))
	recorders := diag.Multi{journal, diag.Log{Logger: logger}}
	if r.Events != nil {
		recorders = append(recorders, hermes.NewRecorder(r.Events, logger))
	}
	if r.Recorder != nil {
		recorders = append(recorders, r.Recorder)
	}

	job := &Job{
		ID:       id,
		Workflow: wf,
		runner:   r,
		columns:  table.Columns,
		field:    table.ContentColumn(r.Config.ContentColumn),
		records:  len(table.Records),
		chunks:   chunks,
		journal:  journal,
		recorder: recorders,
		started:  time.Now().UTC(),
	}

	if r.Runs != nil {
		err := r.Runs.CreateRun(ctx, store.Run{
			ID:        id,
			Workflow:  string(wf),
			Status:    store.StatusRunning,
			Records:   job.records,
			CreatedAt: job.started,
		})
		if err != nil {
			return nil, fmt.Errorf("register run: %w", err)
		}
	}
	hermes.PublishRun(r.Events, logger, hermes.SubjectRunStarted, hermes.RunEvent{
		RunID:    id.String(),
		Workflow: string(wf),
		Status:   store.StatusRunning,
		Records:  job.records,
		Chunks:   len(chunks),
	})

	logger.Info("run started", "run_id", id, "workflow", wf, "records", job.records, "chunks", len(chunks), "content_column", job.field)
	return job, nil
}

func (r *Runner) check(wf Workflow) error {
	if r.Gateway == nil {
		return fmt.Errorf("%w: no model gateway configured", config.ErrInvalid)
	}
	if r.Output == nil {
		return fmt.Errorf("%w: no result sink configured", config.ErrInvalid)
	}
	switch wf {
	case WorkflowEvaluate:
		if err := r.compiler().Validate(); err != nil {
			return fmt.Errorf("%w: %w", config.ErrInvalid, err)
		}
	case WorkflowReflect:
		if r.Config.TurnCap <= 0 {
			return fmt.Errorf("%w: %w, got %d", config.ErrInvalid, conversation.ErrInvalidTurnCap, r.Config.TurnCap)
		}
		if strings.TrimSpace(r.Config.TerminationToken) == "" {
			return fmt.Errorf("%w: %w", config.ErrInvalid, conversation.ErrNoTerminationToken)
		}
	default:
		_, err := ParseWorkflow(string(wf))
		return err
	}
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (r *Runner) journalPath(id uuid.UUID) string {
	if r.JournalPath != nil {
		return r.JournalPath(id)
	}
	return r.Config.DiagnosticLog
}

func (r *Runner) protocol() prompt.Protocol {
	p, err := prompt.ParseProtocol(r.Config.Protocol)
	if err != nil {
		return prompt.Protocol(r.Config.Protocol)
	}
	return p
}

func (r *Runner) compiler() prompt.Compiler {
	return prompt.Compiler{
		Items:     r.Config.Items,
		Delimiter: r.Config.Delimiter,
		Protocol:  r.protocol(),
		Keyed:     r.Config.Keyed,
	}
}

// Execute dispatches every chunk, writes the sheet and finishes the run. Failed
// chunks degrade the output but not the run; the returned error is set only when
// the output could not be written or the run was cancelled.
func (j *Job) Execute(ctx context.Context) (report.Summary, error) {
	r := j.runner
	logger := r.logger()
	ctx = diag.WithRun(ctx, j.ID.String())

	var (
		sheet  sink.Sheet
		failed int
	)
	switch j.Workflow {
	case WorkflowReflect:
		sheet, failed = j.reflect(ctx)
	default:
		sheet, failed = j.evaluate(ctx)
	}

	// The partial output of a cancelled run is still written.
	wctx := context.WithoutCancel(ctx)
	runErr := ctx.Err()
	if err := j.write(wctx, sheet); err != nil {
		runErr = errors.Join(runErr, err)
	}

	j.journal.SetTotals(j.records, len(j.chunks), len(j.chunks)-failed)
	if err := j.journal.Save(); err != nil {
		logger.Warn("failed to save diagnostic log", "path", j.journal.Path(), "error", err)
	}

	summary := report.Summary{
		RunID:        j.ID.String(),
		Workflow:     string(j.Workflow),
		Records:      j.records,
		Chunks:       len(j.chunks),
		ChunksFailed: failed,
		Rows:         len(sheet.Rows),
		Diagnostics:  j.journal.Tally(),
		Journal:      j.journal.Path(),
		Started:      j.started,
		Finished:     j.journal.FinishedAt,
	}

	status := store.StatusCompleted
	var errText string
	if runErr != nil {
		status = store.StatusFailed
		errText = runErr.Error()
	}
	if r.Runs != nil {
		finished := summary.Finished
		err := r.Runs.FinishRun(wctx, store.Run{
			ID:           j.ID,
			Workflow:     summary.Workflow,
			Status:       status,
			Records:      summary.Records,
			Chunks:       summary.Chunks,
			ChunksFailed: summary.ChunksFailed,
			Rows:         summary.Rows,
			Diagnostics:  summary.Diagnostics,
			Error:        errText,
			FinishedAt:   &finished,
		})
		if err != nil {
			logger.Error("failed to record run result", "run_id", j.ID, "error", err)
		}
	}
	hermes.PublishRun(r.Events, logger, hermes.SubjectRunCompleted, hermes.RunEvent{
		RunID:        summary.RunID,
		Workflow:     summary.Workflow,
		Status:       status,
		Records:      summary.Records,
		Chunks:       summary.Chunks,
		ChunksFailed: summary.ChunksFailed,
		Rows:         summary.Rows,
		Diagnostics:  summary.Diagnostics,
		Error:        errText,
	})

	if r.Notify != nil {
		r.Notify(wctx, summary)
	}

	logger.Info("run finished",
		"run_id", j.ID,
		"status", status,
		"chunks", summary.Chunks,
		"chunks_failed", failed,
		"rows", summary.Rows,
		"duration", summary.Duration(),
	)
	return summary, runErr
}

func (j *Job) write(ctx context.Context, sheet sink.Sheet) error {
	w, err := j.runner.Output(j.ID)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	if err := w.Write(ctx, sheet); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", sheet.Name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close sink: %w", err)
	}
	return nil
}

func (j *Job) evaluate(ctx context.Context) (sink.Sheet, int) {
	r := j.runner
	items := r.Config.Items
	ev := Evaluator{
		Compiler: r.compiler(),
		Aligner: align.Aligner{
			Items:     items,
			Delimiter: r.Config.Delimiter,
			Protocol:  r.protocol(),
			Keyed:     r.Config.Keyed,
			Recorder:  j.recorder,
		},
		Gateway: r.Gateway,
		Field:   j.field,
	}

	d := dispatch.Dispatcher[[]Evaluation]{
		Concurrency: r.Config.Concurrency,
		Recorder:    j.recorder,
		Logger:      r.logger(),
	}
	outcomes := d.Run(ctx, j.chunks, ev.Evaluate)
	evals := dispatch.Flatten(outcomes, func(o dispatch.Outcome[[]Evaluation]) []Evaluation {
		return defaultEvaluations(o.Chunk, items)
	})
	return EvaluationSheet(j.columns, items, evals), dispatch.Failed(outcomes)
}

func (j *Job) reflect(ctx context.Context) (sink.Sheet, int) {
	r := j.runner
	searcher := r.Searcher
	if searcher == nil {
		searcher = retrieval.Static(nil)
	}
	reflector := Reflector{
		Engine: conversation.Engine{
			Participants:     conversation.DefaultTeam(r.Gateway, searcher, r.Config.TerminationToken, r.UserReplies),
			TerminationToken: r.Config.TerminationToken,
			TurnCap:          r.Config.TurnCap,
			Recorder:         j.recorder,
		},
		Field: j.field,
		Total: j.records,
	}

	d := dispatch.Dispatcher[Reflection]{
		Concurrency: r.Config.Concurrency,
		Recorder:    j.recorder,
		Logger:      r.logger(),
	}
	outcomes := d.Run(ctx, j.chunks, reflector.Reflect)

	reflections := make([]Reflection, len(outcomes))
	failures := make(map[int]error)
	for i, o := range outcomes {
		if o.Err != nil {
			reflections[i] = Reflection{BatchStart: o.Chunk.Start, BatchEnd: o.Chunk.End}
			failures[i] = o.Err
			continue
		}
		reflections[i] = o.Value
	}
	return MessageSheet(reflections, failures), len(failures)
}
