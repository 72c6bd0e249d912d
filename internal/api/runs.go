package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/record"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/workflow"
)

// maxBody caps a run submission.
const maxBody = 8 << 20

// RunRequest submits records for a batch run. Records are column-to-text maps;
// Texts is a shorthand for single-column input. Columns fixes the output column
// order and defaults to the sorted union of record keys.
type RunRequest struct {
	Workflow string              `json:"workflow"`
	Columns  []string            `json:"columns,omitempty"`
	Records  []map[string]string `json:"records,omitempty"`
	Texts    []string            `json:"texts,omitempty"`
}

// RunAccepted is returned once a run is registered.
type RunAccepted struct {
	ID       uuid.UUID `json:"id"`
	Workflow string    `json:"workflow"`
	Status   string    `json:"status"`
	Records  int       `json:"records"`
}

// Table converts the request into a record table.
func (req RunRequest) Table(contentColumn string) (*record.Table, error) {
	if len(req.Records) > 0 && len(req.Texts) > 0 {
		return nil, errors.New("records and texts are mutually exclusive")
	}
	if len(req.Texts) > 0 {
		return record.FromTexts(contentColumn, req.Texts), nil
	}

	columns := req.Columns
	if len(columns) == 0 {
		seen := make(map[string]bool)
		for _, rec := range req.Records {
			for k := range rec {
				if !seen[k] {
					seen[k] = true
					columns = append(columns, k)
				}
			}
		}
		sort.Strings(columns)
	}

	t := &record.Table{Columns: columns}
	for i, fields := range req.Records {
		rec := record.Record{Index: i, Fields: make(map[string]string, len(columns))}
		for _, col := range columns {
			rec.Fields[col] = fields[col]
		}
		t.Records = append(t.Records, rec)
	}
	return t, nil
}

// Submit validates and registers a run, then executes it in the background.
// Input problems are returned wrapped in config.ErrInvalid.
func (s *Server) Submit(ctx context.Context, req RunRequest) (RunAccepted, error) {
	if req.Workflow == "" {
		req.Workflow = string(workflow.WorkflowEvaluate)
	}
	wf, err := workflow.ParseWorkflow(req.Workflow)
	if err != nil {
		return RunAccepted{}, err
	}
	table, err := req.Table(s.runner.Config.ContentColumn)
	if err != nil {
		return RunAccepted{}, fmt.Errorf("%w: %w", config.ErrInvalid, err)
	}

	id := uuid.New()
	job, err := s.runner.Begin(ctx, id, table, wf)
	if err != nil {
		return RunAccepted{}, err
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if _, err := job.Execute(s.base); err != nil {
			s.logger.Error("run failed", "run_id", id, "error", err)
		}
	}()

	return RunAccepted{
		ID:       id,
		Workflow: string(wf),
		Status:   store.StatusRunning,
		Records:  len(table.Records),
	}, nil
}

// HandleRunRequested submits a run published on the event bus.
func (s *Server) HandleRunRequested(subject string, data []byte) {
	var req RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("invalid run request", "subject", subject, "error", err)
		return
	}
	accepted, err := s.Submit(s.base, req)
	if err != nil {
		s.logger.Warn("run request rejected", "subject", subject, "error", err)
		return
	}
	s.logger.Info("run request accepted", "run_id", accepted.ID, "records", accepted.Records)
}

// submitRun handles POST /api/v1/runs.
func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	accepted, err := s.Submit(r.Context(), req)
	if errors.Is(err, config.ErrInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to start run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, accepted)
}

// getRun handles GET /api/v1/runs/{id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load run", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}
