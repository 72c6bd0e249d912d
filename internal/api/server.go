package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/workflow"
)

type Server struct {
	router   *chi.Mux
	port     int
	runner   *workflow.Runner
	runs     store.Runs
	logger   *slog.Logger
	httpSrv  *http.Server
	inflight sync.WaitGroup

	// base outlives individual requests so accepted runs keep going after the
	// response is written. Shutdown cancels it.
	base   context.Context
	cancel context.CancelFunc
}

// NewServer wires the routes. When the runner has no run store an in-memory one
// is installed so submitted runs can still be looked up.
func NewServer(port int, apiToken string, runner *workflow.Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if runner.Runs == nil {
		runner.Runs = store.NewMemory()
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  router,
		port:    port,
		httpSrv: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: router},
		runner:  runner,
		runs:    runner.Runs,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/scribe/status", s.status)
	router.Route("/api/v1/runs", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.submitRun)
		r.Get("/{id}", s.getRun)
	})

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, cancels runs still in flight and waits for
// them to write their partial output.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpSrv.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	cfg := s.runner.Config
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":       "scribe",
		"status":      "ready",
		"provider":    cfg.Provider,
		"model":       cfg.Model,
		"chunk_size":  cfg.ChunkSize,
		"concurrency": cfg.Concurrency,
		"items":       cfg.Items,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
