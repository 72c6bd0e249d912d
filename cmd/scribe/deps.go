package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/gateway"
	"github.com/MikeSquared-Agency/scribe/internal/gemini"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/openai"
	"github.com/MikeSquared-Agency/scribe/internal/report"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
	"github.com/MikeSquared-Agency/scribe/internal/sink"
	"github.com/MikeSquared-Agency/scribe/internal/slack"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/workflow"
)

const formatPostgres = "postgres"

// services are the optional external connections. Each is nil when not configured.
type services struct {
	db     *store.Store
	bus    *hermes.Client
	poster *slack.Poster
}

func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{}

	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		svc.db = db
		logger.Info("database connected")
	} else if cfg.OutputFormat == formatPostgres {
		return nil, fmt.Errorf("%w: output format postgres needs DATABASE_URL", config.ErrInvalid)
	}

	if cfg.NatsURL != "" {
		bus, err := hermes.Connect(ctx, hermes.Options{URL: cfg.NatsURL, Token: cfg.NatsToken, Logger: logger})
		if err != nil {
			svc.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		svc.bus = bus
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		svc.poster = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	}
	return svc, nil
}

func (s *services) Close() {
	if s.bus != nil {
		if err := s.bus.Flush(); err != nil {
			slog.Warn("failed to flush NATS", "error", err)
		}
		s.bus.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// runner builds the workflow runner. perRun gives every run its own output file
// and diagnostic journal, which the server needs since it runs many.
func (s *services) runner(ctx context.Context, cfg config.Config, logger *slog.Logger, perRun bool) (*workflow.Runner, error) {
	gw, err := newGateway(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	output, err := outputFunc(cfg, s.db, perRun)
	if err != nil {
		return nil, err
	}

	r := &workflow.Runner{
		Config:   cfg,
		Gateway:  gw,
		Searcher: retrieval.NewHTTPSearcher(cfg.SearchURL, 5),
		Output:   output,
		Logger:   logger,
	}
	if perRun && cfg.DiagnosticLog != "" {
		r.JournalPath = func(id uuid.UUID) string { return runPath(cfg.DiagnosticLog, id) }
	}
	if s.db != nil {
		r.Runs = s.db
	}
	if s.bus != nil {
		r.Events = s.bus
	}
	if s.poster != nil {
		r.Notify = func(ctx context.Context, sum report.Summary) {
			if id, err := uuid.Parse(sum.RunID); err == nil {
				sum.Output = outputLabel(cfg, id, perRun)
			}
			if _, err := s.poster.PostRunSummary(ctx, sum); err != nil {
				logger.Warn("failed to post run summary", "run_id", sum.RunID, "error", err)
			}
		}
	}
	return r, nil
}

func newGateway(ctx context.Context, cfg config.Config, logger *slog.Logger) (gateway.Gateway, error) {
	var gw gateway.Gateway
	switch cfg.Provider {
	case "anthropic":
		gw = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.Model, cfg.MaxTokens)
	case "gemini":
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		gw = c
	case "openai":
		gw = openai.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", config.ErrInvalid, cfg.Provider)
	}
	logger.Info("model gateway ready", "provider", cfg.Provider, "model", cfg.Model, "rpm", cfg.RequestsPerMinute)

	return gateway.WithResilience(gw, gateway.Options{
		MaxRetries:        cfg.MaxRetries,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger,
	}), nil
}

func outputFunc(cfg config.Config, db *store.Store, perRun bool) (workflow.OutputFunc, error) {
	if cfg.OutputFormat == formatPostgres {
		if db == nil {
			return nil, fmt.Errorf("%w: output format postgres needs DATABASE_URL", config.ErrInvalid)
		}
		return func(id uuid.UUID) (sink.Writer, error) { return db.Sheets(id), nil }, nil
	}
	if !sink.Known(cfg.OutputFormat) {
		return nil, fmt.Errorf("%w: %w: %q", config.ErrInvalid, sink.ErrUnknownFormat, cfg.OutputFormat)
	}
	return func(id uuid.UUID) (sink.Writer, error) {
		return sink.Open(cfg.OutputFormat, outputLabel(cfg, id, perRun))
	}, nil
}

// outputLabel is where a run's rows end up.
func outputLabel(cfg config.Config, id uuid.UUID, perRun bool) string {
	if cfg.OutputFormat == formatPostgres {
		return "postgres run " + id.String()
	}
	if !perRun {
		return cfg.OutputPath
	}
	return runPath(cfg.OutputPath, id)
}

// runPath inserts the run id before the file extension.
func runPath(path string, id uuid.UUID) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + id.String() + ext
}
