package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept runs over HTTP and NATS",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.LogLevel)
	logger.Info("scribe starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	runner, err := svc.runner(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	if svc.db == nil {
		logger.Warn("DATABASE_URL not set, run status is kept in memory")
	}

	srv := api.NewServer(cfg.Port, cfg.APIToken, runner, logger)

	if svc.bus != nil {
		if !svc.bus.Connected() {
			logger.Warn("NATS not reachable yet, registration and run events are buffered until it is")
		}
		if err := svc.bus.QueueSubscribe(hermes.SubjectRunRequested, srv.HandleRunRequested); err != nil {
			return fmt.Errorf("subscribe to run requests: %w", err)
		}
		if err := svc.bus.Publish("swarm.agent.scribe.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"provider":  cfg.Provider,
		}); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	logger.Info("scribe ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("scribe stopped")
	return nil
}
