package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/config"
)

var (
	configPath string
	flagValues = flagSet{}
)

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Batch text records through a language model",
	Long: `scribe sends short text records to a language model in fixed-size chunks and
writes one structured result per record.

  scribe evaluate journal.csv               # per-record items (summary, highlights, ...)
  scribe reflect journal.csv --reply "ok"   # a multi-agent conversation per chunk
  scribe serve                              # HTTP and NATS run submission`,
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML config file (overrides SCRIBE_CONFIG)")
	pf.IntVar(&flagValues.chunkSize, "chunk-size", 0, "records per model request")
	pf.IntVar(&flagValues.concurrency, "concurrency", 0, "chunks in flight at once")
	pf.StringVar(&flagValues.provider, "provider", "", "model provider: anthropic, gemini or openai")
	pf.StringVar(&flagValues.model, "model", "", "model name")
	pf.StringSliceVar(&flagValues.items, "items", nil, "evaluation items")
	pf.StringVar(&flagValues.protocol, "protocol", "", "reply protocol: json or table")
	pf.BoolVar(&flagValues.keyed, "keyed", false, "ask the model to echo record markers")
	pf.IntVar(&flagValues.turnCap, "turn-cap", 0, "maximum turns per conversation")
	pf.StringVar(&flagValues.contentColumn, "content-column", "", "column holding the record text")
	pf.StringVarP(&flagValues.format, "format", "f", "", "output format: csv, jsonl, yaml, sqlite or postgres")
	pf.StringVarP(&flagValues.output, "output", "o", "", "output path")
	pf.StringVar(&flagValues.logLevel, "log-level", "", "debug, info, warn or error")
}

// flagSet holds flag values that override the loaded configuration when set.
type flagSet struct {
	chunkSize     int
	concurrency   int
	provider      string
	model         string
	items         []string
	protocol      string
	keyed         bool
	turnCap       int
	contentColumn string
	format        string
	output        string
	logLevel      string
}

func (f flagSet) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if changed("provider") {
		cfg.Provider = f.provider
	}
	if changed("model") {
		cfg.Model = f.model
	}
	if changed("items") {
		cfg.Items = f.items
	}
	if changed("protocol") {
		cfg.Protocol = f.protocol
	}
	if changed("keyed") {
		cfg.Keyed = f.keyed
	}
	if changed("turn-cap") {
		cfg.TurnCap = f.turnCap
	}
	if changed("content-column") {
		cfg.ContentColumn = f.contentColumn
	}
	if changed("format") {
		cfg.OutputFormat = f.format
	}
	if changed("output") {
		cfg.OutputPath = f.output
	}
	if changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
}

// loadConfig layers defaults, the config file, the environment and flags, then validates.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if configPath != "" {
		if err := cfg.ApplyFile(configPath); err != nil {
			return cfg, err
		}
		cfg.ApplyEnv()
	}
	flagValues.apply(cmd, &cfg)
	return cfg, cfg.Validate()
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
