package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var envKeys = []string{
	"SCRIBE_CONFIG", "SCRIBE_CHUNK_SIZE", "SCRIBE_DELIMITER", "SCRIBE_TERMINATION_TOKEN",
	"SCRIBE_TURN_CAP", "SCRIBE_CONCURRENCY", "SCRIBE_ITEMS", "SCRIBE_PROTOCOL", "SCRIBE_KEYED",
	"SCRIBE_CONTENT_COLUMN", "SCRIBE_REQUIRED_COLUMNS", "SCRIBE_PROVIDER", "SCRIBE_MODEL",
	"ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "OPENAI_BASE_URL", "SCRIBE_MAX_TOKENS",
	"SCRIBE_RPM", "SCRIBE_MAX_RETRIES", "SCRIBE_SEARCH_URL", "SCRIBE_OUTPUT_FORMAT", "SCRIBE_OUTPUT",
	"SCRIBE_DIAGNOSTIC_LOG", "SCRIBE_PORT", "LOG_LEVEL", "DATABASE_URL", "NATS_URL", "NATS_TOKEN",
	"SLACK_BOT_TOKEN", "SLACK_REPORT_CHANNEL", "SCRIBE_API_TOKEN",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ChunkSize != 10 {
		t.Errorf("expected default chunk size 10, got %d", cfg.ChunkSize)
	}
	if cfg.Delimiter != "-----" {
		t.Errorf("expected default delimiter, got %q", cfg.Delimiter)
	}
	if cfg.TerminationToken != "exit" {
		t.Errorf("expected default termination token exit, got %q", cfg.TerminationToken)
	}
	if cfg.Protocol != "json" {
		t.Errorf("expected default protocol json, got %q", cfg.Protocol)
	}
	if len(cfg.Items) != len(DefaultItems) {
		t.Errorf("expected %d default items, got %d", len(DefaultItems), len(cfg.Items))
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCRIBE_CHUNK_SIZE", "500")
	t.Setenv("SCRIBE_DELIMITER", "=====")
	t.Setenv("SCRIBE_TURN_CAP", "9")
	t.Setenv("SCRIBE_CONCURRENCY", "2")
	t.Setenv("SCRIBE_ITEMS", "mood, energy ,,sleep")
	t.Setenv("SCRIBE_PROTOCOL", "table")
	t.Setenv("SCRIBE_KEYED", "true")
	t.Setenv("SCRIBE_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-key")
	t.Setenv("NATS_TOKEN", "s3cr3t-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ChunkSize != 500 {
		t.Errorf("expected chunk size 500, got %d", cfg.ChunkSize)
	}
	if cfg.Delimiter != "=====" {
		t.Errorf("expected custom delimiter, got %q", cfg.Delimiter)
	}
	if cfg.TurnCap != 9 {
		t.Errorf("expected turn cap 9, got %d", cfg.TurnCap)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("expected concurrency 2, got %d", cfg.Concurrency)
	}
	want := []string{"mood", "energy", "sleep"}
	if len(cfg.Items) != len(want) {
		t.Fatalf("expected items %v, got %v", want, cfg.Items)
	}
	for i := range want {
		if cfg.Items[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], cfg.Items[i])
		}
	}
	if cfg.Protocol != "table" || !cfg.Keyed {
		t.Errorf("expected table protocol and keyed, got %q keyed=%v", cfg.Protocol, cfg.Keyed)
	}
	if cfg.NatsToken != "s3cr3t-token" {
		t.Errorf("expected custom nats token, got %s", cfg.NatsToken)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoad_InvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCRIBE_CHUNK_SIZE", "notanumber")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != 10 {
		t.Errorf("expected default chunk size on invalid value, got %d", cfg.ChunkSize)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	data := "chunk_size: 30\nprotocol: table\nitems: [a, b]\nturn_cap: 6\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCRIBE_CONFIG", path)
	t.Setenv("SCRIBE_TURN_CAP", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ChunkSize != 30 {
		t.Errorf("expected chunk size from file, got %d", cfg.ChunkSize)
	}
	if cfg.Protocol != "table" {
		t.Errorf("expected protocol from file, got %q", cfg.Protocol)
	}
	if len(cfg.Items) != 2 {
		t.Errorf("expected items from file, got %v", cfg.Items)
	}
	if cfg.TurnCap != 3 {
		t.Errorf("expected env to override file turn cap, got %d", cfg.TurnCap)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCRIBE_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.GeminiAPIKey = "key"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "zero chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "negative chunk size", mutate: func(c *Config) { c.ChunkSize = -3 }, wantErr: true},
		{name: "empty delimiter", mutate: func(c *Config) { c.Delimiter = "  " }, wantErr: true},
		{name: "no items", mutate: func(c *Config) { c.Items = nil }, wantErr: true},
		{name: "bad protocol", mutate: func(c *Config) { c.Protocol = "xml" }, wantErr: true},
		{name: "missing credential", mutate: func(c *Config) { c.GeminiAPIKey = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "bard" }, wantErr: true},
		{name: "zero turn cap", mutate: func(c *Config) { c.TurnCap = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.Items = append([]string(nil), valid.Items...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected error to wrap ErrInvalid, got %v", err)
			}
		})
	}
}
