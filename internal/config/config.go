package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration errors. They abort a run before any chunk is dispatched.
var ErrInvalid = errors.New("invalid configuration")

// DefaultItems are the evaluation items used for journal entries when none are configured.
var DefaultItems = []string{"positive_summary", "highlights", "confidence_tips", "motivation"}

type Config struct {
	// Batch core.
	ChunkSize        int      `yaml:"chunk_size"`
	Delimiter        string   `yaml:"delimiter"`
	TerminationToken string   `yaml:"termination_token"`
	TurnCap          int      `yaml:"turn_cap"`
	Concurrency      int      `yaml:"concurrency"`
	Items            []string `yaml:"items"`
	Protocol         string   `yaml:"protocol"` // json | table
	Keyed            bool     `yaml:"keyed"`

	// Records.
	ContentColumn   string   `yaml:"content_column"`
	RequiredColumns []string `yaml:"required_columns"`

	// Model gateway.
	Provider          string `yaml:"provider"` // anthropic | gemini | openai
	Model             string `yaml:"model"`
	AnthropicAPIKey   string `yaml:"-"`
	GeminiAPIKey      string `yaml:"-"`
	OpenAIAPIKey      string `yaml:"-"`
	OpenAIBaseURL     string `yaml:"openai_base_url"`
	MaxTokens         int    `yaml:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	MaxRetries        int    `yaml:"max_retries"`
	SearchURL         string `yaml:"search_url"`

	// Output.
	OutputFormat  string `yaml:"output_format"` // csv | jsonl | yaml | sqlite | postgres
	OutputPath    string `yaml:"output_path"`
	DiagnosticLog string `yaml:"diagnostic_log"`

	// Services.
	Port          int    `yaml:"port"`
	LogLevel      string `yaml:"log_level"`
	DatabaseURL   string `yaml:"-"`
	NatsURL       string `yaml:"nats_url"`
	NatsToken     string `yaml:"-"`
	SlackBotToken string `yaml:"-"`
	SlackChannel  string `yaml:"slack_channel"`
	APIToken      string `yaml:"-"`
}

// Defaults returns the configuration used when nothing else is set.
func Defaults() Config {
	return Config{
		ChunkSize:         10,
		Delimiter:         "-----",
		TerminationToken:  "exit",
		TurnCap:           12,
		Concurrency:       4,
		Items:             append([]string(nil), DefaultItems...),
		Protocol:          "json",
		ContentColumn:     "content",
		Provider:          "gemini",
		Model:             "gemini-2.0-flash",
		MaxTokens:         8192,
		RequestsPerMinute: 60,
		MaxRetries:        2,
		OutputFormat:      "csv",
		OutputPath:        "scribe_output.csv",
		DiagnosticLog:     "scribe_diagnostics.json",
		Port:              8760,
		LogLevel:          "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// SCRIBE_CONFIG, and environment variables, in that order of precedence.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("SCRIBE_CONFIG"); path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyFile overlays the non-zero values from a YAML file.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.merge(file)
	return nil
}

func (c *Config) merge(o Config) {
	if o.ChunkSize != 0 {
		c.ChunkSize = o.ChunkSize
	}
	if o.Delimiter != "" {
		c.Delimiter = o.Delimiter
	}
	if o.TerminationToken != "" {
		c.TerminationToken = o.TerminationToken
	}
	if o.TurnCap != 0 {
		c.TurnCap = o.TurnCap
	}
	if o.Concurrency != 0 {
		c.Concurrency = o.Concurrency
	}
	if len(o.Items) > 0 {
		c.Items = o.Items
	}
	if o.Protocol != "" {
		c.Protocol = o.Protocol
	}
	if o.Keyed {
		c.Keyed = true
	}
	if o.ContentColumn != "" {
		c.ContentColumn = o.ContentColumn
	}
	if len(o.RequiredColumns) > 0 {
		c.RequiredColumns = o.RequiredColumns
	}
	if o.Provider != "" {
		c.Provider = o.Provider
	}
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.OpenAIBaseURL != "" {
		c.OpenAIBaseURL = o.OpenAIBaseURL
	}
	if o.MaxTokens != 0 {
		c.MaxTokens = o.MaxTokens
	}
	if o.RequestsPerMinute != 0 {
		c.RequestsPerMinute = o.RequestsPerMinute
	}
	if o.MaxRetries != 0 {
		c.MaxRetries = o.MaxRetries
	}
	if o.SearchURL != "" {
		c.SearchURL = o.SearchURL
	}
	if o.OutputFormat != "" {
		c.OutputFormat = o.OutputFormat
	}
	if o.OutputPath != "" {
		c.OutputPath = o.OutputPath
	}
	if o.DiagnosticLog != "" {
		c.DiagnosticLog = o.DiagnosticLog
	}
	if o.Port != 0 {
		c.Port = o.Port
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.NatsURL != "" {
		c.NatsURL = o.NatsURL
	}
	if o.SlackChannel != "" {
		c.SlackChannel = o.SlackChannel
	}
}

// ApplyEnv overlays environment variables. Unset or empty variables keep the current value.
func (c *Config) ApplyEnv() {
	c.ChunkSize = envInt("SCRIBE_CHUNK_SIZE", c.ChunkSize)
	c.Delimiter = envStr("SCRIBE_DELIMITER", c.Delimiter)
	c.TerminationToken = envStr("SCRIBE_TERMINATION_TOKEN", c.TerminationToken)
	c.TurnCap = envInt("SCRIBE_TURN_CAP", c.TurnCap)
	c.Concurrency = envInt("SCRIBE_CONCURRENCY", c.Concurrency)
	c.Items = envList("SCRIBE_ITEMS", c.Items)
	c.Protocol = envStr("SCRIBE_PROTOCOL", c.Protocol)
	c.Keyed = envBool("SCRIBE_KEYED", c.Keyed)
	c.ContentColumn = envStr("SCRIBE_CONTENT_COLUMN", c.ContentColumn)
	c.RequiredColumns = envList("SCRIBE_REQUIRED_COLUMNS", c.RequiredColumns)
	c.Provider = envStr("SCRIBE_PROVIDER", c.Provider)
	c.Model = envStr("SCRIBE_MODEL", c.Model)
	c.AnthropicAPIKey = envStr("ANTHROPIC_API_KEY", c.AnthropicAPIKey)
	c.GeminiAPIKey = envStr("GEMINI_API_KEY", c.GeminiAPIKey)
	c.OpenAIAPIKey = envStr("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = envStr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.MaxTokens = envInt("SCRIBE_MAX_TOKENS", c.MaxTokens)
	c.RequestsPerMinute = envInt("SCRIBE_RPM", c.RequestsPerMinute)
	c.MaxRetries = envInt("SCRIBE_MAX_RETRIES", c.MaxRetries)
	c.SearchURL = envStr("SCRIBE_SEARCH_URL", c.SearchURL)
	c.OutputFormat = envStr("SCRIBE_OUTPUT_FORMAT", c.OutputFormat)
	c.OutputPath = envStr("SCRIBE_OUTPUT", c.OutputPath)
	c.DiagnosticLog = envStr("SCRIBE_DIAGNOSTIC_LOG", c.DiagnosticLog)
	c.Port = envInt("SCRIBE_PORT", c.Port)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)
	c.DatabaseURL = envStr("DATABASE_URL", c.DatabaseURL)
	c.NatsURL = envStr("NATS_URL", c.NatsURL)
	c.NatsToken = envStr("NATS_TOKEN", c.NatsToken)
	c.SlackBotToken = envStr("SLACK_BOT_TOKEN", c.SlackBotToken)
	c.SlackChannel = envStr("SLACK_REPORT_CHANNEL", c.SlackChannel)
	c.APIToken = envStr("SCRIBE_API_TOKEN", c.APIToken)
}

// Validate reports every configuration error at once. The returned error wraps ErrInvalid.
func (c Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if strings.TrimSpace(c.Delimiter) == "" {
		errs = append(errs, errors.New("delimiter is required"))
	}
	if strings.TrimSpace(c.TerminationToken) == "" {
		errs = append(errs, errors.New("termination token is required"))
	}
	if c.TurnCap <= 0 {
		errs = append(errs, fmt.Errorf("turn cap must be positive, got %d", c.TurnCap))
	}
	if len(c.Items) == 0 {
		errs = append(errs, errors.New("at least one evaluation item is required"))
	}
	switch c.Protocol {
	case "json", "table":
	default:
		errs = append(errs, fmt.Errorf("unknown protocol %q", c.Protocol))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if err := c.validateCredentials(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func (c Config) validateCredentials() error {
	switch c.Provider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return errors.New("ANTHROPIC_API_KEY is required for provider anthropic")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY is required for provider gemini")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required for provider openai")
		}
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
