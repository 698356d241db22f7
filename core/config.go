package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for query synthesis.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// A JSON or YAML file can be layered in with WithConfigFile; it is applied
// at the point the option runs, so later options still win.
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithDatabase("postgres", "postgres://reports@localhost/reports"),
//	    WithAI("openai", "gpt-4o", os.Getenv("OPENAI_API_KEY")),
//	    WithMaxFixAttempts(3),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	Name string `json:"name" yaml:"name" env:"QUERYSYNTH_NAME" default:"querysynth"`

	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`
	Timeouts  TimeoutConfig   `json:"timeouts" yaml:"timeouts"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	AI        AIConfig        `json:"ai" yaml:"ai"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Progress  ProgressConfig  `json:"progress" yaml:"progress"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// Context modes. Curated shows the reasoning service a compact projection of
// what has been learned; full forwards every known column each turn.
const (
	ContextModeCurated = "curated"
	ContextModeFull    = "full"
)

// Table selection strategies.
const (
	SelectionKeyword   = "keyword"
	SelectionReasoning = "reasoning"
	SelectionHybrid    = "hybrid"
)

// SynthesisConfig controls the synthesis loop and its budgets.
type SynthesisConfig struct {
	MaxFixAttempts            int    `json:"max_fix_attempts" yaml:"max_fix_attempts" env:"QUERYSYNTH_MAX_FIX_ATTEMPTS" default:"3"`
	MaxIterations             int    `json:"max_iterations" yaml:"max_iterations" env:"QUERYSYNTH_MAX_ITERATIONS" default:"20"`
	ContextMode               string `json:"context_mode" yaml:"context_mode" env:"QUERYSYNTH_CONTEXT_MODE" default:"curated"`
	MaxColumnsPerTable        int    `json:"max_columns_per_table" yaml:"max_columns_per_table" env:"QUERYSYNTH_MAX_COLUMNS_PER_TABLE" default:"100"`
	MaxObservations           int    `json:"max_observations" yaml:"max_observations" env:"QUERYSYNTH_MAX_OBSERVATIONS" default:"12"`
	MaxObservationLength      int    `json:"max_observation_length" yaml:"max_observation_length" default:"240"`
	MaxSelectedTables         int    `json:"max_selected_tables" yaml:"max_selected_tables" env:"QUERYSYNTH_MAX_SELECTED_TABLES" default:"8"`
	SelectionStrategy         string `json:"selection_strategy" yaml:"selection_strategy" env:"QUERYSYNTH_SELECTION_STRATEGY" default:"hybrid"`
	KeywordSelectionThreshold int    `json:"keyword_selection_threshold" yaml:"keyword_selection_threshold" env:"QUERYSYNTH_KEYWORD_THRESHOLD" default:"30"`
	RequireNonEmptyResult     bool   `json:"require_non_empty_result" yaml:"require_non_empty_result" env:"QUERYSYNTH_REQUIRE_ROWS" default:"true"`
	PromptTokenBudget         int    `json:"prompt_token_budget" yaml:"prompt_token_budget" env:"QUERYSYNTH_PROMPT_TOKEN_BUDGET" default:"6000"`
}

// TimeoutConfig holds the per-call timeouts for each external collaborator.
type TimeoutConfig struct {
	Reasoning time.Duration `json:"reasoning" yaml:"reasoning" env:"QUERYSYNTH_REASONING_TIMEOUT" default:"60s"`
	Schema    time.Duration `json:"schema" yaml:"schema" env:"QUERYSYNTH_SCHEMA_TIMEOUT" default:"15s"`
	Execution time.Duration `json:"execution" yaml:"execution" env:"QUERYSYNTH_EXECUTION_TIMEOUT" default:"30s"`
}

// DatabaseConfig describes the data source used by the CLI adapters.
// The orchestrator itself never opens connections.
type DatabaseConfig struct {
	Driver  string `json:"driver" yaml:"driver" env:"QUERYSYNTH_DB_DRIVER" default:"postgres"`
	DSN     string `json:"dsn" yaml:"dsn" env:"QUERYSYNTH_DB_DSN,DATABASE_URL"`
	Schema  string `json:"schema" yaml:"schema" env:"QUERYSYNTH_DB_SCHEMA"`
	MaxRows int    `json:"max_rows" yaml:"max_rows" env:"QUERYSYNTH_DB_MAX_ROWS" default:"50"`
}

// AIConfig contains the reasoning-service LLM configuration.
type AIConfig struct {
	Provider    string  `json:"provider" yaml:"provider" env:"QUERYSYNTH_AI_PROVIDER" default:"openai"`
	APIKey      string  `json:"api_key" yaml:"api_key" env:"QUERYSYNTH_AI_API_KEY,OPENAI_API_KEY,ANTHROPIC_API_KEY"`
	BaseURL     string  `json:"base_url" yaml:"base_url" env:"QUERYSYNTH_AI_BASE_URL"`
	Model       string  `json:"model" yaml:"model" env:"QUERYSYNTH_AI_MODEL"`
	Region      string  `json:"region" yaml:"region" env:"QUERYSYNTH_AI_REGION,AWS_REGION" default:"us-east-1"`
	Temperature float32 `json:"temperature" yaml:"temperature" env:"QUERYSYNTH_AI_TEMPERATURE" default:"0"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" env:"QUERYSYNTH_AI_MAX_TOKENS" default:"1024"`
}

// CacheConfig configures the optional Redis-backed schema cache.
type CacheConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" env:"QUERYSYNTH_CACHE_ENABLED" default:"false"`
	RedisURL string        `json:"redis_url" yaml:"redis_url" env:"QUERYSYNTH_REDIS_URL,REDIS_URL"`
	TTL      time.Duration `json:"ttl" yaml:"ttl" env:"QUERYSYNTH_CACHE_TTL" default:"1h"`
	Prefix   string        `json:"prefix" yaml:"prefix" env:"QUERYSYNTH_CACHE_PREFIX" default:"querysynth:schema:"`
}

// ProgressConfig configures publishing of per-iteration progress events.
type ProgressConfig struct {
	NATSURL string `json:"nats_url" yaml:"nats_url" env:"QUERYSYNTH_NATS_URL,NATS_URL"`
	Subject string `json:"subject" yaml:"subject" env:"QUERYSYNTH_PROGRESS_SUBJECT" default:"querysynth.progress"`
}

// TelemetryConfig contains tracing configuration.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled" env:"QUERYSYNTH_TELEMETRY_ENABLED" default:"false"`
	Endpoint    string `json:"endpoint" yaml:"endpoint" env:"QUERYSYNTH_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"OTEL_SERVICE_NAME" default:"querysynth"`
	Insecure    bool   `json:"insecure" yaml:"insecure" env:"QUERYSYNTH_TELEMETRY_INSECURE" default:"true"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"QUERYSYNTH_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"QUERYSYNTH_LOG_FORMAT" default:"json"`
	Output string `json:"output" yaml:"output" env:"QUERYSYNTH_LOG_OUTPUT" default:"stderr"`
}

// Option is a functional option for configuring query synthesis.
// Options are applied in order and can return an error if the configuration is invalid.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name: "querysynth",
		Synthesis: SynthesisConfig{
			MaxFixAttempts:            3,
			MaxIterations:             20,
			ContextMode:               ContextModeCurated,
			MaxColumnsPerTable:        100,
			MaxObservations:           12,
			MaxObservationLength:      240,
			MaxSelectedTables:         8,
			SelectionStrategy:         SelectionHybrid,
			KeywordSelectionThreshold: 30,
			RequireNonEmptyResult:     true,
			PromptTokenBudget:         6000,
		},
		Timeouts: TimeoutConfig{
			Reasoning: 60 * time.Second,
			Schema:    15 * time.Second,
			Execution: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			MaxRows: 50,
		},
		AI: AIConfig{
			Provider:    "openai",
			Region:      "us-east-1",
			Temperature: 0,
			MaxTokens:   1024,
		},
		Cache: CacheConfig{
			TTL:    time.Hour,
			Prefix: "querysynth:schema:",
		},
		Progress: ProgressConfig{
			Subject: "querysynth.progress",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "querysynth",
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
// Invalid numeric or duration values are reported instead of silently ignored.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("QUERYSYNTH_NAME"); v != "" {
		c.Name = v
	}

	// Synthesis loop
	if err := envInt("QUERYSYNTH_MAX_FIX_ATTEMPTS", &c.Synthesis.MaxFixAttempts); err != nil {
		return err
	}
	if err := envInt("QUERYSYNTH_MAX_ITERATIONS", &c.Synthesis.MaxIterations); err != nil {
		return err
	}
	if v := os.Getenv("QUERYSYNTH_CONTEXT_MODE"); v != "" {
		c.Synthesis.ContextMode = strings.ToLower(v)
	}
	if err := envInt("QUERYSYNTH_MAX_COLUMNS_PER_TABLE", &c.Synthesis.MaxColumnsPerTable); err != nil {
		return err
	}
	if err := envInt("QUERYSYNTH_MAX_OBSERVATIONS", &c.Synthesis.MaxObservations); err != nil {
		return err
	}
	if err := envInt("QUERYSYNTH_MAX_SELECTED_TABLES", &c.Synthesis.MaxSelectedTables); err != nil {
		return err
	}
	if v := os.Getenv("QUERYSYNTH_SELECTION_STRATEGY"); v != "" {
		c.Synthesis.SelectionStrategy = strings.ToLower(v)
	}
	if err := envInt("QUERYSYNTH_KEYWORD_THRESHOLD", &c.Synthesis.KeywordSelectionThreshold); err != nil {
		return err
	}
	if v := os.Getenv("QUERYSYNTH_REQUIRE_ROWS"); v != "" {
		c.Synthesis.RequireNonEmptyResult = parseBool(v)
	}
	if err := envInt("QUERYSYNTH_PROMPT_TOKEN_BUDGET", &c.Synthesis.PromptTokenBudget); err != nil {
		return err
	}

	// Timeouts
	if err := envDuration("QUERYSYNTH_REASONING_TIMEOUT", &c.Timeouts.Reasoning); err != nil {
		return err
	}
	if err := envDuration("QUERYSYNTH_SCHEMA_TIMEOUT", &c.Timeouts.Schema); err != nil {
		return err
	}
	if err := envDuration("QUERYSYNTH_EXECUTION_TIMEOUT", &c.Timeouts.Execution); err != nil {
		return err
	}

	// Database
	if v := os.Getenv("QUERYSYNTH_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := firstEnv("QUERYSYNTH_DB_DSN", "DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("QUERYSYNTH_DB_SCHEMA"); v != "" {
		c.Database.Schema = v
	}
	if err := envInt("QUERYSYNTH_DB_MAX_ROWS", &c.Database.MaxRows); err != nil {
		return err
	}

	// AI
	if v := os.Getenv("QUERYSYNTH_AI_PROVIDER"); v != "" {
		c.AI.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("QUERYSYNTH_AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	} else if c.AI.APIKey == "" {
		// Standard provider variables, matched to the configured provider
		switch c.AI.Provider {
		case "anthropic":
			c.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("QUERYSYNTH_AI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}
	if v := os.Getenv("QUERYSYNTH_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := firstEnv("QUERYSYNTH_AI_REGION", "AWS_REGION"); v != "" {
		c.AI.Region = v
	}
	if v := os.Getenv("QUERYSYNTH_AI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("QUERYSYNTH_AI_TEMPERATURE=%q: %w", v, ErrInvalidConfiguration)
		}
		c.AI.Temperature = float32(f)
	}
	if err := envInt("QUERYSYNTH_AI_MAX_TOKENS", &c.AI.MaxTokens); err != nil {
		return err
	}

	// Cache
	if v := os.Getenv("QUERYSYNTH_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = parseBool(v)
	}
	if v := firstEnv("QUERYSYNTH_REDIS_URL", "REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if err := envDuration("QUERYSYNTH_CACHE_TTL", &c.Cache.TTL); err != nil {
		return err
	}
	if v := os.Getenv("QUERYSYNTH_CACHE_PREFIX"); v != "" {
		c.Cache.Prefix = v
	}

	// Progress
	if v := firstEnv("QUERYSYNTH_NATS_URL", "NATS_URL"); v != "" {
		c.Progress.NATSURL = v
	}
	if v := os.Getenv("QUERYSYNTH_PROGRESS_SUBJECT"); v != "" {
		c.Progress.Subject = v
	}

	// Telemetry
	if v := os.Getenv("QUERYSYNTH_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := firstEnv("QUERYSYNTH_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("OTEL_SERVICE_NAME"); v != "" {
		c.Telemetry.ServiceName = v
	}
	if v := os.Getenv("QUERYSYNTH_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = parseBool(v)
	}

	// Logging
	if v := os.Getenv("QUERYSYNTH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("QUERYSYNTH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("QUERYSYNTH_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file.
// Fields absent from the file keep their current values.
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator-supplied config path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
// This method is called automatically by NewConfig().
func (c *Config) Validate() error {
	if c.Synthesis.MaxFixAttempts < 1 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("max fix attempts must be at least 1, got %d", c.Synthesis.MaxFixAttempts),
			Err:     ErrInvalidConfiguration,
		}
	}

	// Each execution attempt takes at least a decide and a run step.
	if c.Synthesis.MaxIterations < c.Synthesis.MaxFixAttempts+1 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("max iterations (%d) must allow at least max fix attempts + 1 (%d)", c.Synthesis.MaxIterations, c.Synthesis.MaxFixAttempts+1),
			Err:     ErrInvalidConfiguration,
		}
	}

	switch c.Synthesis.ContextMode {
	case ContextModeCurated, ContextModeFull:
	default:
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown context mode %q (expected %q or %q)", c.Synthesis.ContextMode, ContextModeCurated, ContextModeFull),
			Err:     ErrInvalidConfiguration,
		}
	}

	switch c.Synthesis.SelectionStrategy {
	case SelectionKeyword, SelectionReasoning, SelectionHybrid:
	default:
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: fmt.Sprintf("unknown table selection strategy %q", c.Synthesis.SelectionStrategy),
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Synthesis.MaxColumnsPerTable < 1 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "max columns per table must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Timeouts.Reasoning <= 0 || c.Timeouts.Schema <= 0 || c.Timeouts.Execution <= 0 {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "all collaborator timeouts must be positive",
			Err:     ErrInvalidConfiguration,
		}
	}

	if c.Cache.Enabled && c.Cache.RedisURL == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "redis URL is required when the schema cache is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return &FrameworkError{
			Op:      "Config.Validate",
			Kind:    "config",
			Message: "telemetry service name is required when telemetry is enabled",
			Err:     ErrMissingConfiguration,
		}
	}

	return nil
}

// Helper functions

func envInt(name string, target *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s=%q is not an integer: %w", name, v, ErrInvalidConfiguration)
	}
	*target = n
	return nil
}

func envDuration(name string, target *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s=%q is not a duration: %w", name, v, ErrInvalidConfiguration)
	}
	*target = d
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// Everything else is false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WithName sets the service name used in logs and traces.
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.Name = name
		return nil
	}
}

// WithMaxFixAttempts sets the repair budget. The loop makes at most n+1
// execution attempts against the sandbox.
func WithMaxFixAttempts(n int) Option {
	return func(c *Config) error {
		c.Synthesis.MaxFixAttempts = n
		return nil
	}
}

// WithMaxIterations sets the absolute iteration ceiling.
func WithMaxIterations(n int) Option {
	return func(c *Config) error {
		c.Synthesis.MaxIterations = n
		return nil
	}
}

// WithContextMode selects "curated" or "full" context presentation.
func WithContextMode(mode string) Option {
	return func(c *Config) error {
		c.Synthesis.ContextMode = strings.ToLower(mode)
		return nil
	}
}

// WithMaxColumnsPerTable sets the per-table column cap of the resource pool.
func WithMaxColumnsPerTable(n int) Option {
	return func(c *Config) error {
		c.Synthesis.MaxColumnsPerTable = n
		return nil
	}
}

// WithSelectionStrategy selects the table-selection strategy
// ("keyword", "reasoning" or "hybrid").
func WithSelectionStrategy(strategy string) Option {
	return func(c *Config) error {
		c.Synthesis.SelectionStrategy = strings.ToLower(strategy)
		return nil
	}
}

// WithTimeouts sets the per-call timeouts. Zero values keep the current setting.
func WithTimeouts(reasoning, schema, execution time.Duration) Option {
	return func(c *Config) error {
		if reasoning > 0 {
			c.Timeouts.Reasoning = reasoning
		}
		if schema > 0 {
			c.Timeouts.Schema = schema
		}
		if execution > 0 {
			c.Timeouts.Execution = execution
		}
		return nil
	}
}

// WithDatabase sets the driver and DSN used by the database adapters.
func WithDatabase(driver, dsn string) Option {
	return func(c *Config) error {
		c.Database.Driver = driver
		c.Database.DSN = dsn
		return nil
	}
}

// WithAI configures the LLM provider backing the reasoning service.
func WithAI(provider, model, apiKey string) Option {
	return func(c *Config) error {
		if provider != "" {
			c.AI.Provider = strings.ToLower(provider)
		}
		if model != "" {
			c.AI.Model = model
		}
		if apiKey != "" {
			c.AI.APIKey = apiKey
		}
		return nil
	}
}

// WithSchemaCache enables the Redis schema cache.
func WithSchemaCache(redisURL string, ttl time.Duration) Option {
	return func(c *Config) error {
		c.Cache.Enabled = true
		c.Cache.RedisURL = redisURL
		if ttl > 0 {
			c.Cache.TTL = ttl
		}
		return nil
	}
}

// WithNATSProgress publishes iteration events to the given NATS server.
func WithNATSProgress(url, subject string) Option {
	return func(c *Config) error {
		c.Progress.NATSURL = url
		if subject != "" {
			c.Progress.Subject = subject
		}
		return nil
	}
}

// WithTelemetry enables tracing. An empty endpoint exports spans to stdout.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the minimum log level ("debug", "info", "warn", "error").
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the logging output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithConfigFile loads configuration from a JSON or YAML file.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// NewConfig creates a new configuration with the provided options.
// Defaults are applied first, then environment variables, then options.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
