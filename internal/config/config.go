// Package config defines the global configuration structure for the aid-flow
// statistics platform. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the platform.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require
// (Least Privilege principle).
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"aidflow-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Forecast      ForecastConfig
	Chat          ChatConfig
	Export        ExportConfig
	Loader        LoaderConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// ForecastConfig holds forecast request limits and the reference country used
// for the standalone accuracy endpoint.
type ForecastConfig struct {
	MaxHorizonYears  int    `envconfig:"FORECAST_MAX_HORIZON" default:"15"`
	ReferenceCountry string `envconfig:"FORECAST_REFERENCE_COUNTRY" default:"India"`
}

// ChatConfig holds the LLM chat wrapper settings. APIKey may be empty in
// local mode, in which case the chat endpoint serves data-context-only
// responses without calling the upstream model.
type ChatConfig struct {
	APIKey         string        `envconfig:"LLM_API_KEY"`
	BaseURL        string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com"`
	Model          string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	RequestTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	SessionTTL     time.Duration `envconfig:"CHAT_SESSION_TTL" default:"30m"`
	MaxSessions    int           `envconfig:"CHAT_MAX_SESSIONS" default:"1000"`
	MaxTurns       int           `envconfig:"CHAT_MAX_TURNS" default:"20"`
}

// ExportConfig holds CSV/chart export limits.
type ExportConfig struct {
	MaxRows int `envconfig:"EXPORT_MAX_ROWS" default:"100000"`
}

// LoaderConfig holds the bulk CSV ingest settings used by cmd/data-loader.
type LoaderConfig struct {
	DataFile  string `envconfig:"DATA_FILE" default:"./merged_data_small.csv.gz"`
	ChunkSize int    `envconfig:"LOADER_CHUNK_SIZE" default:"2000"`
	MinYear   int    `envconfig:"LOADER_MIN_YEAR" default:"2000"`
	MaxYear   int    `envconfig:"LOADER_MAX_YEAR" default:"2030"`
}

// ObservabilityConfig holds telemetry settings. Metrics are emitted to
// CloudWatch when enabled; local runs use a no-op collector.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"AidFlow"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
	AWSRegion       string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// SecurityConfig holds CORS settings for the browser dashboard.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
