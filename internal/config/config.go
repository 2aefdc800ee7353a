// Package config defines the service configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config represents the top-level configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Database   DatabaseConfig   `yaml:"database" mapstructure:"database"`
	Reputation ReputationConfig `yaml:"reputation" mapstructure:"reputation"`
	Scanning   ScanningConfig   `yaml:"scanning" mapstructure:"scanning"`
	Quarantine QuarantineConfig `yaml:"quarantine" mapstructure:"quarantine"`
	Kafka      KafkaConfig      `yaml:"kafka" mapstructure:"kafka"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" mapstructure:"telemetry"`
	Debug      DebugConfig      `yaml:"debug" mapstructure:"debug"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host               string        `yaml:"host" mapstructure:"host"`
	Port               int           `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout        time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout       time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gt=0"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gt=0"`
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" mapstructure:"cors_allowed_origins"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig configures PostgreSQL. An empty DSN selects the in-memory
// stores.
type DatabaseConfig struct {
	DSN           string `yaml:"dsn" mapstructure:"dsn"`
	MinConns      int32  `yaml:"min_conns" mapstructure:"min_conns" validate:"gte=0"`
	MaxConns      int32  `yaml:"max_conns" mapstructure:"max_conns" validate:"gtefield=MinConns"`
	RunMigrations bool   `yaml:"run_migrations" mapstructure:"run_migrations"`
	MigrationsDir string `yaml:"migrations_dir" mapstructure:"migrations_dir"`
}

// ReputationConfig configures the VirusTotal client and the shared limiter.
type ReputationConfig struct {
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	APIKey        string        `yaml:"api_key" mapstructure:"api_key"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	PollDelay     time.Duration `yaml:"poll_delay" mapstructure:"poll_delay" validate:"gte=0"`
	ReportRetries int           `yaml:"report_retries" mapstructure:"report_retries" validate:"gte=0,lte=10"`
	RetryInterval time.Duration `yaml:"retry_interval" mapstructure:"retry_interval" validate:"gte=0"`
	// RateLimit is the shared submissions-per-second ceiling across all jobs.
	// Zero disables the shared limiter.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst" validate:"gte=0"`
}

// ScanningConfig configures the orchestrator.
type ScanningConfig struct {
	PacingDelay time.Duration `yaml:"pacing_delay" mapstructure:"pacing_delay" validate:"gte=0"`
	MaxFileSize int64         `yaml:"max_file_size" mapstructure:"max_file_size" validate:"gt=0"`
	Extensions  []string      `yaml:"extensions" mapstructure:"extensions" validate:"required,min=1,dive,required"`
}

// QuarantineConfig configures quarantine storage.
type QuarantineConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`
	// ReconcileInterval schedules the background consistency sweep. Zero
	// disables it.
	ReconcileInterval time.Duration `yaml:"reconcile_interval" mapstructure:"reconcile_interval" validate:"gte=0"`
}

// KafkaConfig configures domain event publishing. No brokers selects the
// in-process bus.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" mapstructure:"brokers"`
	Topic    string   `yaml:"topic" mapstructure:"topic" validate:"required_with=Brokers"`
	ClientID string   `yaml:"client_id" mapstructure:"client_id"`
}

// Enabled reports whether at least one broker is configured.
func (k KafkaConfig) Enabled() bool {
	for _, b := range k.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

// TelemetryConfig configures logging, tracing and metrics export.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name" mapstructure:"service_name" validate:"required"`
	// ExporterEndpoint is the OTLP gRPC collector. Empty disables export.
	ExporterEndpoint string  `yaml:"exporter_endpoint" mapstructure:"exporter_endpoint"`
	Insecure         bool    `yaml:"insecure" mapstructure:"insecure"`
	Probability      float64 `yaml:"probability" mapstructure:"probability" validate:"gte=0,lte=1"`
	LogLevel         string  `yaml:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// DebugConfig configures the pprof/metrics listener.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr" validate:"required_if=Enabled true"`
}

// Defaults returns a configuration that runs locally without external
// dependencies.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8001,
			ReadTimeout:        5 * time.Second,
			WriteTimeout:       30 * time.Second,
			IdleTimeout:        120 * time.Second,
			ShutdownTimeout:    20 * time.Second,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			MinConns:      2,
			MaxConns:      10,
			RunMigrations: true,
			MigrationsDir: "db/migrations",
		},
		Reputation: ReputationConfig{
			BaseURL:       "https://www.virustotal.com/vtapi/v2",
			Timeout:       30 * time.Second,
			PollDelay:     2 * time.Second,
			ReportRetries: 2,
			RetryInterval: 500 * time.Millisecond,
			RateBurst:     1,
		},
		Scanning: ScanningConfig{
			PacingDelay: time.Second,
			MaxFileSize: 100 << 20,
			Extensions: []string{
				"exe", "dll", "bat", "cmd", "scr", "pif", "com",
				"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx",
				"zip", "rar", "7z", "tar", "gz",
				"js", "py", "php", "pl", "sh",
				"jpg", "jpeg", "png", "gif", "bmp",
			},
		},
		Quarantine: QuarantineConfig{
			Dir:               "quarantine",
			ReconcileInterval: 10 * time.Minute,
		},
		Kafka: KafkaConfig{
			Topic:    "scanguard-events",
			ClientID: "scanguard",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "scanguard",
			Insecure:    true,
			Probability: 0.05,
			LogLevel:    "info",
		},
		Debug: DebugConfig{
			Enabled: true,
			Addr:    "0.0.0.0:8010",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
