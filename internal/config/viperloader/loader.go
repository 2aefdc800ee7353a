// Package viperloader loads configuration from an optional YAML file layered
// under SCANGUARD_* environment variables.
package viperloader

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ahrav/scanguard/internal/config"
)

// EnvPrefix namespaces environment overrides, e.g. SCANGUARD_SERVER_PORT.
const EnvPrefix = "SCANGUARD"

// ViperLoader resolves configuration from defaults, then the file at path
// (when set), then the environment.
type ViperLoader struct {
	path string
}

// NewViperLoader creates a ViperLoader. An empty path loads defaults and
// environment only.
func NewViperLoader(path string) *ViperLoader {
	return &ViperLoader{path: path}
}

// Load implements config.Loader.
func (l *ViperLoader) Load(ctx context.Context) (*config.Config, error) {
	v := viper.New()
	setDefaults(v, config.Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if l.path != "" {
		v.SetConfigFile(l.path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_allowed_origins", d.Server.CORSAllowedOrigins)

	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.run_migrations", d.Database.RunMigrations)
	v.SetDefault("database.migrations_dir", d.Database.MigrationsDir)

	v.SetDefault("reputation.base_url", d.Reputation.BaseURL)
	v.SetDefault("reputation.api_key", d.Reputation.APIKey)
	v.SetDefault("reputation.timeout", d.Reputation.Timeout)
	v.SetDefault("reputation.poll_delay", d.Reputation.PollDelay)
	v.SetDefault("reputation.report_retries", d.Reputation.ReportRetries)
	v.SetDefault("reputation.retry_interval", d.Reputation.RetryInterval)
	v.SetDefault("reputation.rate_limit", d.Reputation.RateLimit)
	v.SetDefault("reputation.rate_burst", d.Reputation.RateBurst)

	v.SetDefault("scanning.pacing_delay", d.Scanning.PacingDelay)
	v.SetDefault("scanning.max_file_size", d.Scanning.MaxFileSize)
	v.SetDefault("scanning.extensions", d.Scanning.Extensions)

	v.SetDefault("quarantine.dir", d.Quarantine.Dir)
	v.SetDefault("quarantine.reconcile_interval", d.Quarantine.ReconcileInterval)

	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.client_id", d.Kafka.ClientID)

	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	v.SetDefault("telemetry.exporter_endpoint", d.Telemetry.ExporterEndpoint)
	v.SetDefault("telemetry.insecure", d.Telemetry.Insecure)
	v.SetDefault("telemetry.probability", d.Telemetry.Probability)
	v.SetDefault("telemetry.log_level", d.Telemetry.LogLevel)

	v.SetDefault("debug.enabled", d.Debug.Enabled)
	v.SetDefault("debug.addr", d.Debug.Addr)
}
