package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "0.0.0.0:8001", cfg.Server.Addr())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Len(t, cfg.Scanning.Extensions, 29)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "missing quarantine dir",
			mutate:  func(c *Config) { c.Quarantine.Dir = "" },
			wantErr: "Quarantine.Dir",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "Server.Port",
		},
		{
			name:    "reputation url",
			mutate:  func(c *Config) { c.Reputation.BaseURL = "not a url" },
			wantErr: "Reputation.BaseURL",
		},
		{
			name: "brokers without topic",
			mutate: func(c *Config) {
				c.Kafka.Brokers = []string{"localhost:9092"}
				c.Kafka.Topic = ""
			},
			wantErr: "Kafka.Topic",
		},
		{
			name:    "sampling probability",
			mutate:  func(c *Config) { c.Telemetry.Probability = 1.5 },
			wantErr: "Telemetry.Probability",
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Telemetry.LogLevel = "trace" },
			wantErr: "Telemetry.LogLevel",
		},
		{
			name:    "pool bounds",
			mutate:  func(c *Config) { c.Database.MinConns, c.Database.MaxConns = 10, 2 },
			wantErr: "Database.MaxConns",
		},
		{
			name:    "empty extensions",
			mutate:  func(c *Config) { c.Scanning.Extensions = nil },
			wantErr: "Scanning.Extensions",
		},
		{
			name:   "kafka enabled",
			mutate: func(c *Config) { c.Kafka.Brokers = []string{"localhost:9092"} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Defaults()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKafkaEnabled(t *testing.T) {
	t.Parallel()

	assert.False(t, KafkaConfig{Brokers: []string{" ", ""}}.Enabled())
	assert.True(t, KafkaConfig{Brokers: []string{"", "kafka:9092"}}.Enabled())
}
