package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjpl/inteljobs/internal/domain"
)

func loadDefault(t *testing.T) Config {
	t.Helper()
	return Load(viper.New())
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadDefault(t)

	assert.Equal(t, BackendKafka, cfg.Queue.Backend)
	assert.Equal(t, "default", cfg.Queue.DefaultQueue)
	assert.Equal(t, 5, cfg.Queue.DefaultPriority)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.RetryDelay)
	assert.Equal(t, 2.0, cfg.Retry.RetryBackoff)
	assert.False(t, cfg.Retry.RetryJitter)
	assert.Equal(t, time.Duration(0), cfg.Retry.DefaultTimeout)
	assert.True(t, cfg.Monitor.Enabled)
	assert.Equal(t, 7, cfg.Monitor.RetentionDays)
	assert.Equal(t, 60, cfg.Monitor.MetricsInterval)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, "info", cfg.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("JOB_QUEUE_BACKEND", "redis")
	t.Setenv("JOB_BROKER_URL", "redis://cache:6379/0")
	t.Setenv("JOB_MAX_RETRIES", "5")
	t.Setenv("JOB_RETRY_DELAY", "250ms")
	t.Setenv("JOB_RETRY_JITTER", "true")
	t.Setenv("JOB_RETENTION_DAYS", "30")
	t.Setenv("JOB_SCHEDULER_CHECK_INTERVAL", "5s")
	t.Setenv("JOB_LOG_LEVEL", "DEBUG")

	cfg := FromEnv()

	assert.Equal(t, BackendRedis, cfg.Queue.Backend)
	assert.Equal(t, "redis://cache:6379/0", cfg.Queue.BrokerURL)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.RetryDelay)
	assert.True(t, cfg.Retry.RetryJitter)
	assert.Equal(t, 30, cfg.Monitor.RetentionDays)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, "debug", cfg.LogLevel)

	require.NoError(t, cfg.Validate())
}

func TestValidate_FieldErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Queue.Backend = "sqs" }, "queue_backend"},
		{"priority too low", func(c *Config) { c.Queue.DefaultPriority = 0 }, "default_priority"},
		{"priority too high", func(c *Config) { c.Queue.DefaultPriority = 11 }, "default_priority"},
		{"negative retries", func(c *Config) { c.Retry.MaxRetries = -1 }, "max_retries"},
		{"zero delay", func(c *Config) { c.Retry.RetryDelay = 0 }, "retry_delay"},
		{"backoff below one", func(c *Config) { c.Retry.RetryBackoff = 0.5 }, "retry_backoff"},
		{"zero retention", func(c *Config) { c.Monitor.RetentionDays = 0 }, "retention_days"},
		{"zero metrics interval", func(c *Config) { c.Monitor.MetricsInterval = 0 }, "metrics_interval"},
		{"zero check interval", func(c *Config) { c.Scheduler.CheckInterval = 0 }, "scheduler_check_interval"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := loadDefault(t)
			tc.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var cerr *domain.ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tc.field, cerr.Field)
		})
	}
}

func TestJobOptions_ReflectRetryConfig(t *testing.T) {
	cfg := loadDefault(t)
	cfg.Retry.MaxRetries = 4
	cfg.Retry.RetryDelay = 2 * time.Second
	cfg.Retry.RetryBackoff = 3.0

	opts := cfg.JobOptions()
	assert.Len(t, opts, 3)

	cfg.Retry.RetryJitter = true
	cfg.Retry.DefaultTimeout = time.Minute
	assert.Len(t, cfg.JobOptions(), 5)
}
