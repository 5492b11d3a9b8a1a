package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

// Backend kinds accepted by queue_backend.
const (
	BackendKafka = "kafka"
	BackendRedis = "redis"
)

// QueueConfig selects and connects the queue backend.
type QueueConfig struct {
	Backend         string
	BrokerURL       string
	ResultBackend   string
	DefaultQueue    string
	DefaultPriority int
}

// RetryConfig sets the framework-wide retry defaults applied to job types
// that do not override them.
type RetryConfig struct {
	MaxRetries     int
	RetryDelay     time.Duration
	RetryBackoff   float64
	RetryJitter    bool
	DefaultTimeout time.Duration
}

// MonitorConfig controls the execution ledger.
type MonitorConfig struct {
	Enabled         bool
	RetentionDays   int
	MetricsInterval int // seconds between cleanup/metrics sweeps
}

// SchedulerConfig controls the periodic-trigger loop.
type SchedulerConfig struct {
	Enabled       bool
	CheckInterval time.Duration
}

// Config aggregates all framework configuration. Load it once at process
// start and pass it down; nothing reads the environment after that.
type Config struct {
	Queue     QueueConfig
	Retry     RetryConfig
	Monitor   MonitorConfig
	Scheduler SchedulerConfig
	LogLevel  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("queue_backend", BackendKafka)
	v.SetDefault("broker_url", "localhost:9092")
	v.SetDefault("result_backend", "localhost:6379")
	v.SetDefault("default_queue", "default")
	v.SetDefault("default_priority", 5)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("retry_backoff", 2.0)
	v.SetDefault("retry_jitter", false)
	v.SetDefault("default_timeout", time.Duration(0))
	v.SetDefault("monitor_enabled", true)
	v.SetDefault("retention_days", 7)
	v.SetDefault("metrics_interval", 60)
	v.SetDefault("scheduler_enabled", true)
	v.SetDefault("scheduler_check_interval", time.Second)
	v.SetDefault("log_level", "info")
}

// Load reads all values from the given viper instance. FromEnv is the usual
// entry point; Load exists so the CLIs can layer flags and config files on
// top of the same keys.
func Load(v *viper.Viper) Config {
	setDefaults(v)
	return Config{
		Queue: QueueConfig{
			Backend:         strings.ToLower(v.GetString("queue_backend")),
			BrokerURL:       v.GetString("broker_url"),
			ResultBackend:   v.GetString("result_backend"),
			DefaultQueue:    v.GetString("default_queue"),
			DefaultPriority: v.GetInt("default_priority"),
		},
		Retry: RetryConfig{
			MaxRetries:     v.GetInt("max_retries"),
			RetryDelay:     v.GetDuration("retry_delay"),
			RetryBackoff:   v.GetFloat64("retry_backoff"),
			RetryJitter:    v.GetBool("retry_jitter"),
			DefaultTimeout: v.GetDuration("default_timeout"),
		},
		Monitor: MonitorConfig{
			Enabled:         v.GetBool("monitor_enabled"),
			RetentionDays:   v.GetInt("retention_days"),
			MetricsInterval: v.GetInt("metrics_interval"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler_enabled"),
			CheckInterval: v.GetDuration("scheduler_check_interval"),
		},
		LogLevel: strings.ToLower(v.GetString("log_level")),
	}
}

// FromEnv builds a Config from JOB_-prefixed environment variables
// (JOB_QUEUE_BACKEND, JOB_BROKER_URL, JOB_MAX_RETRIES, ...).
func FromEnv() Config {
	v := viper.New()
	v.SetEnvPrefix("JOB")
	v.AutomaticEnv()
	return Load(v)
}

// Validate fail-fasts on out-of-range values; the error names the field.
func (c Config) Validate() error {
	if c.Queue.Backend != BackendKafka && c.Queue.Backend != BackendRedis {
		return &domain.ConfigError{
			Field:  "queue_backend",
			Reason: fmt.Sprintf("unknown backend %q (want %s or %s)", c.Queue.Backend, BackendKafka, BackendRedis),
		}
	}
	if c.Queue.DefaultPriority < 1 || c.Queue.DefaultPriority > 10 {
		return &domain.ConfigError{Field: "default_priority", Reason: "must be between 1 and 10"}
	}
	if c.Retry.MaxRetries < 0 {
		return &domain.ConfigError{Field: "max_retries", Reason: "must be non-negative"}
	}
	if c.Retry.RetryDelay <= 0 {
		return &domain.ConfigError{Field: "retry_delay", Reason: "must be greater than zero"}
	}
	if c.Retry.RetryBackoff < 1 {
		return &domain.ConfigError{Field: "retry_backoff", Reason: "must be at least 1"}
	}
	if c.Monitor.RetentionDays < 1 {
		return &domain.ConfigError{Field: "retention_days", Reason: "must be at least 1"}
	}
	if c.Monitor.MetricsInterval < 1 {
		return &domain.ConfigError{Field: "metrics_interval", Reason: "must be at least 1"}
	}
	if c.Scheduler.CheckInterval <= 0 {
		return &domain.ConfigError{Field: "scheduler_check_interval", Reason: "must be greater than zero"}
	}
	return nil
}

// JobOptions translates the retry defaults into job options, suitable as
// the defaults slice for registry factories.
func (c Config) JobOptions() []job.Option {
	opts := []job.Option{
		job.WithMaxRetries(c.Retry.MaxRetries),
		job.WithRetryDelay(c.Retry.RetryDelay),
		job.WithRetryBackoff(c.Retry.RetryBackoff),
	}
	if c.Retry.RetryJitter {
		opts = append(opts, job.WithJitter(defaultJitterFrac))
	}
	if c.Retry.DefaultTimeout > 0 {
		opts = append(opts, job.WithTimeout(c.Retry.DefaultTimeout))
	}
	return opts
}

// defaultJitterFrac spreads retry delays ±10% when jitter is enabled.
const defaultJitterFrac = 0.1
