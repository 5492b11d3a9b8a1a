package config

import (
	"time"

	"github.com/spf13/viper"

	sharedcfg "github.com/bjpl/inteljobs/internal/config"
)

// ScheduleSpec is one schedule definition from the config file. Exactly one
// of Cron, Interval, AtTime selects the trigger kind; all empty means a
// one-shot schedule that fires immediately.
type ScheduleSpec struct {
	Name     string         `mapstructure:"name"`
	Job      string         `mapstructure:"job"`
	Params   map[string]any `mapstructure:"params"`
	Queue    string         `mapstructure:"queue"`
	Cron     string         `mapstructure:"cron"`
	Interval time.Duration  `mapstructure:"interval"`
	AtTime   string         `mapstructure:"at_time"`
	Disabled bool           `mapstructure:"disabled"`
}

// Config holds typed configuration for the scheduler service.
type Config struct {
	sharedcfg.Config

	Standalone   bool // skip leader election; for single-instance deployments
	PostgresDSN  string
	MetricsAddr  string
	OTelEndpoint string
	RateLimit    int // max enqueues per job type per window; 0 disables limiting
	RateWindow   time.Duration
	Schedules    []ScheduleSpec
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) (Config, error) {
	v.SetDefault("standalone", false)
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("metrics_addr", ":9093")
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("rate_window", time.Minute)

	cfg := Config{
		Config:       sharedcfg.Load(v),
		Standalone:   v.GetBool("standalone"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
		RateLimit:    v.GetInt("rate_limit"),
		RateWindow:   v.GetDuration("rate_window"),
	}
	if err := v.UnmarshalKey("schedules", &cfg.Schedules); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
