package config

import (
	"github.com/spf13/viper"

	sharedcfg "github.com/bjpl/inteljobs/internal/config"
)

// Config holds typed configuration for the worker service: the shared
// framework config plus the worker's own knobs.
type Config struct {
	sharedcfg.Config

	QueueName    string // queue to consume; empty falls back to the default queue
	PostgresDSN  string // empty disables the durable execution log
	MetricsAddr  string
	OTelEndpoint string
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	v.SetDefault("queue", "")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("metrics_addr", ":9091")
	v.SetDefault("otel_endpoint", "")

	return Config{
		Config:       sharedcfg.Load(v),
		QueueName:    v.GetString("queue"),
		PostgresDSN:  v.GetString("postgres_dsn"),
		MetricsAddr:  v.GetString("metrics_addr"),
		OTelEndpoint: v.GetString("otel_endpoint"),
	}
}
