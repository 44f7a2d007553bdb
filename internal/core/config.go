package core

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DatabaseURL string `flag:"database-url" envconfig:"DATABASE_URL"`

	NATSURL  string `flag:"nats-url" envconfig:"NATS_URL"`
	NATSInit bool   `flag:"nats-init"`

	APIAddr     string `flag:"api-addr" envconfig:"API_ADDR"`
	MetricsAddr string `flag:"metrics-addr" envconfig:"METRICS_ADDR"`

	LogLevel string `flag:"log-level"`
}

// LoadEnv fills the config from the environment; CLI flags are bound on top
// by the command layer.
func (c *Config) LoadEnv() error {
	return envconfig.Process("postsync", c)
}
