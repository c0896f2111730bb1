package config

import (
	"fmt"
	"os/user"
)

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// Central Orchestrator defaults
	cfg.Central.BaseURL = "http://localhost:80"
	cfg.Central.APIToken = ""

	// Database defaults (StarRocks FE query port)
	cfg.Database.Host = "localhost"
	cfg.Database.Port = 9030
	cfg.Database.User = "root"
	cfg.Database.Password = ""

	// Prometheus defaults
	cfg.Prometheus.Protocol = "http"
	cfg.Prometheus.Host = "localhost"
	cfg.Prometheus.Port = 9090

	// SSH defaults
	cfg.SSH.User = currentUsername()
	cfg.SSH.KeyPath = ""

	// Logging defaults
	cfg.Logging.Enabled = true
	cfg.Logging.Dir = "logs"
	cfg.Logging.AppLogPath = "logs/app.log"
	cfg.Logging.Level = "info"

	return cfg
}

// PrometheusURL returns the base URL of the monitoring endpoint.
func (c *Config) PrometheusURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Prometheus.Protocol, c.Prometheus.Host, c.Prometheus.Port)
}

func currentUsername() string {
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}
