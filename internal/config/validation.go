package config

import (
	"fmt"
	"net/url"
	"os"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	// Validate orchestrator URL
	if c.Central.BaseURL == "" {
		errs = append(errs, &ValidationError{
			Field:   "central.base_url",
			Message: "base_url is required",
		})
	} else if u, err := url.Parse(c.Central.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, &ValidationError{
			Field:   "central.base_url",
			Message: fmt.Sprintf("invalid URL: %s", c.Central.BaseURL),
		})
	}

	// Validate database configuration
	if c.Database.Host == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.host",
			Message: "host is required",
		})
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Database.Port),
		})
	}

	// Validate Prometheus configuration
	if c.Prometheus.Protocol != "http" && c.Prometheus.Protocol != "https" {
		errs = append(errs, &ValidationError{
			Field:   "prometheus.protocol",
			Message: fmt.Sprintf("protocol must be http or https, got %s", c.Prometheus.Protocol),
		})
	}
	if c.Prometheus.Port < 1 || c.Prometheus.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "prometheus.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Prometheus.Port),
		})
	}

	// Validate SSH key path when configured
	if c.SSH.KeyPath != "" {
		if _, err := os.Stat(c.SSH.KeyPath); os.IsNotExist(err) {
			errs = append(errs, &ValidationError{
				Field:   "ssh.key_path",
				Message: fmt.Sprintf("key file does not exist: %s", c.SSH.KeyPath),
			})
		}
	}

	return errs
}
