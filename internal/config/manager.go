package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperManager implements Manager using Viper.
type viperManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

// envBindings maps viper keys to the legacy flat environment variable
// names the installer has always used. BindEnv keeps those names working
// alongside the YAML file.
var envBindings = map[string]string{
	"central.base_url":    "CENTRAL_API",
	"central.api_token":   "CENTRAL_API_TOKEN",
	"database.host":       "SR_HOST",
	"database.port":       "SR_PORT",
	"database.user":       "SR_USER",
	"database.password":   "SR_PASSWORD",
	"prometheus.protocol": "PROMETHEUS_PROTOCOL",
	"prometheus.host":     "PROMETHEUS_HOST",
	"prometheus.port":     "PROMETHEUS_PORT",
	"ssh.user":            "SSH_USER",
	"ssh.key_path":        "SSH_KEY_PATH",
	"logging.enabled":     "ENABLE_LOGGING",
}

// Load loads configuration from all sources.
func (m *viperManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	for key, env := range envBindings {
		if err := m.viper.BindEnv(key, env); err != nil {
			return fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	m.setDefaults()

	// Config file is optional; defaults plus env vars are a complete setup.
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// File not found via viper - OK, use defaults
		} else if os.IsNotExist(err) {
			// File not found via os - OK, use defaults
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *viperManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

// Watch watches for configuration file changes and reloads.
func (m *viperManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
			// Channel full, skip this update
		}
	})

	return m.watchChan
}

// setDefaults sets default values in viper.
func (m *viperManager) setDefaults() {
	defaults := DefaultConfig()

	m.viper.SetDefault("central.base_url", defaults.Central.BaseURL)
	m.viper.SetDefault("central.api_token", defaults.Central.APIToken)

	m.viper.SetDefault("database.host", defaults.Database.Host)
	m.viper.SetDefault("database.port", defaults.Database.Port)
	m.viper.SetDefault("database.user", defaults.Database.User)
	m.viper.SetDefault("database.password", defaults.Database.Password)

	m.viper.SetDefault("prometheus.protocol", defaults.Prometheus.Protocol)
	m.viper.SetDefault("prometheus.host", defaults.Prometheus.Host)
	m.viper.SetDefault("prometheus.port", defaults.Prometheus.Port)

	m.viper.SetDefault("ssh.user", defaults.SSH.User)
	m.viper.SetDefault("ssh.key_path", defaults.SSH.KeyPath)

	m.viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	m.viper.SetDefault("logging.dir", defaults.Logging.Dir)
	m.viper.SetDefault("logging.app_log_path", defaults.Logging.AppLogPath)
	m.viper.SetDefault("logging.level", defaults.Logging.Level)
}

// unmarshalConfig unmarshals viper config into the Config struct.
func (m *viperManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Central.BaseURL = m.viper.GetString("central.base_url")
	cfg.Central.APIToken = m.viper.GetString("central.api_token")

	cfg.Database.Host = m.viper.GetString("database.host")
	cfg.Database.Port = m.viper.GetInt("database.port")
	cfg.Database.User = m.viper.GetString("database.user")
	cfg.Database.Password = m.viper.GetString("database.password")

	cfg.Prometheus.Protocol = m.viper.GetString("prometheus.protocol")
	cfg.Prometheus.Host = m.viper.GetString("prometheus.host")
	cfg.Prometheus.Port = m.viper.GetInt("prometheus.port")

	cfg.SSH.User = m.viper.GetString("ssh.user")
	cfg.SSH.KeyPath = m.viper.GetString("ssh.key_path")

	// ENABLE_LOGGING is a string in the installer; only the literal
	// "false" disables the audit trail.
	cfg.Logging.Enabled = m.viper.GetString("logging.enabled") != "false"
	cfg.Logging.Dir = m.viper.GetString("logging.dir")
	cfg.Logging.AppLogPath = m.viper.GetString("logging.app_log_path")
	cfg.Logging.Level = m.viper.GetString("logging.level")

	m.config = cfg
	return nil
}
