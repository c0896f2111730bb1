package config

import "context"

// Package config provides configuration management for the diagnostics agent.
//
// Responsibilities:
//   - Load configuration from environment variables and an optional YAML file
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Establish reasonable defaults matching a single-node StarRocks install
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (legacy flat names: CENTRAL_API, SR_HOST, ...)
//   2. YAML config file (default: ./srdiag.yaml, optional)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Central
//      - base_url: Central Orchestrator base URL (CENTRAL_API)
//      - api_token: shared API key sent as X-API-Key (CENTRAL_API_TOKEN)
//
//   2. Database
//      - host/port/user/password: local StarRocks FE MySQL endpoint
//        (SR_HOST, SR_PORT, SR_USER, SR_PASSWORD)
//
//   3. Prometheus
//      - protocol/host/port: local monitoring endpoint
//        (PROMETHEUS_PROTOCOL, PROMETHEUS_HOST, PROMETHEUS_PORT)
//
//   4. SSH
//      - user: remote login user (SSH_USER, defaults to current user)
//      - key_path: private key for key-based auth (SSH_KEY_PATH)
//
//   5. Logging
//      - enabled: audit trail on/off (ENABLE_LOGGING)
//      - dir: directory for the daily audit log files
//      - app_log_path: size-rotated application log
//      - level: minimum app log level

// Config contains all configuration fields.
type Config struct {
	// Central Orchestrator configuration
	Central struct {
		BaseURL  string
		APIToken string
	}

	// Local analytics database (StarRocks FE, MySQL protocol)
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
	}

	// Local monitoring system
	Prometheus struct {
		Protocol string
		Host     string
		Port     int
	}

	// SSH identity for remote command execution
	SSH struct {
		User    string
		KeyPath string
	}

	// Logging configuration
	Logging struct {
		Enabled    bool
		Dir        string
		AppLogPath string
		Level      string
	}
}

// Manager defines the interface for configuration access.
type Manager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration file changes and reloads.
	Watch(ctx context.Context) <-chan Config
}

// NewManager creates a new configuration manager.
func NewManager(configPath string) (Manager, error) {
	mgr := &viperManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewManagerWithDefaults creates a config manager with the default config path.
func NewManagerWithDefaults() (Manager, error) {
	return NewManager("srdiag.yaml")
}
