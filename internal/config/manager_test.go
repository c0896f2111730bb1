package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadManager(t *testing.T, path string) *Config {
	t.Helper()
	mgr, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))
	return mgr.Get(context.Background())
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg := loadManager(t, filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, "http://localhost:80", cfg.Central.BaseURL)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 9030, cfg.Database.Port)
	assert.Equal(t, "root", cfg.Database.User)
	assert.Equal(t, "http://localhost:9090", cfg.PrometheusURL())
	assert.True(t, cfg.Logging.Enabled)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("CENTRAL_API", "https://orchestrator.example.com")
	t.Setenv("CENTRAL_API_TOKEN", "tok-123")
	t.Setenv("SR_HOST", "10.0.0.5")
	t.Setenv("SR_PORT", "9131")
	t.Setenv("PROMETHEUS_HOST", "10.0.0.6")

	cfg := loadManager(t, filepath.Join(t.TempDir(), "missing.yaml"))

	assert.Equal(t, "https://orchestrator.example.com", cfg.Central.BaseURL)
	assert.Equal(t, "tok-123", cfg.Central.APIToken)
	assert.Equal(t, "10.0.0.5", cfg.Database.Host)
	assert.Equal(t, 9131, cfg.Database.Port)
	assert.Equal(t, "http://10.0.0.6:9090", cfg.PrometheusURL())
}

func TestYAMLFileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srdiag.yaml")
	yaml := `
central:
  base_url: http://central:8080
database:
  host: fe-node
  port: 9030
  password: secret
logging:
  dir: /var/log/srdiag
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg := loadManager(t, path)

	assert.Equal(t, "http://central:8080", cfg.Central.BaseURL)
	assert.Equal(t, "fe-node", cfg.Database.Host)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "/var/log/srdiag", cfg.Logging.Dir)
	// Unset sections keep their defaults.
	assert.Equal(t, 9090, cfg.Prometheus.Port)
}

func TestEnvWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "srdiag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  host: from-file\n"), 0o644))
	t.Setenv("SR_HOST", "from-env")

	cfg := loadManager(t, path)
	assert.Equal(t, "from-env", cfg.Database.Host)
}

func TestLoggingDisabledOnlyByLiteralFalse(t *testing.T) {
	t.Setenv("ENABLE_LOGGING", "false")
	cfg := loadManager(t, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.False(t, cfg.Logging.Enabled)

	t.Setenv("ENABLE_LOGGING", "0")
	cfg = loadManager(t, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, cfg.Logging.Enabled, "anything but the literal \"false\" keeps the audit trail on")
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	assert.Empty(t, cfg.Validate())

	cfg.Central.BaseURL = "not a url"
	cfg.Database.Port = 0
	cfg.Prometheus.Protocol = "gopher"
	cfg.SSH.KeyPath = filepath.Join(t.TempDir(), "no-such-key")

	errs := cfg.Validate()
	require.Len(t, errs, 4)

	fields := make(map[string]bool)
	for _, err := range errs {
		ve, ok := err.(*ValidationError)
		require.True(t, ok)
		fields[ve.Field] = true
	}
	assert.True(t, fields["central.base_url"])
	assert.True(t, fields["database.port"])
	assert.True(t, fields["prometheus.protocol"])
	assert.True(t, fields["ssh.key_path"])
}

func TestManagerValidateJoinsErrors(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, mgr.Load(context.Background()))
	require.NoError(t, mgr.Validate(context.Background()))

	t.Setenv("SR_PORT", "99999")
	require.NoError(t, mgr.Load(context.Background()))
	err = mgr.Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.port")
}
