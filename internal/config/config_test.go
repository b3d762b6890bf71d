package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// noEnvFile points Load at a file that does not exist so a developer's .env
// cannot leak into the tests.
func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	cfg, err := Load(noEnvFile(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, filepath.Join("data", DatasetFile), filepath.Clean(cfg.DatasetPath()))
	assert.Equal(t, int64(32<<20), cfg.MaxUploadBytes())
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "exoplanet.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
http_addr: ":9000"
model_dir: /var/lib/exoplanet/models
log_format: json
cors_origins: ["https://ui.example"]
read_timeout: 10s
`), 0o644))
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("EXOPLANET_LOG_LEVEL=debug\nEXOPLANET_HTTP_ADDR=:9100\n"), 0o644))

	t.Setenv(FileEnv, yamlPath)
	t.Setenv("EXOPLANET_HTTP_ADDR", ":9200")
	t.Setenv("EXOPLANET_LOG_LEVEL", "")
	os.Unsetenv("EXOPLANET_LOG_LEVEL")
	t.Setenv("EXOPLANET_MAX_UPLOAD_MB", "8")

	cfg, err := Load(envPath)
	require.NoError(t, err)
	assert.Equal(t, ":9200", cfg.HTTPAddr, "process env beats .env and yaml")
	assert.Equal(t, "debug", cfg.LogLevel, ".env fills unset variables")
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/var/lib/exoplanet/models", cfg.ModelDir)
	assert.Equal(t, []string{"https://ui.example"}, cfg.CORSOrigins)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, int64(8), cfg.MaxUploadMB)
	assert.Equal(t, "./data", cfg.DataDir)
}

func TestLoadMissingYAML(t *testing.T) {
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load(noEnvFile(t))
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.HTTPAddr = "" }},
		{"zero upload", func(c *Config) { c.MaxUploadMB = 0 }},
		{"zero cache", func(c *Config) { c.InfoCacheSize = 0 }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"empty model dir", func(c *Config) { c.ModelDir = "" }},
		{"history inside model dir", func(c *Config) { c.HistoryDB = "./models/history.db" }},
		{"history nested in model dir", func(c *Config) { c.HistoryDB = "models/runs/h.db" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			var ve *errors.ValidationError
			assert.True(t, errors.As(cfg.Validate(), &ve))
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestHistoryOutsideModelDir(t *testing.T) {
	cfg := Default()
	assert.False(t, within(cfg.HistoryDB, cfg.ModelDir))

	assert.True(t, within("models", "./models"))
	assert.False(t, within("./models-old/h.db", "./models"))
	assert.False(t, within("../models/h.db", "./models"))
	assert.False(t, within("./data/..models", "./models"))
}
