package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hrm-reasoner/errors"
)

func loadFrom(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	return load(viper.New(), nil, dir)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFrom(t, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.SessionBackend)
	assert.Equal(t, 0.85, cfg.ConvergenceThreshold)
	assert.Equal(t, time.Hour, cfg.SessionTTL())

	eng := cfg.EngineOptions()
	assert.Equal(t, 3, eng.PlateauWindow)
	assert.Equal(t, 0.02, eng.PlateauDelta)
	assert.Equal(t, 24, eng.MaxSteps)
	assert.Equal(t, 15*time.Second, eng.Timeout)
	require.NoError(t, eng.Validate())
	require.NoError(t, cfg.SessionOptions().Validate())
}

func TestConvergenceThresholdEnvAliases(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want float64
	}{
		{name: "primary", env: map[string]string{"CONVERGENCE_THRESHOLD": "0.9"}, want: 0.9},
		{name: "alias", env: map[string]string{"HRM_CONVERGENCE_THRESHOLD": "0.7"}, want: 0.7},
		{name: "primary_wins", env: map[string]string{"CONVERGENCE_THRESHOLD": "0.6", "HRM_CONVERGENCE_THRESHOLD": "0.7"}, want: 0.6},
		{name: "unset", want: 0.85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := loadFrom(t, t.TempDir())
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.ConvergenceThreshold)
			assert.Equal(t, tt.want, cfg.SessionOptions().DefaultConvergenceThreshold)
		})
	}
}

func TestEnvOverridesDurations(t *testing.T) {
	t.Setenv("SESSION_TTL_MINUTES", "5")
	t.Setenv("AUTO_REASON_TIMEOUT_SECONDS", "2")
	t.Setenv("SESSION_BACKEND", " Badger ")

	cfg, err := loadFrom(t, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 2*time.Second, cfg.EngineOptions().Timeout)
	assert.Equal(t, BackendBadger, cfg.SessionBackend)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "PLATEAU_WINDOW: 5\nMAX_SESSIONS: 10\nLOG_FORMAT: json\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	cfg, err := loadFrom(t, dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PlateauWindow)
	assert.Equal(t, 10, cfg.MaxSessions)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("PLATEAU_WINDOW: [\n"), 0o644))

	_, err := loadFrom(t, dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := loadFrom(t, t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "window_small", mutate: func(c *Config) { c.PlateauWindow = 1 }},
		{name: "window_large", mutate: func(c *Config) { c.PlateauWindow = 21 }},
		{name: "delta", mutate: func(c *Config) { c.PlateauDelta = 1 }},
		{name: "threshold", mutate: func(c *Config) { c.ConvergenceThreshold = 0.4 }},
		{name: "steps", mutate: func(c *Config) { c.AutoReasonMaxSteps = 0 }},
		{name: "timeout", mutate: func(c *Config) { c.AutoReasonTimeoutSeconds = 0 }},
		{name: "sessions", mutate: func(c *Config) { c.MaxSessions = 0 }},
		{name: "backend", mutate: func(c *Config) { c.SessionBackend = "redis" }},
		{name: "postgres_url", mutate: func(c *Config) { c.SessionBackend = BackendPostgres; c.PostgresURL = "" }},
		{name: "log_format", mutate: func(c *Config) { c.LogFormat = "xml" }},
		{name: "cleanup_interval", mutate: func(c *Config) { c.CleanupIntervalMinutes = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), apperrors.ErrInvalidConfig)
		})
	}
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		logger, err := InitLogger("debug", format)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(-1))
	}
	Cleanup()
}
