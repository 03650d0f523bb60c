package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"hrm-reasoner/agent"
	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
)

// Session backends.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config holds the application's configuration
type Config struct {
	LogLevel                 string  `mapstructure:"LOG_LEVEL"`
	LogFormat                string  `mapstructure:"LOG_FORMAT"`
	WebPort                  string  `mapstructure:"WEB_PORT"`
	SessionBackend           string  `mapstructure:"SESSION_BACKEND"`
	BadgerPath               string  `mapstructure:"BADGER_PATH"`
	PostgresURL              string  `mapstructure:"POSTGRES_URL"`
	SessionTTLMinutes        int     `mapstructure:"SESSION_TTL_MINUTES"`
	MaxSessions              int     `mapstructure:"MAX_SESSIONS"`
	CleanupEnabled           bool    `mapstructure:"CLEANUP_ENABLED"`
	CleanupIntervalMinutes   int     `mapstructure:"CLEANUP_INTERVAL_MINUTES"`
	PlateauWindow            int     `mapstructure:"PLATEAU_WINDOW"`
	PlateauDelta             float64 `mapstructure:"PLATEAU_DELTA"`
	AutoReasonMaxSteps       int     `mapstructure:"AUTO_REASON_MAX_STEPS"`
	AutoReasonTimeoutSeconds int     `mapstructure:"AUTO_REASON_TIMEOUT_SECONDS"`
	ConvergenceThreshold     float64 `mapstructure:"CONVERGENCE_THRESHOLD"`
	RateLimitRequestsPerMin  int     `mapstructure:"RATE_LIMIT_REQUESTS_PER_MIN"`
	RateLimitBurstSize       int     `mapstructure:"RATE_LIMIT_BURST_SIZE"`
	FrameworkDetection       bool    `mapstructure:"FRAMEWORK_DETECTION"`
	FrameworkCacheSize       int     `mapstructure:"FRAMEWORK_CACHE_SIZE"`
}

func Load(logger *zap.Logger) *Config {
	config, err := load(viper.New(), logger, ".", "../", "./config")
	if err != nil {
		// Config problems are critical - fail fast during bootstrap
		if logger != nil {
			logger.Fatal("Unable to load configuration", zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "FATAL: Unable to load configuration: %v\n", err)
			os.Exit(1)
		}
	}
	return config
}

func load(v *viper.Viper, logger *zap.Logger, paths ...string) (*Config, error) {
	var config Config
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AutomaticEnv()

	// The threshold accepts either env name; the unprefixed one wins when both are set.
	if err := v.BindEnv("CONVERGENCE_THRESHOLD", "CONVERGENCE_THRESHOLD", "HRM_CONVERGENCE_THRESHOLD"); err != nil {
		return nil, err
	}

	// Set default values
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("WEB_PORT", "8080")
	v.SetDefault("SESSION_BACKEND", BackendMemory)
	v.SetDefault("BADGER_PATH", "./data/sessions")
	v.SetDefault("POSTGRES_URL", "")
	v.SetDefault("SESSION_TTL_MINUTES", 60)
	v.SetDefault("MAX_SESSIONS", session.DefaultMaxSessions)
	v.SetDefault("CLEANUP_ENABLED", true)
	v.SetDefault("CLEANUP_INTERVAL_MINUTES", 5)
	v.SetDefault("PLATEAU_WINDOW", agent.DefaultPlateauWindow)
	v.SetDefault("PLATEAU_DELTA", agent.DefaultPlateauDelta)
	v.SetDefault("AUTO_REASON_MAX_STEPS", agent.DefaultMaxSteps)
	v.SetDefault("AUTO_REASON_TIMEOUT_SECONDS", int(agent.DefaultTimeout/time.Second))
	v.SetDefault("CONVERGENCE_THRESHOLD", session.DefaultConvergenceThreshold)
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST_SIZE", 20)
	v.SetDefault("FRAMEWORK_DETECTION", true)
	v.SetDefault("FRAMEWORK_CACHE_SIZE", 128)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if logger != nil {
			logger.Warn("Could not read config file, using defaults/env vars", zap.Error(err))
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))
	config.LogFormat = strings.ToLower(strings.TrimSpace(config.LogFormat))
	config.SessionBackend = strings.ToLower(strings.TrimSpace(config.SessionBackend))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks every value against its documented bounds.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.PlateauWindow >= agent.MinPlateauWindow && c.PlateauWindow <= agent.MaxPlateauWindow,
		"PLATEAU_WINDOW must be in [%d, %d], got %d", agent.MinPlateauWindow, agent.MaxPlateauWindow, c.PlateauWindow)
	check(c.PlateauDelta > 0 && c.PlateauDelta < 1,
		"PLATEAU_DELTA must be in (0, 1), got %g", c.PlateauDelta)
	check(c.ConvergenceThreshold >= session.MinConvergenceThreshold && c.ConvergenceThreshold <= session.MaxConvergenceThreshold,
		"CONVERGENCE_THRESHOLD must be in [%.2f, %.2f], got %g",
		session.MinConvergenceThreshold, session.MaxConvergenceThreshold, c.ConvergenceThreshold)
	check(c.AutoReasonMaxSteps >= 1, "AUTO_REASON_MAX_STEPS must be at least 1, got %d", c.AutoReasonMaxSteps)
	check(c.AutoReasonTimeoutSeconds > 0, "AUTO_REASON_TIMEOUT_SECONDS must be positive, got %d", c.AutoReasonTimeoutSeconds)
	check(c.MaxSessions >= 1, "MAX_SESSIONS must be at least 1, got %d", c.MaxSessions)
	check(c.SessionTTLMinutes >= 0, "SESSION_TTL_MINUTES must not be negative, got %d", c.SessionTTLMinutes)
	check(!c.CleanupEnabled || c.CleanupIntervalMinutes > 0,
		"CLEANUP_INTERVAL_MINUTES must be positive when cleanup is enabled, got %d", c.CleanupIntervalMinutes)
	check(c.RateLimitRequestsPerMin >= 0, "RATE_LIMIT_REQUESTS_PER_MIN must not be negative, got %d", c.RateLimitRequestsPerMin)
	check(c.RateLimitBurstSize >= 1, "RATE_LIMIT_BURST_SIZE must be at least 1, got %d", c.RateLimitBurstSize)
	check(c.LogFormat == "console" || c.LogFormat == "json", "LOG_FORMAT must be console or json, got %q", c.LogFormat)

	switch c.SessionBackend {
	case BackendMemory:
	case BackendBadger:
		check(c.BadgerPath != "", "BADGER_PATH is required for the badger backend")
	case BackendPostgres:
		check(c.PostgresURL != "", "POSTGRES_URL is required for the postgres backend")
	default:
		problems = append(problems, fmt.Sprintf("SESSION_BACKEND must be memory, badger or postgres, got %q", c.SessionBackend))
	}

	if len(problems) > 0 {
		return apperrors.WrapError(apperrors.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SessionTTL is the idle lifetime of a session. Zero disables expiry.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// CleanupInterval is the period of the background TTL sweep.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMinutes) * time.Minute
}

// EngineOptions derives the engine settings.
func (c *Config) EngineOptions() agent.Options {
	return agent.Options{
		PlateauWindow: c.PlateauWindow,
		PlateauDelta:  c.PlateauDelta,
		MaxSteps:      c.AutoReasonMaxSteps,
		Timeout:       time.Duration(c.AutoReasonTimeoutSeconds) * time.Second,
	}
}

// SessionOptions derives the session manager settings.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		TTL:                         c.SessionTTL(),
		MaxSessions:                 c.MaxSessions,
		DefaultConvergenceThreshold: c.ConvergenceThreshold,
	}
}
