package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hrm-reasoner/agent"
	"hrm-reasoner/config"
	"hrm-reasoner/database"
	"hrm-reasoner/framework"
	"hrm-reasoner/session"
	"hrm-reasoner/web"
)

// app is the wired dependency graph shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	sessions *session.Manager
	engine   *agent.Engine
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("Failed to close resource", zap.Error(err))
		}
	}
	config.Cleanup()
}

func bootstrap(ctx context.Context) (*app, error) {
	// Initialize logger with default level to load config
	tempLogger, err := config.InitLogger("info", "console")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfg := config.Load(tempLogger)

	// Re-initialize logger with configured level
	logger, err := config.InitLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to re-initialize logger with configured level: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	backend, err := a.openBackend(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sessions, err = session.NewManager(backend, cfg.SessionOptions(), logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	var options []agent.EngineOption
	if cfg.FrameworkDetection {
		detector, err := framework.NewDetector(nil, cfg.FrameworkCacheSize, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create framework detector: %w", err)
		}
		options = append(options, agent.WithFrameworkDetector(detector))
	}

	a.engine, err = agent.NewEngine(a.sessions, cfg.EngineOptions(), logger, options...)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create reasoning engine: %w", err)
	}
	return a, nil
}

func (a *app) openBackend(ctx context.Context) (session.Backend, error) {
	switch a.cfg.SessionBackend {
	case config.BackendBadger:
		db, err := database.OpenBadger(database.BadgerConfig{
			Path:       a.cfg.BadgerPath,
			SyncWrites: true,
			Logger:     a.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.logger.Info("Using badger session store", zap.String("path", a.cfg.BadgerPath))
		return database.NewBadgerStore(db), nil

	case config.BackendPostgres:
		store, err := database.NewPostgresStore(ctx, a.cfg.PostgresURL, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, store.Close)

		// --- Ensure Schema Exists ---
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		a.logger.Info("Using postgres session store")
		return store, nil

	default:
		a.logger.Info("Using in-memory session store", zap.Int("capacity", a.cfg.MaxSessions))
		return session.NewMemoryBackend(a.cfg.MaxSessions)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Create context that listens for interrupt signals
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Initialize cleanup service and start background cleanup routine
	if a.cfg.CleanupEnabled {
		cleanupService := web.NewCleanupService(a.sessions, a.logger)
		go web.StartSessionCleanup(ctx, a.cfg.CleanupInterval(), cleanupService, a.logger)
	}

	webServer := web.NewServer(a.engine, a.logger, a.cfg)

	port := ":" + a.cfg.WebPort
	a.logger.Info("Starting hierarchical reasoning server", zap.String("port", port))
	if err := webServer.Start(ctx, port); err != nil {
		return fmt.Errorf("web server error: %w", err)
	}
	return nil
}

func runReason(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.engine.Process(ctx, agent.Request{
		Operation:     string(session.OpAutoReason),
		Problem:       problem,
		WorkspacePath: workspace,
		SessionID:     sessionID,
	})
	fmt.Fprintln(cmd.OutOrStdout(), resp.Text())
	if resp.IsError {
		return resp.Err()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nsession: %s\n", resp.SessionID)
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := web.NewCleanupService(a.sessions, a.logger).CleanupExpiredSessions(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("Sweep finished", zap.Int("sessions_deleted", n), zap.Time("at", time.Now()))
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
	return nil
}
