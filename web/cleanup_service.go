package web

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hrm-reasoner/session"
)

// CleanupService removes reasoning sessions that outlived their TTL.
type CleanupService struct {
	sessions *session.Manager
	logger   *zap.Logger
	now      func() time.Time
}

// NewCleanupService creates a new cleanup service instance
func NewCleanupService(sessions *session.Manager, logger *zap.Logger) *CleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupService{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// CleanupExpiredSessions sweeps every session idle for longer than the TTL.
// Returns the number of sessions deleted and any error encountered
func (cs *CleanupService) CleanupExpiredSessions(ctx context.Context) (int, error) {
	now := cs.now()
	cs.logger.Debug("Starting expired session cleanup", zap.Time("now", now))

	n, err := cs.sessions.SweepExpired(ctx, now)
	if err != nil {
		return n, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	return n, nil
}

// StartSessionCleanup runs the sweep every interval until ctx is cancelled.
func StartSessionCleanup(ctx context.Context, interval time.Duration, cs *CleanupService, logger *zap.Logger) {
	if interval <= 0 {
		logger.Info("Session cleanup disabled")
		return
	}
	logger.Info("Starting session cleanup routine", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Session cleanup routine stopped")
			return
		case <-ticker.C:
			n, err := cs.CleanupExpiredSessions(ctx)
			if err != nil {
				logger.Error("Session cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Session cleanup completed", zap.Int("sessions_deleted", n))
			}
		}
	}
}
