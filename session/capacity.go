package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CapacityPolicy makes room in a backend before a session is created.
type CapacityPolicy interface {
	// MakeRoom evicts sessions until one more fits, never evicting keep.
	MakeRoom(ctx context.Context, backend Backend, keep string) (int, error)
}

// LRUCapacityPolicy evicts the least recently updated sessions once the store holds
// MaxSessions. A MaxSessions of zero or less disables the cap.
type LRUCapacityPolicy struct {
	MaxSessions int
	Logger      *zap.Logger
}

func (p LRUCapacityPolicy) MakeRoom(ctx context.Context, backend Backend, keep string) (int, error) {
	if p.MaxSessions <= 0 {
		return 0, nil
	}
	evicted := 0
	for {
		count, err := backend.Count(ctx)
		if err != nil {
			return evicted, fmt.Errorf("count sessions: %w", err)
		}
		if count < p.MaxSessions {
			return evicted, nil
		}

		victim, ok, err := p.oldest(ctx, backend, keep)
		if err != nil {
			return evicted, err
		}
		if !ok {
			// only the protected session is left
			return evicted, nil
		}
		if err := backend.Delete(ctx, victim); err != nil {
			return evicted, fmt.Errorf("evict session %s: %w", victim, err)
		}
		evicted++
		sessionsEvicted.WithLabelValues("capacity").Inc()
		if p.Logger != nil {
			p.Logger.Debug("Evicted least recently updated session",
				zap.String("session_id", victim),
				zap.Int("max_sessions", p.MaxSessions))
		}
	}
}

func (p LRUCapacityPolicy) oldest(ctx context.Context, backend Backend, keep string) (string, bool, error) {
	if finder, ok := backend.(OldestFinder); ok {
		return finder.Oldest(ctx, keep)
	}

	ids, err := backend.ListIDs(ctx)
	if err != nil {
		return "", false, fmt.Errorf("list sessions: %w", err)
	}
	var (
		victim   string
		victimAt time.Time
		found    bool
	)
	for _, id := range ids {
		if id == keep {
			continue
		}
		st, err := backend.Load(ctx, id)
		if err != nil {
			continue
		}
		if !found || st.LastUpdated.Before(victimAt) {
			victim, victimAt, found = id, st.LastUpdated, true
		}
	}
	return victim, found, nil
}
