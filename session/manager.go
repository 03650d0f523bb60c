package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/utils"
)

const (
	// DefaultTTL is how long an idle session survives.
	DefaultTTL = time.Hour

	// DefaultMaxSessions caps the number of live sessions.
	DefaultMaxSessions = 500
)

// Options configures a Manager.
type Options struct {
	// TTL is the idle lifetime of a session. Zero or less disables expiry.
	TTL time.Duration

	// MaxSessions is the capacity cap enforced before every creation.
	MaxSessions int

	// DefaultConvergenceThreshold seeds sessions created without an explicit threshold.
	// Zero selects DefaultConvergenceThreshold.
	DefaultConvergenceThreshold float64
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		TTL:                         DefaultTTL,
		MaxSessions:                 DefaultMaxSessions,
		DefaultConvergenceThreshold: DefaultConvergenceThreshold,
	}
}

// Validate checks the documented bounds.
func (o Options) Validate() error {
	if o.MaxSessions < 1 {
		return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "max sessions must be at least 1, got %d", o.MaxSessions)
	}
	if t := o.DefaultConvergenceThreshold; t != 0 && (t < MinConvergenceThreshold || t > MaxConvergenceThreshold) {
		return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "convergence threshold must be in [%.2f, %.2f], got %.3f",
			MinConvergenceThreshold, MaxConvergenceThreshold, t)
	}
	return nil
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// WithCapacityPolicy replaces the default LRU capacity policy.
func WithCapacityPolicy(p CapacityPolicy) ManagerOption {
	return func(m *Manager) {
		m.policy = p
	}
}

// Manager is the TTL-aware, capacity-bounded session store used by the engine.
// It assumes requests for one session id are serialised by the caller.
type Manager struct {
	backend Backend
	policy  CapacityPolicy
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

// NewManager creates a session manager over backend.
func NewManager(backend Backend, opts Options, logger *zap.Logger, options ...ManagerOption) (*Manager, error) {
	if backend == nil {
		return nil, apperrors.WrapError(apperrors.ErrInvalidConfig, "session backend is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.DefaultConvergenceThreshold == 0 {
		opts.DefaultConvergenceThreshold = DefaultConvergenceThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		backend: backend,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
	m.policy = LRUCapacityPolicy{MaxSessions: opts.MaxSessions, Logger: logger}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Options returns the manager's effective options.
func (m *Manager) Options() Options {
	return m.opts
}

// GetOrCreate loads the requested session if it exists and has not expired, reapplying
// the mutable subset of params; otherwise it creates a fresh session. The returned
// session has already been persisted. created reports whether it is new.
func (m *Manager) GetOrCreate(ctx context.Context, requestedID string, p Params) (st *State, created bool, err error) {
	if requestedID != "" {
		st, err := m.load(ctx, requestedID)
		switch {
		case err == nil:
			st.ApplyParams(p)
			st.LastUpdated = m.now()
			if err := m.save(ctx, st); err != nil {
				return nil, false, err
			}
			return st, false, nil
		case !apperrors.IsNotFound(err):
			return nil, false, err
		}
	}

	st, err = m.create(ctx, requestedID, p)
	if err != nil {
		return nil, false, err
	}
	return st, true, nil
}

// Reset discards all accumulated state of id and reinitialises it from params,
// keeping the id. Unknown ids are created.
func (m *Manager) Reset(ctx context.Context, id string, p Params) (*State, error) {
	if id == "" {
		return m.create(ctx, "", p)
	}
	existing, err := m.load(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return m.create(ctx, id, p)
		}
		return nil, err
	}

	st := NewState(existing.ID, m.withDefaults(p), m.now())
	st.CreatedAt = existing.CreatedAt
	if err := m.save(ctx, st); err != nil {
		return nil, err
	}
	sessionsCreated.WithLabelValues("reset").Inc()
	m.logger.Info("Reset reasoning session", zap.String("session_id", st.ID))
	return st, nil
}

// Update records that op ran on st (see State.RecordDecision), queues the next
// scheduling hints and persists.
func (m *Manager) Update(ctx context.Context, st *State, op Operation, summary string, next ...Operation) error {
	st.RecordDecision(op, summary, m.now())
	for _, n := range next {
		st.EnqueueAction(n)
	}
	return m.save(ctx, st)
}

// Save persists st without any bookkeeping.
func (m *Manager) Save(ctx context.Context, st *State) error {
	return m.save(ctx, st)
}

// Get returns the session if it exists and has not expired.
func (m *Manager) Get(ctx context.Context, id string) (*State, error) {
	return m.load(ctx, id)
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.backend.Delete(ctx, id); err != nil {
		return storeErr("delete", id, err)
	}
	return nil
}

// Count returns the number of stored sessions, expired ones included until swept.
func (m *Manager) Count(ctx context.Context) (int, error) {
	n, err := m.backend.Count(ctx)
	if err != nil {
		return 0, storeErr("count", "*", err)
	}
	return n, nil
}

// SweepExpired removes every session idle for longer than the TTL at now.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if m.opts.TTL <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-m.opts.TTL)
	n, err := m.backend.EvictBefore(ctx, cutoff)
	if err != nil {
		return n, storeErr("sweep", "*", err)
	}
	if n > 0 {
		sessionsEvicted.WithLabelValues("ttl").Add(float64(n))
		m.logger.Info("Swept expired reasoning sessions",
			zap.Int("sessions_removed", n),
			zap.Time("cutoff_time", cutoff))
	}
	return n, nil
}

func (m *Manager) create(ctx context.Context, requestedID string, p Params) (*State, error) {
	id := requestedID
	if !utils.IsSessionID(id) {
		id = utils.GenerateSessionID()
	}

	if _, err := m.policy.MakeRoom(ctx, m.backend, id); err != nil {
		return nil, storeErr("make room for", id, err)
	}

	st := NewState(id, m.withDefaults(p), m.now())
	if err := m.save(ctx, st); err != nil {
		return nil, err
	}
	sessionsCreated.WithLabelValues("new").Inc()
	m.logger.Debug("Created reasoning session", zap.String("session_id", id))
	return st, nil
}

func (m *Manager) load(ctx context.Context, id string) (*State, error) {
	st, err := m.backend.Load(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, err
		}
		return nil, storeErr("load", id, err)
	}
	if st.Expired(m.now(), m.opts.TTL) {
		if err := m.backend.Delete(ctx, id); err != nil {
			m.logger.Warn("Failed to delete expired session",
				zap.String("session_id", id),
				zap.Error(err))
		}
		sessionsEvicted.WithLabelValues("ttl").Inc()
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "session %s expired", id)
	}
	return st, nil
}

func (m *Manager) save(ctx context.Context, st *State) error {
	if err := m.backend.Save(ctx, st); err != nil {
		return storeErr("save", st.ID, err)
	}
	return nil
}

func (m *Manager) withDefaults(p Params) Params {
	if p.ConvergenceThreshold == nil {
		t := m.opts.DefaultConvergenceThreshold
		p.ConvergenceThreshold = &t
	}
	return p
}

func storeErr(op, id string, err error) error {
	return fmt.Errorf("%s session %s: %w: %w", op, id, apperrors.ErrStore, err)
}
