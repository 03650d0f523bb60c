package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/utils"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// scanOnlyBackend hides the OldestFinder fast path of the memory backend.
type scanOnlyBackend struct {
	Backend
}

func newTestManager(t *testing.T, opts Options, backend Backend) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	if backend == nil {
		mem, err := NewMemoryBackend(opts.MaxSessions)
		require.NoError(t, err)
		backend = mem
	}
	logger, _ := zap.NewDevelopment()
	m, err := NewManager(backend, opts, logger, WithClock(clock.Now))
	require.NoError(t, err)
	return m, clock
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }

func TestNewManagerValidatesOptions(t *testing.T) {
	mem, err := NewMemoryBackend(10)
	require.NoError(t, err)

	tests := []struct {
		name string
		opts Options
		ok   bool
	}{
		{name: "defaults", opts: DefaultOptions(), ok: true},
		{name: "zero_capacity", opts: Options{MaxSessions: 0}, ok: false},
		{name: "threshold_too_low", opts: Options{MaxSessions: 5, DefaultConvergenceThreshold: 0.3}, ok: false},
		{name: "threshold_unset", opts: Options{MaxSessions: 5}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(mem, tt.opts, nil)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
			}
		})
	}

	_, err = NewManager(nil, DefaultOptions(), nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestGetOrCreateCreatesWithDefaults(t *testing.T) {
	m, _ := newTestManager(t, Options{TTL: time.Hour, MaxSessions: 10}, nil)
	ctx := context.Background()

	st, created, err := m.GetOrCreate(ctx, "", Params{Problem: "  Build a   login flow "})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, utils.IsSessionID(st.ID))
	assert.Equal(t, "Build a login flow", st.Problem)
	assert.Equal(t, DefaultMaxLCyclesPerH, st.MaxLCyclesPerH)
	assert.Equal(t, DefaultMaxHCycles, st.MaxHCycles)
	assert.Equal(t, DefaultConvergenceThreshold, st.ConvergenceThreshold)
	assert.Equal(t, DefaultComplexityEstimate, st.ComplexityEstimate)
	assert.True(t, st.Metrics.ShouldContinue)

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetOrCreateClampsInitialCycles(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxSessions: 10}, nil)

	st, _, err := m.GetOrCreate(context.Background(), "", Params{
		HCycle:         intPtr(9),
		LCycle:         intPtr(7),
		MaxLCyclesPerH: intPtr(2),
		MaxHCycles:     intPtr(3),
		HContext:       "plan a\n\nplan   b",
		LContext:       "step one",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, st.HCycle)
	assert.Equal(t, 1, st.LCycle)
	assert.Equal(t, []string{"plan a", "plan b"}, st.HContext)
	assert.Equal(t, []string{"step one"}, st.LContext)
}

func TestGetOrCreateReusesAndReappliesParams(t *testing.T) {
	m, clock := newTestManager(t, Options{TTL: time.Hour, MaxSessions: 10}, nil)
	ctx := context.Background()

	st, _, err := m.GetOrCreate(ctx, "", Params{Problem: "first"})
	require.NoError(t, err)
	st.HContext = []string{"existing plan"}
	require.NoError(t, m.Update(ctx, st, OpHPlan, "existing plan"))

	clock.Advance(30 * time.Minute)
	again, created, err := m.GetOrCreate(ctx, st.ID, Params{
		MaxHCycles:           intPtr(6),
		ConvergenceThreshold: floatPtr(0.7),
		ComplexityEstimate:   floatPtr(8),
		HContext:             "ignored on reuse",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, st.ID, again.ID)
	assert.Equal(t, []string{"existing plan"}, again.HContext)
	assert.Equal(t, "first", again.Problem)
	assert.Equal(t, 6, again.MaxHCycles)
	assert.Equal(t, 0.7, again.ConvergenceThreshold)
	assert.Equal(t, 8.0, again.ComplexityEstimate)
	assert.Equal(t, clock.Now(), again.LastUpdated)
}

func TestGetOrCreateUnknownIDKeepsRequestedID(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxSessions: 10}, nil)
	id := utils.GenerateSessionID()

	st, created, err := m.GetOrCreate(context.Background(), id, Params{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, id, st.ID)
}

func TestTTLExpiry(t *testing.T) {
	m, clock := newTestManager(t, Options{TTL: time.Hour, MaxSessions: 10}, nil)
	ctx := context.Background()

	stale, _, err := m.GetOrCreate(ctx, "", Params{})
	require.NoError(t, err)
	clock.Advance(50 * time.Minute)
	fresh, _, err := m.GetOrCreate(ctx, "", Params{})
	require.NoError(t, err)

	clock.Advance(20 * time.Minute)
	removed, err := m.SweepExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = m.Get(ctx, stale.ID)
	assert.True(t, apperrors.IsNotFound(err))

	got, err := m.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)
}

func TestExpiredSessionIsReplacedOnLookup(t *testing.T) {
	m, clock := newTestManager(t, Options{TTL: time.Minute, MaxSessions: 10}, nil)
	ctx := context.Background()

	st, _, err := m.GetOrCreate(ctx, "", Params{Problem: "old"})
	require.NoError(t, err)
	st.HContext = []string{"old plan"}
	require.NoError(t, m.Save(ctx, st))

	clock.Advance(2 * time.Minute)
	again, created, err := m.GetOrCreate(ctx, st.ID, Params{})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, st.ID, again.ID)
	assert.Empty(t, again.HContext)
}

func TestSweepDisabledWithoutTTL(t *testing.T) {
	m, clock := newTestManager(t, Options{TTL: 0, MaxSessions: 10}, nil)
	ctx := context.Background()

	st, _, err := m.GetOrCreate(ctx, "", Params{})
	require.NoError(t, err)
	clock.Advance(1000 * time.Hour)

	removed, err := m.SweepExpired(ctx, clock.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
	_, err = m.Get(ctx, st.ID)
	assert.NoError(t, err)
}

func TestCapacityEvictsLeastRecentlyUpdated(t *testing.T) {
	for _, scanOnly := range []bool{false, true} {
		t.Run(fmt.Sprintf("scan_only=%v", scanOnly), func(t *testing.T) {
			mem, err := NewMemoryBackend(3)
			require.NoError(t, err)
			var backend Backend = mem
			if scanOnly {
				backend = scanOnlyBackend{Backend: mem}
			}
			m, clock := newTestManager(t, Options{MaxSessions: 3}, backend)
			ctx := context.Background()

			var ids []string
			for i := 0; i < 3; i++ {
				st, _, err := m.GetOrCreate(ctx, "", Params{})
				require.NoError(t, err)
				ids = append(ids, st.ID)
				clock.Advance(time.Minute)
			}

			// touching the first session makes the second the eviction victim
			first, err := m.Get(ctx, ids[0])
			require.NoError(t, err)
			require.NoError(t, m.Update(ctx, first, OpHPlan, "touch"))
			clock.Advance(time.Minute)

			_, _, err = m.GetOrCreate(ctx, "", Params{})
			require.NoError(t, err)

			n, err := m.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)
			_, err = m.Get(ctx, ids[1])
			assert.True(t, apperrors.IsNotFound(err))
			_, err = m.Get(ctx, ids[0])
			assert.NoError(t, err)
		})
	}
}

func TestCapacityPolicyNeverEvictsKept(t *testing.T) {
	mem, err := NewMemoryBackend(2)
	require.NoError(t, err)
	ctx := context.Background()
	keep := utils.GenerateSessionID()
	require.NoError(t, mem.Save(ctx, NewState(keep, Params{}, time.Unix(0, 0))))

	evicted, err := LRUCapacityPolicy{MaxSessions: 1}.MakeRoom(ctx, mem, keep)
	require.NoError(t, err)
	assert.Zero(t, evicted)
	n, _ := mem.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestResetKeepsIDAndDiscardsState(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxSessions: 10}, nil)
	ctx := context.Background()

	st, _, err := m.GetOrCreate(ctx, "", Params{Problem: "before"})
	require.NoError(t, err)
	st.HContext = []string{"plan"}
	st.PlateauCount = 2
	require.NoError(t, m.Update(ctx, st, OpHPlan, "plan"))

	reset, err := m.Reset(ctx, st.ID, Params{Problem: "after"})
	require.NoError(t, err)
	assert.Equal(t, st.ID, reset.ID)
	assert.Empty(t, reset.HContext)
	assert.Empty(t, reset.RecentDecisions)
	assert.Zero(t, reset.PlateauCount)
	assert.Equal(t, "after", reset.Problem)
	assert.Equal(t, st.CreatedAt, reset.CreatedAt)
}

func TestUpdateBookkeeping(t *testing.T) {
	m, clock := newTestManager(t, Options{MaxSessions: 10}, nil)
	ctx := context.Background()

	st, _, err := m.GetOrCreate(ctx, "", Params{})
	require.NoError(t, err)
	st.EnqueueAction(OpLExecute)
	st.EnqueueAction(OpHUpdate)

	for i := 0; i < MaxRecentDecisions+3; i++ {
		clock.Advance(time.Second)
		require.NoError(t, m.Update(ctx, st, OpLExecute, fmt.Sprintf("step   %d", i)))
	}

	stored, err := m.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, stored.RecentDecisions, MaxRecentDecisions)
	assert.Equal(t, fmt.Sprintf("l_execute:step %d", MaxRecentDecisions+2), stored.RecentDecisions[MaxRecentDecisions-1])
	assert.Empty(t, stored.PendingActions)
	assert.Equal(t, clock.Now(), stored.LastUpdated)
}

func TestMemoryBackendHandsOutCopies(t *testing.T) {
	mem, err := NewMemoryBackend(4)
	require.NoError(t, err)
	ctx := context.Background()

	st := NewState(utils.GenerateSessionID(), Params{}, time.Now())
	st.HContext = []string{"original"}
	require.NoError(t, mem.Save(ctx, st))

	st.HContext[0] = "mutated after save"
	loaded, err := mem.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", loaded.HContext[0])

	loaded.HContext[0] = "mutated after load"
	again, err := mem.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.HContext[0])
}

func TestOperationPriorityTable(t *testing.T) {
	want := map[Operation]int{
		OpAutoReason: 0,
		OpHPlan:      1,
		OpLExecute:   2,
		OpHUpdate:    3,
		OpEvaluate:   4,
		OpHaltCheck:  5,
	}
	for op, p := range want {
		assert.Equal(t, p, op.Priority(), op)
		assert.True(t, op.Valid())
	}
	assert.Equal(t, -1, Operation("jump").Priority())
	assert.False(t, Operation("jump").Valid())
	assert.Len(t, AllOperations(), len(want))
}
