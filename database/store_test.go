package database

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
)

var baseTime = time.Date(2026, 10, 1, 12, 0, 0, 123456789, time.UTC)

func newBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := OpenBadger(InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBadgerStore(db)
}

// newPostgresStore connects to HRM_TEST_POSTGRES_URL and starts from an empty table.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("HRM_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("HRM_TEST_POSTGRES_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = store.DB.ExecContext(ctx, `TRUNCATE reasoning_sessions`)
	require.NoError(t, err)
	return store
}

func sampleState(id string, updated time.Time) *session.State {
	st := session.NewState(id, session.Params{
		Problem:            "Build a login flow",
		HContext:           "Plan for problem: Build a login flow",
		SolutionCandidates: []string{"session cookies", "JWT"},
	}, updated)
	st.HCycle = 1
	st.LCycle = 2
	st.Metrics = session.Metrics{ConfidenceScore: 0.4, ConvergenceScore: 0.3, ComplexityAssessment: 5, ShouldContinue: true}
	st.MetricHistory = []float64{0.2, 0.4}
	st.PendingActions = []session.Operation{session.OpLExecute}
	st.FrameworkInsight = &session.FrameworkInsight{Workspace: "/src/app", Frameworks: []string{"gin"}}
	st.LastTrace = []session.TraceEntry{{Step: 1, Operation: session.OpHPlan, Note: "plan"}}
	st.LastHaltTrigger = session.TriggerPlateau
	return st
}

func backends(t *testing.T) map[string]func(*testing.T) session.Backend {
	return map[string]func(*testing.T) session.Backend{
		"badger":   func(t *testing.T) session.Backend { return newBadgerStore(t) },
		"postgres": func(t *testing.T) session.Backend { return newPostgresStore(t) },
	}
}

func TestBackendRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			want := sampleState("11111111-1111-4111-8111-111111111111", baseTime)

			require.NoError(t, store.Save(ctx, want))
			got, err := store.Load(ctx, want.ID)
			require.NoError(t, err)

			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackendLoadMissing(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			_, err := store.Load(context.Background(), "missing")
			assert.True(t, apperrors.IsNotFound(err), "err = %v", err)
		})
	}
}

func TestBackendEvictAndList(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			for i, id := range []string{"a", "b", "c"} {
				require.NoError(t, store.Save(ctx, sampleState(id, baseTime.Add(time.Duration(i)*time.Minute))))
			}

			n, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			evicted, err := store.EvictBefore(ctx, baseTime.Add(90*time.Second))
			require.NoError(t, err)
			assert.Equal(t, 2, evicted)

			ids, err := store.ListIDs(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"c"}, ids)

			require.NoError(t, store.Delete(ctx, "c"))
			require.NoError(t, store.Delete(ctx, "c"))
			n, err = store.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestBackendSaveOverwrites(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			st := sampleState("a", baseTime)
			require.NoError(t, store.Save(ctx, st))

			st.HCycle = 3
			st.LastUpdated = baseTime.Add(time.Minute)
			require.NoError(t, store.Save(ctx, st))

			got, err := store.Load(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, 3, got.HCycle)
			assert.True(t, got.LastUpdated.Equal(st.LastUpdated))

			ids, err := store.ListIDs(ctx)
			require.NoError(t, err)
			assert.Len(t, ids, 1)
		})
	}
}

func TestBackendRejectsAnonymousSession(t *testing.T) {
	store := newBadgerStore(t)
	err := store.Save(context.Background(), &session.State{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPostgresOldest(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b"} {
		require.NoError(t, store.Save(ctx, sampleState(id, baseTime.Add(time.Duration(i)*time.Minute))))
	}

	id, ok, err := store.Oldest(ctx, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", id)

	id, ok, err = store.Oldest(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", id)
}

func TestBadgerBackedManagerEvictsAtCapacity(t *testing.T) {
	store := newBadgerStore(t)
	opts := session.DefaultOptions()
	opts.MaxSessions = 2
	opts.TTL = 0
	clock := baseTime
	m, err := session.NewManager(store, opts, nil, session.WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		clock = clock.Add(time.Minute)
		st, _, err := m.GetOrCreate(ctx, "", session.Params{})
		require.NoError(t, err)
		ids = append(ids, st.ID)
	}

	kept, err := store.ListIDs(ctx)
	require.NoError(t, err)
	sort.Strings(kept)
	want := []string{ids[1], ids[2]}
	sort.Strings(want)
	assert.Equal(t, want, kept)
}

func TestOpenBadgerRequiresPath(t *testing.T) {
	_, err := OpenBadger(BadgerConfig{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfig)
}

func TestOpenBadgerOnDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenBadger(BadgerConfig{Path: dir + "/sessions"})
	require.NoError(t, err)
	store := NewBadgerStore(db)
	require.NoError(t, store.Save(context.Background(), sampleState("a", baseTime)))
	require.NoError(t, db.Close())

	db, err = OpenBadger(BadgerConfig{Path: dir + "/sessions"})
	require.NoError(t, err)
	defer db.Close()
	got, err := NewBadgerStore(db).Load(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "Build a login flow", got.Problem)
}
