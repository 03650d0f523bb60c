package session

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	apperrors "hrm-reasoner/errors"
)

// DefaultMemoryCapacity is the hard ceiling of the in-memory backend when none is given.
const DefaultMemoryCapacity = 1000

// Backend persists sessions by id. Load returns an error matching errors.ErrNotFound for
// unknown ids. Implementations must hand out and keep private copies so callers can
// mutate a loaded session freely until they Save it.
type Backend interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, id string) error
	EvictBefore(ctx context.Context, ts time.Time) (int, error)
	Count(ctx context.Context) (int, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// OldestFinder is implemented by backends that can name their least recently updated
// session without a full scan.
type OldestFinder interface {
	Oldest(ctx context.Context, exclude string) (string, bool, error)
}

// MemoryBackend keeps sessions in a golang-lru cache. Save refreshes recency and Load
// only peeks, so cache order tracks LastUpdated order.
type MemoryBackend struct {
	cache *lru.Cache
}

// NewMemoryBackend creates an in-memory backend holding at most capacity sessions.
func NewMemoryBackend(capacity int) (*MemoryBackend, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &MemoryBackend{cache: cache}, nil
}

func (m *MemoryBackend) Load(_ context.Context, id string) (*State, error) {
	v, ok := m.cache.Peek(id)
	if !ok {
		return nil, apperrors.WrapErrorf(apperrors.ErrNotFound, "session %s", id)
	}
	return v.(*State).Clone(), nil
}

func (m *MemoryBackend) Save(_ context.Context, st *State) error {
	if st == nil || st.ID == "" {
		return apperrors.WrapError(apperrors.ErrInvalidInput, "session without id")
	}
	m.cache.Add(st.ID, st.Clone())
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.cache.Remove(id)
	return nil
}

func (m *MemoryBackend) EvictBefore(_ context.Context, ts time.Time) (int, error) {
	evicted := 0
	for _, key := range m.cache.Keys() {
		v, ok := m.cache.Peek(key)
		if !ok {
			continue
		}
		if v.(*State).LastUpdated.Before(ts) {
			m.cache.Remove(key)
			evicted++
		}
	}
	return evicted, nil
}

func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	return m.cache.Len(), nil
}

// ListIDs returns ids from least to most recently saved.
func (m *MemoryBackend) ListIDs(_ context.Context) ([]string, error) {
	keys := m.cache.Keys()
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k.(string))
	}
	return ids, nil
}

func (m *MemoryBackend) Oldest(_ context.Context, exclude string) (string, bool, error) {
	for _, k := range m.cache.Keys() {
		if id := k.(string); id != exclude {
			return id, true, nil
		}
	}
	return "", false, nil
}
