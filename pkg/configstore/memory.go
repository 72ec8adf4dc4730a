package configstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Repository, used when no database is configured
// and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[SeriesKey][]Revision
	index  map[RevisionID]SeriesKey

	locksMu sync.Mutex
	locks   map[SeriesKey]*sync.Mutex
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series: make(map[SeriesKey][]Revision),
		index:  make(map[RevisionID]SeriesKey),
		locks:  make(map[SeriesKey]*sync.Mutex),
	}
}

func (m *MemoryStore) lock(key SeriesKey) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Series loads the current history of key.
func (m *MemoryStore) Series(_ context.Context, key SeriesKey) (*Series, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return NewSeries(key, m.series[key]), nil
}

// UpdateSeries runs fn under the lock of key and stores the result.
func (m *MemoryStore) UpdateSeries(ctx context.Context, key SeriesKey, fn func(*Series) error) error {
	l := m.lock(key)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("updating series %s: %w", key, err)
	}

	s, err := m.Series(ctx, key)
	if err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}

	changes := s.Changes()
	if changes.Empty() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range changes.Deleted {
		delete(m.index, id)
	}
	for _, r := range changes.Inserted {
		m.index[r.ID] = key
	}
	revs := s.Revisions()
	if len(revs) == 0 {
		delete(m.series, key)
		return nil
	}
	m.series[key] = revs
	return nil
}

// Revision returns a revision of the element by id.
func (m *MemoryStore) Revision(_ context.Context, elementID uuid.UUID, id RevisionID) (Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key, ok := m.index[id]
	if !ok || key.ElementID != elementID {
		return Revision{}, fmt.Errorf("%w: revision %s", ErrNotFound, id)
	}
	for _, r := range m.series[key] {
		if r.ID == id {
			return r.clone(), nil
		}
	}
	return Revision{}, fmt.Errorf("%w: revision %s", ErrNotFound, id)
}

// LatestRevisions returns the most recent revision of every series of the element.
func (m *MemoryStore) LatestRevisions(_ context.Context, elementID uuid.UUID) ([]Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Revision
	for key, revs := range m.series {
		if key.ElementID == elementID && len(revs) > 0 {
			out = append(out, revs[0].clone())
		}
	}
	slices.SortFunc(out, func(a, b Revision) int {
		return strings.Compare(string(a.Series), string(b.Series))
	})
	return out, nil
}

// SeriesNames lists the series of the element in name order.
func (m *MemoryStore) SeriesNames(_ context.Context, elementID uuid.UUID) ([]SeriesName, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []SeriesName
	for key := range m.series {
		if key.ElementID == elementID {
			names = append(names, key.Name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Verify interface compliance.
var _ Repository = (*MemoryStore)(nil)
