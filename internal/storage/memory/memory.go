// Package memory provides an in-process storage region with browser-like
// notification semantics: handles opened on the same region see each other's
// writes, never their own. It backs unit tests and single-process use.
package memory

import (
	"context"
	"fmt"
	"sync"

	"tqhub/internal/storage"
	"tqhub/pkg/platform/sentinel"
)

const watchBuffer = 16

// Region is the shared key-value area. Open one handle per logical "tab".
type Region struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[*watcher]struct{}
}

// NewRegion constructs an empty region.
func NewRegion() *Region {
	return &Region{
		values:   make(map[string][]byte),
		watchers: make(map[*watcher]struct{}),
	}
}

// Open returns a handle onto the region. Writes through one handle notify
// watchers registered through every other handle.
func (r *Region) Open() *Store {
	return &Store{region: r}
}

type watcher struct {
	owner *Store
	key   string
	ch    chan storage.Event
}

// Store is one handle onto a Region. It implements storage.Store.
type Store struct {
	region *Region
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.region.mu.RLock()
	defer s.region.mu.RUnlock()
	value, ok := s.region.values[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, sentinel.ErrNotFound)
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.region.mu.Lock()
	s.region.values[key] = stored
	s.notifyLocked(key, storage.EventSet)
	s.region.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.region.mu.Lock()
	defer s.region.mu.Unlock()
	if _, ok := s.region.values[key]; !ok {
		// Absent key: no write happened, so no event either.
		return nil
	}
	delete(s.region.values, key)
	s.notifyLocked(key, storage.EventCleared)
	return nil
}

func (s *Store) Watch(ctx context.Context, key string) (<-chan storage.Event, error) {
	w := &watcher{
		owner: s,
		key:   key,
		ch:    make(chan storage.Event, watchBuffer),
	}

	s.region.mu.Lock()
	s.region.watchers[w] = struct{}{}
	s.region.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.region.mu.Lock()
		delete(s.region.watchers, w)
		s.region.mu.Unlock()
		close(w.ch)
	}()

	return w.ch, nil
}

// notifyLocked fans an event out to watchers on sibling handles. The caller
// holds the region lock. Sends never block: a watcher that has fallen
// watchBuffer events behind loses the oldest semantics anyway, and the
// session layer treats every cleared event the same.
func (s *Store) notifyLocked(key string, kind storage.EventKind) {
	for w := range s.region.watchers {
		if w.owner == s || w.key != key {
			continue
		}
		select {
		case w.ch <- storage.Event{Key: key, Kind: kind}:
		default:
		}
	}
}
