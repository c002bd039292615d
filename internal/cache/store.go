// Package cache is a local store of named query groups. It never interprets
// cached contents; consumers register a fetcher per group and the
// coordinator drives staleness and refetching.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FetchFunc loads the current server-side value of a query group.
type FetchFunc func(ctx context.Context) (any, error)

type entry struct {
	key       Key
	fetch     FetchFunc
	data      any
	err       error
	fetched   bool
	stale     bool
	fetchedAt time.Time
	watchers  int
}

// Store holds query groups keyed hierarchically. All staleness mutations go
// through Invalidate/Refetch; consumers only read via Get.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	log     *zerolog.Logger
}

// New builds an empty store.
func New(logger *zerolog.Logger) *Store {
	return &Store{
		entries: make(map[string]*entry),
		log:     logger,
	}
}

// Register binds a fetcher to a group key. Re-registering replaces the
// fetcher but keeps cached data.
func (s *Store) Register(key Key, fetch FetchFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key.String()]; ok {
		e.fetch = fetch
		return
	}
	s.entries[key.String()] = &entry{key: key, fetch: fetch, stale: true}
}

// Get returns the group's data, fetching first if it was never loaded or is
// marked stale.
func (s *Store) Get(ctx context.Context, key Key) (any, error) {
	s.mu.Lock()
	e, ok := s.entries[key.String()]
	if !ok {
		s.mu.Unlock()
		return nil, ErrUnknownGroup
	}
	if e.fetched && !e.stale {
		data, err := e.data, e.err
		s.mu.Unlock()
		return data, err
	}
	fetch := e.fetch
	s.mu.Unlock()

	data, err := fetch(ctx)

	s.mu.Lock()
	e.data = data
	e.err = err
	e.fetched = true
	e.stale = false
	e.fetchedAt = time.Now()
	s.mu.Unlock()
	return data, err
}

// Watch marks a group as actively observed and returns an unwatch func.
// Refetch ignores watcher state on purpose; Watch exists so callers can
// distinguish mounted views when inspecting the store.
func (s *Store) Watch(key Key) func() {
	s.mu.Lock()
	e, ok := s.entries[key.String()]
	if ok {
		e.watchers++
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if e, ok := s.entries[key.String()]; ok && e.watchers > 0 {
				e.watchers--
			}
			s.mu.Unlock()
		})
	}
}

// Invalidate marks every group under prefix as stale and returns how many
// groups were touched. Cached data stays visible until refetched.
func (s *Store) Invalidate(prefix Key) int {
	return s.InvalidateFunc(func(k Key) bool { return k.HasPrefix(prefix) })
}

// InvalidateFunc marks every group matching pred as stale.
func (s *Store) InvalidateFunc(pred func(Key) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if pred(e.key) {
			e.stale = true
			n++
		}
	}
	return n
}

// Refetch reloads every group under prefix regardless of watcher state, so
// a view mounted later never shows data known to be outdated.
func (s *Store) Refetch(ctx context.Context, prefix Key) {
	s.RefetchFunc(ctx, func(k Key) bool { return k.HasPrefix(prefix) })
}

// RefetchFunc reloads every group matching pred regardless of watcher state.
func (s *Store) RefetchFunc(ctx context.Context, pred func(Key) bool) {
	type job struct {
		e     *entry
		fetch FetchFunc
	}
	s.mu.Lock()
	var matched []job
	for _, e := range s.entries {
		if pred(e.key) {
			matched = append(matched, job{e: e, fetch: e.fetch})
		}
	}
	s.mu.Unlock()

	for _, j := range matched {
		e := j.e
		data, err := j.fetch(ctx)
		s.mu.Lock()
		e.data = data
		e.err = err
		e.fetched = true
		e.stale = false
		e.fetchedAt = time.Now()
		s.mu.Unlock()
		if err != nil && s.log != nil {
			s.log.Warn().Err(err).Str("group", e.key.String()).Msg("refetch failed")
		}
	}
}

// IsStale reports whether the group is marked stale. Unknown groups report
// false.
func (s *Store) IsStale(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key.String()]; ok {
		return e.stale
	}
	return false
}

// Keys lists all registered group keys.
func (s *Store) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]Key, 0, len(s.entries))
	for _, e := range s.entries {
		keys = append(keys, e.key)
	}
	return keys
}
