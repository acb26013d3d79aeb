package session

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

type entry struct {
	mu    sync.Mutex
	state State
}

// MemoryStore is an in-process Store. Creation and removal of sessions take
// a store-wide lock; work on one session only holds that session's lock.
type MemoryStore struct {
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
	cache    *cache.Cache
	mu       sync.Mutex
	lastScan time.Time
}

// NewMemoryStore creates an empty store. The underlying cache also drops
// entries idle past the timeout on its own janitor schedule.
func NewMemoryStore(opts Options, options ...Option) *MemoryStore {
	opts = opts.withDefaults()
	set := applyOptions(options)
	return &MemoryStore{
		opts:     opts,
		logger:   set.logger,
		now:      set.now,
		cache:    cache.New(opts.Timeout, opts.Timeout/2),
		lastScan: set.now(),
	}
}

func (s *MemoryStore) expired(st *State, now time.Time) bool {
	return now.Sub(st.LastActivity) > s.opts.Timeout
}

// acquire returns the live entry for id, locked, creating it when missing or expired.
func (s *MemoryStore) acquire(id string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastScan) >= s.opts.SweepInterval {
		s.sweepLocked(now)
	}

	if x, ok := s.cache.Get(id); ok {
		e := x.(*entry)
		e.mu.Lock()
		if !s.expired(&e.state, now) {
			s.cache.Set(id, e, cache.DefaultExpiration)
			return e
		}
		e.mu.Unlock()
		s.cache.Delete(id)
		s.logger.Debug("session expired", zap.String("session_id", id))
	}

	e := &entry{state: newState(id, now)}
	e.mu.Lock()
	s.cache.Set(id, e, cache.DefaultExpiration)
	s.logger.Debug("session created", zap.String("session_id", id))
	return e
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(_ context.Context, id string) (*State, error) {
	e := s.acquire(id)
	defer e.mu.Unlock()
	e.state.LastActivity = s.now()
	return e.state.clone(), nil
}

// RecordExchange implements Store. An unknown id creates the session.
func (s *MemoryStore) RecordExchange(_ context.Context, id string, item *models.CatalogItem, question, answer string) error {
	e := s.acquire(id)
	defer e.mu.Unlock()
	e.state.record(item, question, answer, s.now(), s.opts.MaxHistory)
	return nil
}

// EvictExpired implements Store.
func (s *MemoryStore) EvictExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(s.now()), nil
}

func (s *MemoryStore) sweepLocked(now time.Time) int {
	s.lastScan = now
	n := 0
	for id, it := range s.cache.Items() {
		e := it.Object.(*entry)
		e.mu.Lock()
		expired := s.expired(&e.state, now)
		e.mu.Unlock()
		if expired {
			s.cache.Delete(id)
			n++
		}
	}
	s.cache.DeleteExpired()
	if n > 0 {
		s.logger.Debug("evicted expired sessions", zap.Int("count", n))
	}
	return n
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	return s.cache.ItemCount(), nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}
