package cache

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// DefaultCleanupInterval is how often a Memory store sweeps expired entries
// when no interval is configured.
const DefaultCleanupInterval = 10 * time.Second

// MemoryOption configures a Memory store.
type MemoryOption func(*Memory)

// WithCleanupInterval sets how often expired entries are physically removed.
// A non-positive interval disables the sweeper; expiry stays lazy.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.cleanupEvery = d }
}

// WithMemoryLogger sets the logger used by the sweeper.
func WithMemoryLogger(l hclog.Logger) MemoryOption {
	return func(m *Memory) { m.logger = l }
}

// Memory is an unbounded in-process Store. It is meant for a small, fixed
// key set; use L1 when the key space can grow.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry

	nowFunc func() time.Time
	logger  hclog.Logger

	cleanupEvery time.Duration
	stop         chan struct{}
	wg           sync.WaitGroup
	closeOnce    sync.Once
}

// entry is a stored value. A zero expiresAt means the entry never expires.
type entry struct {
	val       []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemory creates a Memory store and starts its sweeper. Call Close to stop
// the sweeper goroutine.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:      make(map[string]entry),
		nowFunc:      time.Now,
		logger:       hclog.NewNullLogger(),
		cleanupEvery: DefaultCleanupInterval,
		stop:         make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.cleanupEvery > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

// Get retrieves a value by key. Expired entries are reported as a miss.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || e.expired(m.now()) {
		return nil, false, nil
	}
	return bytes.Clone(e.val), true, nil
}

// Set stores a value under key with the given TTL, replacing any previous
// entry in a single step.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl <= 0 {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil
	}
	e := entry{val: bytes.Clone(val)}
	if ttl != NoExpiry {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

// Contains reports whether key holds an entry that has not expired.
func (m *Memory) Contains(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	return ok && !e.expired(m.now()), nil
}

// Len returns the number of physically stored entries, including expired
// entries the sweeper has not removed yet.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes all expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Close stops the sweeper. It is safe to call more than once. The store
// remains usable after Close; expiry is then purely lazy.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
	return nil
}

func (m *Memory) sweepLoop() {
	defer m.wg.Done()
	t := time.NewTicker(m.cleanupEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Trace("swept expired entries", "removed", n)
			}
		}
	}
}

func (m *Memory) now() time.Time {
	if m.nowFunc != nil {
		return m.nowFunc()
	}
	return time.Now()
}
