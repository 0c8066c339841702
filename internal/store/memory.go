package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/guardflux/internal/ratelimit"
)

// MemoryRecordStore is an in-memory implementation of ratelimit.RecordStore.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]ratelimit.Record
}

// NewMemoryRecordStore creates a new in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[string]ratelimit.Record),
	}
}

func (m *MemoryRecordStore) Load(_ context.Context, key string) (*ratelimit.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, ratelimit.ErrNotFound
	}

	return &rec, nil
}

func (m *MemoryRecordStore) Save(_ context.Context, rec *ratelimit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.records[rec.Key]

	switch {
	case rec.Version == 0 && exists:
		return ratelimit.ErrConflict
	case rec.Version != 0 && (!exists || stored.Version != rec.Version):
		return ratelimit.ErrConflict
	}

	rec.Version++
	m.records[rec.Key] = *rec

	return nil
}

func (m *MemoryRecordStore) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64

	for key, rec := range m.records {
		if rec.WindowStart.Before(before) {
			delete(m.records, key)
			deleted++
		}
	}

	return deleted, nil
}

// MemoryCounterStore is an in-memory implementation of ratelimit.CounterStore
// with per-key expiry.
type MemoryCounterStore struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
	prefix   string
	clock    func() time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryCounterStore creates a new in-memory counter store. A nil clock
// selects time.Now.
func NewMemoryCounterStore(prefix string, clock func() time.Time) *MemoryCounterStore {
	if clock == nil {
		clock = time.Now
	}

	return &MemoryCounterStore{
		counters: make(map[string]memoryCounter),
		prefix:   prefix,
		clock:    clock,
	}
}

func (m *MemoryCounterStore) Increment(_ context.Context, key ratelimit.Key, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	k := CounterKey(m.prefix, key)

	c, ok := m.counters[k]
	if !ok || !now.Before(c.expiresAt) {
		c = memoryCounter{expiresAt: now.Add(ttl)}
	}

	c.count++
	m.counters[k] = c

	return c.count, nil
}

// Purge drops counters that had expired by before. Expired counters are
// already ignored by Increment; purging only frees their memory.
func (m *MemoryCounterStore) Purge(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64

	for k, c := range m.counters {
		if !c.expiresAt.After(before) {
			delete(m.counters, k)
			deleted++
		}
	}

	return deleted, nil
}

// Compile-time checks.
var (
	_ ratelimit.Purger       = (*MemoryCounterStore)(nil)
	_ ratelimit.RecordStore  = (*MemoryRecordStore)(nil)
	_ ratelimit.Purger       = (*MemoryRecordStore)(nil)
	_ ratelimit.CounterStore = (*MemoryCounterStore)(nil)
)
