package ratelimit_test

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/serroba/guardflux/internal/audit"
	"github.com/serroba/guardflux/internal/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *recordingSink) OnDecision(_ context.Context, event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

func (s *recordingSink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]audit.Event(nil), s.events...)
}

// scriptedStore wraps a RecordStore and injects failures.
type scriptedStore struct {
	inner ratelimit.RecordStore

	mu        sync.Mutex
	loads     int
	saves     int
	conflicts int // number of upcoming saves that report ErrConflict
	loadErr   error
	block     bool
	delay     time.Duration // added to every Load
}

func (s *scriptedStore) Load(ctx context.Context, key string) (*ratelimit.Record, error) {
	s.mu.Lock()
	s.loads++
	loadErr, block, delay := s.loadErr, s.block, s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if block {
		<-ctx.Done()

		return nil, ctx.Err()
	}

	if loadErr != nil {
		return nil, loadErr
	}

	return s.inner.Load(ctx, key)
}

func (s *scriptedStore) Save(ctx context.Context, rec *ratelimit.Record) error {
	s.mu.Lock()
	s.saves++

	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()

		return ratelimit.ErrConflict
	}

	s.mu.Unlock()

	return s.inner.Save(ctx, rec)
}

func (s *scriptedStore) counts() (loads, saves int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loads, s.saves
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)

	return func() string {
		mu.Lock()
		defer mu.Unlock()

		n++

		return "evt-" + strconv.Itoa(n)
	}
}
