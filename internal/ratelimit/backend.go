package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxRetries bounds how often a conflicting save is retried.
const DefaultMaxRetries = 3

// ErrNotCounted is returned when the caller's context ends while the request
// is still waiting for its key, before any store call was made.
var ErrNotCounted = errors.New("request not counted")

type storeTimeoutKey struct{}

func withStoreTimeout(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}

	return context.WithValue(ctx, storeTimeoutKey{}, d)
}

// StoreContext derives the context for a single store call, bounded by the
// engine's store timeout when one is set. Time spent before the call, such as
// waiting for a key, is not charged to it.
func StoreContext(ctx context.Context) (context.Context, context.CancelFunc) {
	d, ok := ctx.Value(storeTimeoutKey{}).(time.Duration)
	if !ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d)
}

// Backend counts one request for key and decides it. An error means the
// store could not be used; the engine maps it to ReasonStoreUnavailable,
// except ErrNotCounted which is returned to the caller. Store calls should
// run under StoreContext.
type Backend interface {
	Hit(ctx context.Context, key Key, opts Options, now time.Time) (Outcome, error)
}

// TransactionalBackend runs load, decide and save against a RecordStore.
// Callers in this process are serialized per key; writers in other processes
// are caught by the record version and the cycle is retried.
type TransactionalBackend struct {
	store      RecordStore
	policy     WindowPolicy
	locks      *keyLock
	maxRetries int
}

// NewTransactionalBackend creates a backend over a read-then-write store.
// maxRetries <= 0 selects DefaultMaxRetries.
func NewTransactionalBackend(store RecordStore, maxRetries int) *TransactionalBackend {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &TransactionalBackend{
		store:      store,
		locks:      newKeyLock(),
		maxRetries: maxRetries,
	}
}

func (b *TransactionalBackend) Hit(ctx context.Context, key Key, opts Options, now time.Time) (Outcome, error) {
	id := key.String()

	unlock, err := b.locks.Lock(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: waiting for key %q: %w", ErrNotCounted, id, err)
	}
	defer unlock()

	for range b.maxRetries {
		out, err := b.attempt(ctx, key, opts, now)
		if errors.Is(err, ErrConflict) {
			continue
		}

		return out, err
	}

	return Outcome{}, fmt.Errorf("%w: key %q after %d attempts", ErrRetriesExhausted, id, b.maxRetries)
}

func (b *TransactionalBackend) attempt(ctx context.Context, key Key, opts Options, now time.Time) (Outcome, error) {
	current, err := b.load(ctx, key.String())
	if err != nil {
		return Outcome{}, err
	}

	next, out := b.policy.Apply(key, current, opts, now)
	if next == nil {
		return out, nil
	}

	if err := b.save(ctx, next); err != nil {
		return Outcome{}, err
	}

	return out, nil
}

// load returns nil without error when the key has no record yet.
func (b *TransactionalBackend) load(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := StoreContext(ctx)
	defer cancel()

	rec, err := b.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}

	return rec, err
}

func (b *TransactionalBackend) save(ctx context.Context, rec *Record) error {
	ctx, cancel := StoreContext(ctx)
	defer cancel()

	return b.store.Save(ctx, rec)
}

// AtomicBackend delegates counting and window expiry to a CounterStore.
// New and WindowReset are indistinguishable here: the first increment of an
// expiry period always reports New. A denied request has still incremented
// the counter; it is not rolled back.
type AtomicBackend struct {
	store CounterStore
}

// NewAtomicBackend creates a backend over an atomic counter store.
func NewAtomicBackend(store CounterStore) *AtomicBackend {
	return &AtomicBackend{store: store}
}

func (b *AtomicBackend) Hit(ctx context.Context, key Key, opts Options, _ time.Time) (Outcome, error) {
	ctx, cancel := StoreContext(ctx)
	defer cancel()

	count, err := b.store.Increment(ctx, key, opts.Window())
	if err != nil {
		return Outcome{}, err
	}

	switch {
	case count > opts.MaxRequests:
		return Outcome{Allowed: false, Reason: ReasonLimitExceeded, Count: count}, nil
	case count == 1:
		return Outcome{Allowed: true, Reason: ReasonNew, Count: count}, nil
	default:
		return Outcome{Allowed: true, Reason: ReasonWithinWindow, Count: count}, nil
	}
}

// Compile-time checks.
var (
	_ Backend = (*TransactionalBackend)(nil)
	_ Backend = (*AtomicBackend)(nil)
)
