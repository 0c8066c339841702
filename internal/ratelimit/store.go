package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by RecordStore.Load when no record exists for the key.
	ErrNotFound = errors.New("rate limit record not found")
	// ErrConflict is returned by RecordStore.Save when the stored version changed since Load.
	ErrConflict = errors.New("rate limit record version conflict")
	// ErrRetriesExhausted is reported when every save attempt hit a conflict.
	ErrRetriesExhausted = errors.New("rate limit save retries exhausted")
)

// RecordStore persists counter records with read-then-write semantics.
// It provides no atomicity between Load and Save; conflicting writers are
// detected through Record.Version.
type RecordStore interface {
	// Load returns the record for key, or ErrNotFound.
	Load(ctx context.Context, key string) (*Record, error)

	// Save inserts the record when its Version is zero and updates it otherwise.
	// It returns ErrConflict if the stored version no longer matches, and bumps
	// rec.Version on success.
	Save(ctx context.Context, rec *Record) error
}

// CounterStore is a remote counter with an atomic increment-with-expiry primitive.
type CounterStore interface {
	// Increment adds one to the counter for key and returns the new value.
	// When the result is 1 the counter is set to expire after ttl.
	Increment(ctx context.Context, key Key, ttl time.Duration) (count int64, err error)
}

// Purger deletes records whose window started before the given instant.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (deleted int64, err error)
}
