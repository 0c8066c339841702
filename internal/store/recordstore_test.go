package store_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serroba/guardflux/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type purgingRecordStore interface {
	ratelimit.RecordStore
	ratelimit.Purger
}

// testRecordStore runs the behaviour every RecordStore must share. Keys are
// namespaced by ns so a shared database can be reused between runs.
func testRecordStore(t *testing.T, s purgingRecordStore, ns string) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	newRecord := func(key string, at time.Time) *ratelimit.Record {
		return &ratelimit.Record{
			Key:          ns + key,
			UserID:       ns + "user",
			Route:        "/route",
			RequestCount: 1,
			WindowStart:  at,
		}
	}

	t.Run("load missing", func(t *testing.T) {
		_, err := s.Load(ctx, ns+"missing")

		assert.ErrorIs(t, err, ratelimit.ErrNotFound)
	})

	t.Run("insert then load", func(t *testing.T) {
		rec := newRecord("roundtrip", now)

		require.NoError(t, s.Save(ctx, rec))
		assert.Equal(t, int64(1), rec.Version)

		got, err := s.Load(ctx, rec.Key)
		require.NoError(t, err)
		assert.Equal(t, rec.Key, got.Key)
		assert.Equal(t, rec.UserID, got.UserID)
		assert.Equal(t, rec.Route, got.Route)
		assert.Equal(t, int64(1), got.RequestCount)
		assert.True(t, got.WindowStart.Equal(rec.WindowStart), "got %v want %v", got.WindowStart, rec.WindowStart)
		assert.Equal(t, int64(1), got.Version)
	})

	t.Run("update bumps version", func(t *testing.T) {
		rec := newRecord("update", now)
		require.NoError(t, s.Save(ctx, rec))

		rec.RequestCount = 2
		require.NoError(t, s.Save(ctx, rec))
		assert.Equal(t, int64(2), rec.Version)

		got, err := s.Load(ctx, rec.Key)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.RequestCount)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("second insert conflicts", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newRecord("dup", now)))

		err := s.Save(ctx, newRecord("dup", now))
		assert.ErrorIs(t, err, ratelimit.ErrConflict)
	})

	t.Run("stale update conflicts", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, newRecord("stale", now)))

		first, err := s.Load(ctx, ns+"stale")
		require.NoError(t, err)

		second, err := s.Load(ctx, ns+"stale")
		require.NoError(t, err)

		first.RequestCount = 2
		require.NoError(t, s.Save(ctx, first))

		second.RequestCount = 5
		assert.ErrorIs(t, s.Save(ctx, second), ratelimit.ErrConflict)

		got, err := s.Load(ctx, ns+"stale")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.RequestCount)
	})

	t.Run("purge removes idle records only", func(t *testing.T) {
		old := newRecord("old", now.Add(-48*time.Hour))
		fresh := newRecord("fresh", now)

		require.NoError(t, s.Save(ctx, old))
		require.NoError(t, s.Save(ctx, fresh))

		deleted, err := s.Purge(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, deleted, int64(1))

		_, err = s.Load(ctx, old.Key)
		assert.ErrorIs(t, err, ratelimit.ErrNotFound)

		_, err = s.Load(ctx, fresh.Key)
		assert.NoError(t, err)
	})

	t.Run("engine admits exactly max under concurrency", func(t *testing.T) {
		const (
			callers = 30
			limit   = 7
		)

		engine, err := ratelimit.NewEngine(ratelimit.NewTransactionalBackend(s, 0), ratelimit.FailClosed)
		require.NoError(t, err)

		opts := ratelimit.Options{Route: "/concurrent", CycleTime: 3600, MaxRequests: limit}

		var allowed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)

		for range callers {
			g.Go(func() error {
				d, err := engine.Evaluate(gctx, ns+"engine", opts, nil)
				if err != nil {
					return err
				}

				if d.Reason == ratelimit.ReasonStoreUnavailable {
					return d.Err
				}

				if d.Allowed {
					allowed.Add(1)
				}

				return nil
			})
		}

		require.NoError(t, g.Wait())
		assert.Equal(t, int64(limit), allowed.Load())
	})
}
