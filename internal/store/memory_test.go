package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/serroba/guardflux/internal/ratelimit"
	"github.com/serroba/guardflux/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecordStore(t *testing.T) {
	testRecordStore(t, store.NewMemoryRecordStore(), "")

	t.Run("loaded records are copies", func(t *testing.T) {
		ctx := context.Background()
		s := store.NewMemoryRecordStore()

		rec := &ratelimit.Record{Key: "k", UserID: "u", RequestCount: 1, WindowStart: time.Now()}
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.Load(ctx, "k")
		require.NoError(t, err)

		got.RequestCount = 99

		again, err := s.Load(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, int64(1), again.RequestCount)
	})
}

func TestMemoryCounterStore(t *testing.T) {
	ctx := context.Background()
	key := ratelimit.NewKey(ratelimit.ScopePerRoute, "u1", "/r")

	t.Run("counts and expires", func(t *testing.T) {
		now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
		s := store.NewMemoryCounterStore("rl", func() time.Time { return now })

		for want := int64(1); want <= 3; want++ {
			got, err := s.Increment(ctx, key, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}

		now = now.Add(59 * time.Second)

		got, err := s.Increment(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(4), got, "expiry is armed on the first hit only")

		now = now.Add(time.Second)

		got, err = s.Increment(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := store.NewMemoryCounterStore("rl", nil)
		other := ratelimit.NewKey(ratelimit.ScopePerRoute, "u2", "/r")

		_, _ = s.Increment(ctx, key, time.Minute)
		_, _ = s.Increment(ctx, key, time.Minute)

		got, err := s.Increment(ctx, other, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := store.NewMemoryCounterStore("rl", nil)

		var wg sync.WaitGroup

		for range 100 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				_, _ = s.Increment(ctx, key, time.Minute)
			}()
		}

		wg.Wait()

		got, err := s.Increment(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(101), got)
	})

	t.Run("purge drops only expired counters", func(t *testing.T) {
		now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
		s := store.NewMemoryCounterStore("rl", func() time.Time { return now })
		other := ratelimit.NewKey(ratelimit.ScopePerRoute, "u2", "/r")

		_, err := s.Increment(ctx, key, time.Minute)
		require.NoError(t, err)

		now = now.Add(30 * time.Second)

		_, err = s.Increment(ctx, other, time.Minute)
		require.NoError(t, err)

		deleted, err := s.Purge(ctx, now.Add(45*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		got, err := s.Increment(ctx, other, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(2), got, "live counter survives the purge")
	})
}
