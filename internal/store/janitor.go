package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/serroba/guardflux/internal/ratelimit"
	"go.uber.org/zap"
)

var (
	// ErrJanitorStarted is returned by Start on a janitor that is already running.
	ErrJanitorStarted = errors.New("janitor already started")
	// ErrRetention is returned by Start when the retention or interval is not positive.
	ErrRetention = errors.New("invalid janitor retention")
)

// Janitor periodically deletes records idle for longer than the retention period.
// The retention must exceed the longest cycle time in use, or counts are reset
// mid-window.
type Janitor struct {
	mu        sync.Mutex
	purger    ratelimit.Purger
	retention time.Duration
	interval  time.Duration
	clock     func() time.Time
	logger    *zap.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewJanitor creates a janitor. It does nothing until Start is called.
func NewJanitor(purger ratelimit.Purger, retention, interval time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		purger:    purger,
		retention: retention,
		interval:  interval,
		clock:     time.Now,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// RunOnce purges records older than the retention period.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	return j.purger.Purge(ctx, j.clock().Add(-j.retention))
}

// Start runs RunOnce on every tick until Shutdown or ctx is cancelled.
// A janitor can be started once.
func (j *Janitor) Start(ctx context.Context) error {
	if j.retention <= 0 || j.interval <= 0 {
		return fmt.Errorf("%w: retention %s, interval %s", ErrRetention, j.retention, j.interval)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		return ErrJanitorStarted
	}

	ctx, j.cancel = context.WithCancel(ctx)

	go j.loop(ctx)

	return nil
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			deleted, err := j.RunOnce(ctx)
			if err != nil {
				j.logger.Error("purge failed", zap.Error(err))

				continue
			}

			j.logger.Debug("purged idle rate limit records", zap.Int64("deleted", deleted))
		}
	}
}

// Shutdown stops the loop and waits for it to exit.
func (j *Janitor) Shutdown() error {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	<-j.done

	return nil
}
