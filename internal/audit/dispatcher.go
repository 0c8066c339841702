package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultBufferSize is the number of events a Dispatcher holds before dropping.
const DefaultBufferSize = 1024

// Dispatcher hands events to a sink on a background goroutine, so a slow or
// unreachable sink never holds up a decision. When the buffer is full events
// are dropped and counted. Shutdown delivers what is still buffered.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger

	ch        chan queued
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

type queued struct {
	ctx   context.Context
	event Event
}

// NewDispatcher starts a dispatcher in front of sink. Each delivery is bounded
// by timeout when it is positive. bufferSize <= 0 selects DefaultBufferSize.
func NewDispatcher(sink Sink, bufferSize int, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	d := &Dispatcher{
		sink:    sink,
		timeout: timeout,
		logger:  logger,
		ch:      make(chan queued, bufferSize),
		done:    make(chan struct{}),
	}

	d.wg.Add(1)

	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case q := <-d.ch:
			d.deliver(q)
		case <-d.done:
			for {
				select {
				case q := <-d.ch:
					d.deliver(q)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(q queued) {
	ctx := q.ctx

	if d.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	d.sink.OnDecision(ctx, q.event)
}

// OnDecision queues the event and returns immediately. The request context
// keeps its values but not its cancellation.
func (d *Dispatcher) OnDecision(ctx context.Context, event Event) {
	if d.closed.Load() {
		return
	}

	select {
	case d.ch <- queued{ctx: context.WithoutCancel(ctx), event: event}:
	case <-d.done:
	default:
		n := d.dropped.Add(1)
		d.logger.Warn("audit buffer full, event dropped",
			zap.String("id", event.ID),
			zap.Uint64("dropped", n),
		)
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Shutdown stops accepting events and waits until buffered ones are delivered.
func (d *Dispatcher) Shutdown() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})

	return nil
}

// Compile-time check.
var _ Sink = (*Dispatcher)(nil)
