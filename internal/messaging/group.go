package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Runnable is a background component with a start/stop lifecycle. Consumers
// and the record janitor both satisfy it.
type Runnable interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// Group runs several Runnables under one lifecycle and closes shared
// resources, such as a subscriber, once they have all stopped.
type Group struct {
	runnables []Runnable
	closers   []io.Closer
	started   int
	logger    *zap.Logger
}

// NewGroup creates a group. closers are closed on Shutdown after every
// runnable has stopped.
func NewGroup(logger *zap.Logger, closers ...io.Closer) *Group {
	return &Group{
		closers: closers,
		logger:  logger,
	}
}

// Add registers a runnable with the group.
func (g *Group) Add(r Runnable) {
	g.runnables = append(g.runnables, r)
}

// Len returns the number of registered runnables.
func (g *Group) Len() int {
	return len(g.runnables)
}

// Start starts runnables in order. If one fails, those already started are
// shut down in reverse order.
func (g *Group) Start(ctx context.Context) error {
	for i, r := range g.runnables {
		if err := r.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.runnables[j].Shutdown()
			}

			g.started = 0

			return fmt.Errorf("start runnable %d: %w", i, err)
		}

		g.started = i + 1
	}

	g.logger.Info("group started", zap.Int("count", len(g.runnables)))

	return nil
}

// Shutdown stops started runnables in reverse order, then closes the shared
// resources. Every step runs even if an earlier one fails.
func (g *Group) Shutdown() error {
	g.logger.Info("shutting down group")

	var errs []error

	for i := g.started - 1; i >= 0; i-- {
		if err := g.runnables[i].Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}

	g.started = 0

	for _, c := range g.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
