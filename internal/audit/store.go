package audit

import (
	"context"

	"github.com/serroba/guardflux/internal/messaging"
)

// Store defines the interface for persisting audit events.
type Store interface {
	SaveEvent(ctx context.Context, event *Event) error
}

// NewHandler returns a message handler that persists each consumed event.
func NewHandler(store Store) messaging.Handler[Event] {
	return func(ctx context.Context, event *Event) error {
		return store.SaveEvent(ctx, event)
	}
}
