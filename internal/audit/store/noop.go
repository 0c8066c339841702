package store

import (
	"context"

	"github.com/serroba/guardflux/internal/audit"
	"go.uber.org/zap"
)

// Noop is a no-op implementation of audit.Store that logs events.
type Noop struct {
	logger *zap.Logger
}

// NewNoop creates a new no-op audit store.
func NewNoop(logger *zap.Logger) *Noop {
	return &Noop{logger: logger}
}

func (n *Noop) SaveEvent(_ context.Context, event *audit.Event) error {
	n.logger.Info("audit event received",
		zap.String("id", event.ID),
		zap.String("function", event.Function),
		zap.String("message", event.Message),
		zap.String("identity", event.Metadata.Identity),
		zap.Time("timestamp", event.Timestamp),
	)

	return nil
}
