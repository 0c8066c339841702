package audit

import (
	"context"

	"github.com/serroba/guardflux/internal/messaging"
	"go.uber.org/zap"
)

// Sink receives audit events. Implementations must be safe for concurrent
// use and must not block the caller for long.
type Sink interface {
	OnDecision(ctx context.Context, event Event)
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) OnDecision(context.Context, Event) {}

// LoggerSink writes events to a zap logger.
type LoggerSink struct {
	logger *zap.Logger
}

// NewLoggerSink creates a sink that logs events at warn level.
func NewLoggerSink(logger *zap.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

func (s *LoggerSink) OnDecision(_ context.Context, event Event) {
	s.logger.Warn("request denied",
		zap.String("id", event.ID),
		zap.String("function", event.Function),
		zap.String("message", event.Message),
		zap.String("identity", event.Metadata.Identity),
		zap.String("route", event.Metadata.Options.Route),
		zap.Int64("cycleTime", event.Metadata.Options.CycleTime),
		zap.Int64("maxRequests", event.Metadata.Options.MaxRequests),
		zap.String("clientIp", event.Metadata.ClientIP),
	)
}

// PublisherSink forwards events to a message topic for asynchronous persistence.
// Publishing is synchronous; put it behind a Dispatcher to keep it off the
// request path.
type PublisherSink struct {
	publish messaging.Publish[Event]
	logger  *zap.Logger
}

// NewPublisherSink creates a sink that publishes each event.
func NewPublisherSink(publish messaging.Publish[Event], logger *zap.Logger) *PublisherSink {
	return &PublisherSink{publish: publish, logger: logger}
}

func (s *PublisherSink) OnDecision(ctx context.Context, event Event) {
	if err := s.publish(ctx, &event); err != nil {
		s.logger.Error("failed to publish audit event",
			zap.String("id", event.ID),
			zap.String("function", event.Function),
			zap.Error(err),
		)
	}
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) OnDecision(ctx context.Context, event Event) {
	for _, s := range m {
		s.OnDecision(ctx, event)
	}
}

// Compile-time checks.
var (
	_ Sink = NopSink{}
	_ Sink = (*LoggerSink)(nil)
	_ Sink = (*PublisherSink)(nil)
	_ Sink = MultiSink(nil)
)
