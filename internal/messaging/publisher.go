package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Publish sends one typed event.
type Publish[T any] func(ctx context.Context, event *T) error

// PublishOption customises the messages built by NewPublishFunc.
type PublishOption[T any] func(*publishConfig[T])

type publishConfig[T any] struct {
	messageID func(*T) string
	metadata  func(*T) map[string]string
}

// WithMessageID derives the message UUID from the event instead of generating one.
func WithMessageID[T any](fn func(*T) string) PublishOption[T] {
	return func(c *publishConfig[T]) { c.messageID = fn }
}

// WithMetadata attaches metadata derived from the event to each message.
func WithMetadata[T any](fn func(*T) map[string]string) PublishOption[T] {
	return func(c *publishConfig[T]) { c.metadata = fn }
}

// NewPublishFunc creates a typed publish function for a specific topic.
// Events are encoded as JSON.
func NewPublishFunc[T any](publisher message.Publisher, topic string, opts ...PublishOption[T]) Publish[T] {
	cfg := publishConfig[T]{
		messageID: func(*T) string { return watermill.NewUUID() },
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, event *T) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode %s event: %w", topic, err)
		}

		id := cfg.messageID(event)
		if id == "" {
			id = watermill.NewUUID()
		}

		msg := message.NewMessage(id, payload)
		msg.SetContext(ctx)

		if cfg.metadata != nil {
			for k, v := range cfg.metadata(event) {
				msg.Metadata.Set(k, v)
			}
		}

		return publisher.Publish(topic, msg)
	}
}

// PublisherGroup owns the publisher shared by every typed publish function.
type PublisherGroup struct {
	publisher message.Publisher
}

// NewPublisherGroup creates a new publisher group.
func NewPublisherGroup(publisher message.Publisher) *PublisherGroup {
	return &PublisherGroup{publisher: publisher}
}

// Publisher returns the underlying message publisher for creating typed publish functions.
func (g *PublisherGroup) Publisher() message.Publisher {
	return g.publisher
}

// Shutdown closes the underlying publisher.
func (g *PublisherGroup) Shutdown() error {
	return g.publisher.Close()
}
