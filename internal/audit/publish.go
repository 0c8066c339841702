package audit

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/serroba/guardflux/internal/messaging"
)

// NewPublishFunc publishes events to TopicDecision. The event id doubles as
// the message id so duplicate deliveries persist once.
func NewPublishFunc(publisher message.Publisher) messaging.Publish[Event] {
	return messaging.NewPublishFunc(publisher, TopicDecision,
		messaging.WithMessageID(func(e *Event) string { return e.ID }),
		messaging.WithMetadata(func(e *Event) map[string]string {
			return map[string]string{"function": e.Function, "message": e.Message}
		}),
	)
}
