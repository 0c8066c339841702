package audit_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/serroba/guardflux/internal/audit"
	"github.com/serroba/guardflux/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvent() audit.Event {
	return audit.Event{
		ID:       "V1StGXR8_Z5jdHi6B-myT",
		Function: audit.FunctionRateLimit,
		Message:  "LimitExceeded",
		Metadata: audit.Metadata{
			Identity: "user-1",
			Options:  audit.Options{Route: "/v1/items", CycleTime: 60, MaxRequests: 3},
			ClientIP: "10.0.0.1",
		},
		Timestamp: time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC),
	}
}

type collectingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *collectingSink) OnDecision(_ context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, e)
}

func TestLoggerSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := audit.NewLoggerSink(zap.New(core))

	sink.OnDecision(context.Background(), sampleEvent())

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "LimitExceeded", fields["message"])
	assert.Equal(t, "user-1", fields["identity"])
	assert.Equal(t, "/v1/items", fields["route"])
}

func TestPublisherSink(t *testing.T) {
	t.Run("publishes the event", func(t *testing.T) {
		var got []*audit.Event

		sink := audit.NewPublisherSink(func(_ context.Context, e *audit.Event) error {
			got = append(got, e)

			return nil
		}, zap.NewNop())

		sink.OnDecision(context.Background(), sampleEvent())

		require.Len(t, got, 1)
		assert.Equal(t, sampleEvent(), *got[0])
	})

	t.Run("logs publish failures", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		sink := audit.NewPublisherSink(func(context.Context, *audit.Event) error {
			return errors.New("broker down")
		}, zap.New(core))

		sink.OnDecision(context.Background(), sampleEvent())

		assert.Equal(t, 1, logs.FilterMessage("failed to publish audit event").Len())
	})
}

func TestMultiSink(t *testing.T) {
	first, second := &collectingSink{}, &collectingSink{}
	sink := audit.MultiSink{first, audit.NopSink{}, second}

	sink.OnDecision(context.Background(), sampleEvent())

	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
}

type memoryStore struct {
	mu     sync.Mutex
	events map[string]audit.Event
	err    error
}

func (m *memoryStore) SaveEvent(_ context.Context, e *audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	if m.events == nil {
		m.events = make(map[string]audit.Event)
	}

	m.events[e.ID] = *e

	return nil
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.events)
}

func TestNewHandler(t *testing.T) {
	t.Run("persists the event", func(t *testing.T) {
		s := &memoryStore{}
		event := sampleEvent()

		require.NoError(t, audit.NewHandler(s)(context.Background(), &event))
		assert.Equal(t, event, s.events[event.ID])
	})

	t.Run("propagates store errors", func(t *testing.T) {
		s := &memoryStore{err: errors.New("db down")}
		event := sampleEvent()

		assert.Error(t, audit.NewHandler(s)(context.Background(), &event))
	})
}

func TestPublishAndConsume(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	s := &memoryStore{}
	consumer := messaging.NewConsumer(pubSub, audit.TopicDecision, audit.NewHandler(s), zap.NewNop())

	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Shutdown()

	sink := audit.NewPublisherSink(audit.NewPublishFunc(pubSub), zap.NewNop())
	sink.OnDecision(context.Background(), sampleEvent())

	assert.Eventually(t, func() bool { return s.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewPublishFunc_MessageShape(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	msgs, err := pubSub.Subscribe(context.Background(), audit.TopicDecision)
	require.NoError(t, err)

	event := sampleEvent()
	require.NoError(t, audit.NewPublishFunc(pubSub)(context.Background(), &event))

	select {
	case msg := <-msgs:
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, audit.FunctionRateLimit, msg.Metadata.Get("function"))

		var decoded audit.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, event.Metadata, decoded.Metadata)
		assert.True(t, event.Timestamp.Equal(decoded.Timestamp))

		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}
