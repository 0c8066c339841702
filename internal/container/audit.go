package container

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/guardflux/internal/audit"
	auditstore "github.com/serroba/guardflux/internal/audit/store"
	"github.com/serroba/guardflux/internal/messaging"
	"go.uber.org/zap"
)

const (
	// ConsumerGroup names the group of audit consumers.
	ConsumerGroup = "consumers"

	auditConsumerGroup = "guardflux-audit"
	handlerTimeout     = 10 * time.Second
)

// PublisherGroupPackage provides the Redis stream publisher.
func PublisherGroupPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*messaging.PublisherGroup, error) {
		client := do.MustInvoke[*redis.Client](i)
		logger := do.MustInvoke[*zap.Logger](i)

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client:     client,
			Marshaller: redisstream.DefaultMarshallerUnmarshaller{},
		}, messaging.NewZapLogger(logger.Named("publisher")))
		if err != nil {
			return nil, fmt.Errorf("create redis stream publisher: %w", err)
		}

		return messaging.NewPublisherGroup(publisher), nil
	})
}

// AuditPackage provides the audit.Sink the engine reports to. Events are
// always logged and, unless disabled, published for the consumer through a
// buffered dispatcher.
func AuditPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*audit.Dispatcher, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i).Named("audit")
		group := do.MustInvoke[*messaging.PublisherGroup](i)

		publisher := audit.NewPublisherSink(audit.NewPublishFunc(group.Publisher()), logger)

		return audit.NewDispatcher(publisher, opts.AuditBufferSize, millis(opts.AuditPublishTimeoutMs), logger), nil
	})

	do.Provide(injector, func(i *do.Injector) (audit.Sink, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i).Named("audit")

		sinks := audit.MultiSink{audit.NewLoggerSink(logger)}

		if opts.AuditPublish {
			sinks = append(sinks, do.MustInvoke[*audit.Dispatcher](i))
		}

		return sinks, nil
	})
}

// pool closes the pgx pool when the injector shuts down.
type pool struct {
	*pgxpool.Pool
}

func (p pool) Shutdown() error {
	p.Close()

	return nil
}

// PostgresPackage provides the audit.Store. Without a database URL events
// are only logged.
func PostgresPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (audit.Store, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		if opts.DatabaseURL == "" {
			logger.Warn("no database configured, audit events will only be logged")

			return auditstore.NewNoop(logger.Named("audit")), nil
		}

		p := do.MustInvoke[pool](i)

		s := auditstore.NewPostgres(p.Pool)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.Migrate(ctx); err != nil {
			return nil, err
		}

		return s, nil
	})

	do.Provide(injector, func(i *do.Injector) (pool, error) {
		opts := do.MustInvoke[*Options](i)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		p, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return pool{}, fmt.Errorf("connect audit database: %w", err)
		}

		if err := p.Ping(ctx); err != nil {
			p.Close()

			return pool{}, fmt.Errorf("ping audit database: %w", err)
		}

		return pool{p}, nil
	})
}

// ConsumerGroupPackage provides the group consuming audit events from the
// Redis stream and persisting them.
func ConsumerGroupPackage(injector *do.Injector) {
	do.ProvideNamed(injector, ConsumerGroup, func(i *do.Injector) (*messaging.Group, error) {
		client := do.MustInvoke[*redis.Client](i)
		logger := do.MustInvoke[*zap.Logger](i)
		s := do.MustInvoke[audit.Store](i)

		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client,
			Unmarshaller:  redisstream.DefaultMarshallerUnmarshaller{},
			ConsumerGroup: auditConsumerGroup,
		}, messaging.NewZapLogger(logger.Named("subscriber")))
		if err != nil {
			return nil, fmt.Errorf("create redis stream subscriber: %w", err)
		}

		group := messaging.NewGroup(logger.Named("consumers"), subscriber)
		group.Add(messaging.NewConsumer(
			subscriber,
			audit.TopicDecision,
			audit.NewHandler(s),
			logger.Named("audit-consumer"),
			messaging.WithHandlerTimeout(handlerTimeout),
		))

		return group, nil
	})
}
