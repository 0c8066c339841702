package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/serroba/guardflux/internal/ratelimit"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Pinger checks connectivity of an opened backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handle is an opened backend with the resources behind it.
type Handle struct {
	Type    BackendType
	Backend ratelimit.Backend

	// Purger is nil for backends that expire data on their own.
	Purger ratelimit.Purger
	Pinger Pinger

	closers []func() error
}

// Close releases connections opened by Open.
func (h *Handle) Close() error {
	var errs []error

	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Shutdown implements do.Shutdownable.
func (h *Handle) Shutdown() error {
	return h.Close()
}

// Open validates cfg, connects to the backend, prepares its schema and
// returns the matching ratelimit.Backend.
func Open(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case Memory:
		s := NewMemoryRecordStore()

		return &Handle{
			Type:    cfg.Type,
			Backend: ratelimit.NewTransactionalBackend(s, cfg.MaxRetries),
			Purger:  s,
			Pinger:  nopPinger{},
		}, nil
	case MemoryAtomic:
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = DefaultPrefix
		}

		s := NewMemoryCounterStore(prefix, nil)

		return &Handle{
			Type:    cfg.Type,
			Backend: ratelimit.NewAtomicBackend(s),
			Purger:  s,
			Pinger:  nopPinger{},
		}, nil
	case Relational:
		return openRelational(ctx, cfg)
	case Document:
		return openDocument(ctx, cfg)
	case AtomicRemoteKV:
		return openAtomic(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedBackend, cfg.Type)
	}
}

func openRelational(ctx context.Context, cfg Config) (*Handle, error) {
	driver, _ := relationalDriver(cfg.URI)

	if driver == driverSQLite {
		s, err := NewSQLiteRecordStore(sqliteDSN(cfg.URI))
		if err != nil {
			return nil, err
		}

		return &Handle{
			Type:    cfg.Type,
			Backend: ratelimit.NewTransactionalBackend(s, cfg.MaxRetries),
			Purger:  s,
			Pinger:  s,
			closers: []func() error{s.Close},
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	s := NewPostgresRecordStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()

		return nil, err
	}

	return &Handle{
		Type:    cfg.Type,
		Backend: ratelimit.NewTransactionalBackend(s, cfg.MaxRetries),
		Purger:  s,
		Pinger:  s,
		closers: []func() error{func() error { pool.Close(); return nil }},
	}, nil
}

func openDocument(ctx context.Context, cfg Config) (*Handle, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = DefaultDatabase
	}

	s := NewMongoRecordStore(client, database)
	if err := s.Migrate(ctx); err != nil {
		_ = client.Disconnect(context.Background())

		return nil, err
	}

	return &Handle{
		Type:    cfg.Type,
		Backend: ratelimit.NewTransactionalBackend(s, cfg.MaxRetries),
		Purger:  s,
		Pinger:  s,
		closers: []func() error{func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			return client.Disconnect(ctx)
		}},
	}, nil
}

func openAtomic(ctx context.Context, cfg Config) (*Handle, error) {
	opts, err := redis.ParseURL(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis uri: %w", ErrConfiguration, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &Handle{
		Type:    cfg.Type,
		Backend: ratelimit.NewAtomicBackend(NewRedisCounterStore(client, cfg.Prefix)),
		Pinger:  redisPinger{client: client},
		closers: []func() error{client.Close},
	}, nil
}

type redisPinger struct {
	client *redis.Client
}

func (r redisPinger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type nopPinger struct{}

func (nopPinger) Ping(context.Context) error { return nil }
