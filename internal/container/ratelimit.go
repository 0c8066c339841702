package container

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do"
	"github.com/serroba/guardflux/internal/audit"
	"github.com/serroba/guardflux/internal/messaging"
	"github.com/serroba/guardflux/internal/ratelimit"
	"github.com/serroba/guardflux/internal/store"
	"go.uber.org/zap"
)

// BackgroundGroup names the group of runnables started next to the HTTP server.
const BackgroundGroup = "background"

// StoreConfig builds the backend configuration from options. The atomic
// backend shares the service Redis unless a URI is given.
func StoreConfig(opts *Options) store.Config {
	cfg := store.Config{
		Type:       store.BackendType(opts.Backend),
		URI:        opts.BackendURI,
		Prefix:     opts.BackendPrefix,
		Database:   opts.BackendDatabase,
		MaxRetries: opts.MaxRetries,
	}

	if cfg.Type == store.AtomicRemoteKV && cfg.URI == "" {
		cfg.URI = "redis://" + opts.RedisAddr
	}

	return cfg
}

// StorePackage opens the configured counter backend.
func StorePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*store.Handle, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		h, err := store.Open(ctx, StoreConfig(opts))
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", opts.Backend, err)
		}

		logger.Info("counter backend ready", zap.String("backend", string(h.Type)))

		return h, nil
	})
}

// EnginePackage provides the *ratelimit.Engine.
func EnginePackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*ratelimit.Engine, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		handle := do.MustInvoke[*store.Handle](i)
		sink := do.MustInvoke[audit.Sink](i)

		failure, err := ratelimit.ParseFailurePolicy(opts.FailurePolicy)
		if err != nil {
			return nil, err
		}

		scope, err := parseKeyScope(opts.KeyScope)
		if err != nil {
			return nil, err
		}

		return ratelimit.NewEngine(handle.Backend, failure,
			ratelimit.WithAuditSink(sink),
			ratelimit.WithKeyScope(scope),
			ratelimit.WithStoreTimeout(millis(opts.StoreTimeoutMs)),
			ratelimit.WithLogger(logger.Named("ratelimit")),
		)
	})
}

func parseKeyScope(s string) (ratelimit.KeyScope, error) {
	switch s {
	case "route", "":
		return ratelimit.ScopePerRoute, nil
	case "identity":
		return ratelimit.ScopePerIdentity, nil
	default:
		return 0, fmt.Errorf("unknown key scope %q", s)
	}
}

// JanitorPackage provides the background group. It holds the record janitor
// when the backend needs purging and the janitor is enabled.
func JanitorPackage(injector *do.Injector) {
	do.ProvideNamed(injector, BackgroundGroup, func(i *do.Injector) (*messaging.Group, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		handle := do.MustInvoke[*store.Handle](i)

		group := messaging.NewGroup(logger.Named("background"))

		if opts.PurgeIntervalMinutes > 0 && opts.RetentionHours <= 0 {
			return nil, fmt.Errorf("retention must be positive while the janitor is enabled, got %d hours", opts.RetentionHours)
		}

		if handle.Purger != nil && opts.PurgeIntervalMinutes > 0 {
			group.Add(store.NewJanitor(
				handle.Purger,
				time.Duration(opts.RetentionHours)*time.Hour,
				time.Duration(opts.PurgeIntervalMinutes)*time.Minute,
				logger.Named("janitor"),
			))
		}

		return group, nil
	})
}
