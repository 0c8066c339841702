package container

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	_ "github.com/danielgtaylor/huma/v2/formats/cbor" // CBOR format support for huma
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/serroba/guardflux/internal/handlers"
	"github.com/serroba/guardflux/internal/health"
	"github.com/serroba/guardflux/internal/middleware"
	"github.com/serroba/guardflux/internal/ratelimit"
	"github.com/serroba/guardflux/internal/store"
	"go.uber.org/zap"
)

// DefaultEndpointConfig returns the limit applied to operations without
// their own, or nil when no default is configured.
func DefaultEndpointConfig(opts *Options) *ratelimit.EndpointConfig {
	if opts.DefaultCycleTime <= 0 || opts.DefaultMaxRequests <= 0 {
		return nil
	}

	return &ratelimit.EndpointConfig{
		CycleTime:   int64(opts.DefaultCycleTime),
		MaxRequests: int64(opts.DefaultMaxRequests),
	}
}

// HTTPPackage provides the router and the huma API with middleware and
// routes registered.
func HTTPPackage(injector *do.Injector) {
	do.Provide(injector, func(_ *do.Injector) (*chi.Mux, error) {
		return chi.NewMux(), nil
	})

	do.Provide(injector, func(i *do.Injector) (huma.API, error) {
		opts := do.MustInvoke[*Options](i)
		logger := do.MustInvoke[*zap.Logger](i)
		router := do.MustInvoke[*chi.Mux](i)
		engine := do.MustInvoke[*ratelimit.Engine](i)
		handle := do.MustInvoke[*store.Handle](i)
		client := do.MustInvoke[*redis.Client](i)

		api := humachi.New(router, huma.DefaultConfig("Guardflux", "1.0.0"))
		api.UseMiddleware(
			middleware.RequestMeta(api),
			middleware.RateLimiter(api, engine, DefaultEndpointConfig(opts), logger.Named("http")),
		)

		handlers.RegisterRoutes(api, handlers.NewEvaluateHandler(engine, logger.Named("http")))
		health.RegisterRoutes(api, health.NewHandler(map[string]health.Checker{
			"redis":   health.NewRedisChecker(client),
			"backend": handle.Pinger,
		}))

		return api, nil
	})
}
