// Package container wires the service with samber/do. Each *Package function
// registers the providers for one concern; binaries pick the packages they need.
package container

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"
)

// Options configures the server. Every field can be set by flag or by a
// SERVICE_* environment variable.
type Options struct {
	Port      int    `default:"8888"           help:"Port to listen on"              short:"p"`
	RedisAddr string `default:"localhost:6379" help:"Redis server address"           short:"r"`
	LogFormat string `default:"console"        help:"Log format: console or json"`

	Backend         string `default:"memory"    help:"Counter backend: memory, memory-atomic, relational, document or atomic-remote-kv" short:"b"`
	BackendURI      string `default:""          help:"Connection URI of the counter backend"`
	BackendPrefix   string `default:"ratelimit" help:"Key prefix for the atomic-remote-kv backend"`
	BackendDatabase string `default:"guardflux" help:"Database name for the document backend"`

	FailurePolicy  string `default:""      help:"Required. Decision when the backend is unavailable: open or closed"`
	KeyScope       string `default:"route" help:"Counter scope: route or identity"`
	StoreTimeoutMs int    `default:"500"    help:"Upper bound on each backend call in milliseconds, 0 for none"`
	MaxRetries     int    `default:"3"      help:"Save attempts on version conflicts"`

	RetentionHours       int `default:"24" help:"Purge records idle for longer than this many hours, must exceed the longest cycle time"`
	PurgeIntervalMinutes int `default:"60" help:"Minutes between purges, 0 disables the janitor"`

	DefaultCycleTime   int `default:"0" help:"Window in seconds for operations without their own limit, 0 disables"`
	DefaultMaxRequests int `default:"0" help:"Requests per window for operations without their own limit"`

	AuditPublish          bool   `default:"true" help:"Publish audit events to the Redis stream"`
	AuditBufferSize       int    `default:"1024" help:"Audit events queued for publishing before new ones are dropped"`
	AuditPublishTimeoutMs int    `default:"2000" help:"Upper bound on publishing one audit event in milliseconds"`
	DatabaseURL           string `default:""     help:"PostgreSQL URL for persisting consumed audit events"`
}

// LoggerPackage provides the *zap.Logger.
func LoggerPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (*zap.Logger, error) {
		opts := do.MustInvoke[*Options](i)

		switch opts.LogFormat {
		case "json":
			return zap.NewProduction()
		case "console", "":
			return zap.NewDevelopment()
		default:
			return nil, fmt.Errorf("unknown log format %q", opts.LogFormat)
		}
	})
}

// redisClient closes the client when the injector shuts down.
type redisClient struct {
	*redis.Client
}

func (c redisClient) Shutdown() error {
	return c.Close()
}

// RedisPackage provides the shared *redis.Client used for the audit stream
// and health checks.
func RedisPackage(injector *do.Injector) {
	do.Provide(injector, func(i *do.Injector) (redisClient, error) {
		opts := do.MustInvoke[*Options](i)

		return redisClient{redis.NewClient(&redis.Options{Addr: opts.RedisAddr})}, nil
	})

	do.Provide(injector, func(i *do.Injector) (*redis.Client, error) {
		return do.MustInvoke[redisClient](i).Client, nil
	})
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
