package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serroba/guardflux/internal/audit"
	"github.com/serroba/guardflux/internal/validation"
	"go.uber.org/zap"
)

var (
	// ErrInvalidOptions is returned when options fail validation.
	ErrInvalidOptions = errors.New("invalid rate limit options")
	// ErrInvalidIdentity is returned for an empty identity.
	ErrInvalidIdentity = errors.New("identity is required")
	// ErrFailurePolicyRequired is returned when an engine is built without a failure policy.
	ErrFailurePolicyRequired = errors.New("failure policy must be fail-open or fail-closed")
)

// FailurePolicy decides what an unavailable store means for the request.
type FailurePolicy string

const (
	// FailOpen allows requests while the store is unavailable.
	FailOpen FailurePolicy = "open"
	// FailClosed denies requests while the store is unavailable.
	FailClosed FailurePolicy = "closed"
)

// ParseFailurePolicy converts a configuration value into a FailurePolicy.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case FailOpen, FailClosed:
		return p, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrFailurePolicyRequired, s)
	}
}

// Limiter evaluates requests against rate limits.
type Limiter interface {
	Evaluate(ctx context.Context, identity string, opts Options, creds *Credentials) (Decision, error)
}

// Engine runs the key guard, the backend and the audit sink for each request.
// It is safe for concurrent use; requests for different keys never wait on
// each other.
type Engine struct {
	backend      Backend
	failure      FailurePolicy
	sink         audit.Sink
	clock        func() time.Time
	scope        KeyScope
	storeTimeout time.Duration
	newID        func() string
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditSink sets the sink notified of denials and key check failures.
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithKeyScope selects how record keys are built. Default ScopePerRoute.
func WithKeyScope(scope KeyScope) Option {
	return func(e *Engine) { e.scope = scope }
}

// WithStoreTimeout bounds each store call made by the backend. Waiting for a
// busy key is bounded by the caller's context only. Zero means no
// engine-side bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) { e.storeTimeout = d }
}

// WithIDGenerator sets the audit event id generator.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine. The failure policy has no default and must be
// FailOpen or FailClosed.
func NewEngine(backend Backend, failure FailurePolicy, opts ...Option) (*Engine, error) {
	if _, err := ParseFailurePolicy(string(failure)); err != nil {
		return nil, err
	}

	e := &Engine{
		backend: backend,
		failure: failure,
		sink:    audit.NopSink{},
		clock:   time.Now,
		scope:   ScopePerRoute,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.newID == nil {
		gen, err := audit.NewIDGenerator(audit.DefaultIDLength)
		if err != nil {
			return nil, fmt.Errorf("create event id generator: %w", err)
		}

		e.newID = gen
	}

	return e, nil
}

// Evaluate decides whether identity may make a request on opts.Route.
// A non-nil error is returned for invalid input, and wraps ErrNotCounted when
// ctx ended before the request reached the store. Store failures are reported
// as a ReasonStoreUnavailable decision.
func (e *Engine) Evaluate(ctx context.Context, identity string, opts Options, creds *Credentials) (Decision, error) {
	if identity == "" {
		return Decision{}, ErrInvalidIdentity
	}

	if err := validation.Struct(opts); err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	if creds != nil {
		if reason, ok := CheckKeys(*creds); !ok {
			return Decision{
				Reason: reason,
				Event:  e.report(ctx, audit.FunctionKeyGuard, reason, identity, opts),
			}, nil
		}
	}

	key := NewKey(e.scope, identity, opts.Route)

	out, err := e.backend.Hit(withStoreTimeout(ctx, e.storeTimeout), key, opts, e.clock())
	if errors.Is(err, ErrNotCounted) {
		return Decision{}, err
	}

	if err != nil {
		return e.unavailable(ctx, key, identity, opts, err), nil
	}

	d := Decision{
		Allowed:   out.Allowed,
		Reason:    out.Reason,
		Count:     out.Count,
		Remaining: out.remaining(opts.MaxRequests),
	}

	if !out.Allowed {
		d.Event = e.report(ctx, audit.FunctionRateLimit, out.Reason, identity, opts)
	}

	return d, nil
}

func (e *Engine) unavailable(ctx context.Context, key Key, identity string, opts Options, err error) Decision {
	e.logger.Error("rate limit store unavailable",
		zap.String("key", key.String()),
		zap.String("failurePolicy", string(e.failure)),
		zap.Error(err),
	)

	return Decision{
		Allowed: e.failure == FailOpen,
		Reason:  ReasonStoreUnavailable,
		Err:     err,
		Event:   e.report(ctx, audit.FunctionRateLimit, ReasonStoreUnavailable, identity, opts),
	}
}

func (e *Engine) report(ctx context.Context, function string, reason Reason, identity string, opts Options) *audit.Event {
	meta := audit.RequestMetaFromContext(ctx)
	event := audit.Event{
		ID:       e.newID(),
		Function: function,
		Message:  string(reason),
		Metadata: audit.Metadata{
			Identity: identity,
			Options: audit.Options{
				Route:       opts.Route,
				CycleTime:   opts.CycleTime,
				MaxRequests: opts.MaxRequests,
			},
			ClientIP:  meta.ClientIP,
			UserAgent: meta.UserAgent,
		},
		Timestamp: e.clock(),
	}

	e.sink.OnDecision(ctx, event)

	return &event
}

// Compile-time check.
var _ Limiter = (*Engine)(nil)
