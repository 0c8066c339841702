package ratelimit

import "github.com/danielgtaylor/huma/v2"

// MetadataKey is the key used to store rate limit config in operation metadata.
const MetadataKey = "rateLimit"

// EndpointConfig defines per-endpoint rate limit configuration.
// This can be attached to Huma operations via the Metadata field.
type EndpointConfig struct {
	// CycleTime is the window length in seconds.
	CycleTime int64

	// MaxRequests is the number of requests admitted per window.
	MaxRequests int64

	// Route overrides the operation path as the counted route. Operations
	// sharing a Route share counters.
	Route string

	// Disabled skips rate limiting entirely for this endpoint.
	Disabled bool
}

// Options converts the config into engine options for an operation path.
func (c EndpointConfig) Options(path string) Options {
	route := c.Route
	if route == "" {
		route = path
	}

	return Options{
		Route:       route,
		CycleTime:   c.CycleTime,
		MaxRequests: c.MaxRequests,
	}
}

// GetEndpointConfig extracts the EndpointConfig from operation metadata, if present.
func GetEndpointConfig(ctx huma.Context) *EndpointConfig {
	op := ctx.Operation()
	if op == nil || op.Metadata == nil {
		return nil
	}

	cfg, ok := op.Metadata[MetadataKey].(EndpointConfig)
	if !ok {
		return nil
	}

	return &cfg
}
