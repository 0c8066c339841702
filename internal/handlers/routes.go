package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/guardflux/internal/ratelimit"
)

// RegisterRoutes registers the rate limit decision routes.
func RegisterRoutes(api huma.API, h *EvaluateHandler) {
	// POST /v1/ratelimit/evaluate - Count a call and decide it.
	// The endpoint is itself the limiter, so the middleware leaves it alone.
	huma.Register(api, huma.Operation{
		OperationID: "evaluate-rate-limit",
		Method:      http.MethodPost,
		Path:        "/v1/ratelimit/evaluate",
		Summary:     "Evaluate a call against a rate limit",
		Description: "Runs the optional key check, counts the call in the current fixed window and returns the decision.",
		Tags:        []string{"Rate limits"},
		Metadata: map[string]any{
			ratelimit.MetadataKey: ratelimit.EndpointConfig{Disabled: true},
		},
	}, h.Evaluate)
}
