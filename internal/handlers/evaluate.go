package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/guardflux/internal/ratelimit"
	"github.com/serroba/guardflux/internal/validation"
	"go.uber.org/zap"
)

// EvaluateHandler exposes the rate limit engine over HTTP.
type EvaluateHandler struct {
	limiter ratelimit.Limiter
	logger  *zap.Logger
}

// NewEvaluateHandler creates a new evaluate handler.
func NewEvaluateHandler(limiter ratelimit.Limiter, logger *zap.Logger) *EvaluateHandler {
	return &EvaluateHandler{limiter: limiter, logger: logger}
}

// Evaluate counts one call and returns the decision. Denials are a normal
// 200 response; only malformed input is an error.
func (h *EvaluateHandler) Evaluate(ctx context.Context, req *EvaluateRequest) (*EvaluateResponse, error) {
	if res := validation.CheckObject(&req.Body); !res.IsValid {
		return nil, invalidBody(res)
	}

	opts := ratelimit.Options{
		Route:       req.Body.Route,
		CycleTime:   req.Body.CycleTime,
		MaxRequests: req.Body.MaxRequests,
	}

	d, err := h.limiter.Evaluate(ctx, req.Body.Identity, opts, req.Body.Credentials)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidOptions) || errors.Is(err, ratelimit.ErrInvalidIdentity) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		h.logger.Error("evaluate failed", zap.String("route", opts.Route), zap.Error(err))

		return nil, huma.Error500InternalServerError("failed to evaluate rate limit")
	}

	resp := &EvaluateResponse{}
	resp.Body.Allowed = d.Allowed
	resp.Body.Reason = string(d.Reason)
	resp.Body.Count = d.Count
	resp.Body.Remaining = d.Remaining

	if d.Event != nil {
		resp.Body.EventID = d.Event.ID
	}

	return resp, nil
}

func invalidBody(res validation.CheckResult) error {
	err, ok := res.Log.(error)
	if !ok {
		return huma.Error422UnprocessableEntity(validation.EmptyObjectLog)
	}

	msgs := validation.Messages(err)
	details := make([]error, 0, len(msgs))

	for _, m := range msgs {
		details = append(details, &huma.ErrorDetail{Message: m, Location: "body"})
	}

	return huma.Error422UnprocessableEntity("validation failed", details...)
}
