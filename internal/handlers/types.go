package handlers

import "github.com/serroba/guardflux/internal/ratelimit"

// EvaluateBody is the payload of an evaluate request.
type EvaluateBody struct {
	Identity    string                 `doc:"Caller identity the counter is kept for" example:"user-42"   json:"identity"    validate:"required"`
	Route       string                 `doc:"Route being limited"                     example:"/v1/items" json:"route"       validate:"required"`
	CycleTime   int64                  `doc:"Window length in seconds"                example:"60"        json:"cycleTime"   validate:"gt=0"`
	MaxRequests int64                  `doc:"Requests admitted per window"            example:"100"       json:"maxRequests" validate:"gt=0"`
	Credentials *ratelimit.Credentials `doc:"Optional key check run before counting" json:"credentials,omitempty"`
}

// EvaluateRequest is the request for evaluating one call against a limit.
type EvaluateRequest struct {
	Body EvaluateBody
}

// EvaluateResponse carries the decision.
type EvaluateResponse struct {
	Body struct {
		Allowed   bool   `doc:"Whether the call may proceed"                  json:"allowed"`
		Reason    string `doc:"Why the decision was made"  example:"New"     json:"reason"`
		Count     int64  `doc:"Counter value after the decision"             json:"count"`
		Remaining int64  `doc:"Calls left in the current window"             json:"remaining"`
		EventID   string `doc:"Audit event id when the decision was audited" json:"eventId,omitempty"`
	}
}
