package audit

import "time"

// TopicDecision is the topic audit events are published to.
const TopicDecision = "ratelimit.audit"

const (
	// FunctionRateLimit marks events raised by the window check.
	FunctionRateLimit = "rateLimit"
	// FunctionKeyGuard marks events raised by the credential check.
	FunctionKeyGuard = "keyGuard"
)

// Event is reported for every denial and every failed key check.
type Event struct {
	ID        string    `json:"id"`
	Function  string    `json:"function"`
	Message   string    `json:"message"`
	Metadata  Metadata  `json:"metadata"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata identifies the request an event is about.
type Metadata struct {
	Identity  string  `json:"identity"`
	Options   Options `json:"options"`
	ClientIP  string  `json:"clientIp,omitempty"`
	UserAgent string  `json:"userAgent,omitempty"`
}

// Options mirrors the limits that were in force.
type Options struct {
	Route       string `json:"route"`
	CycleTime   int64  `json:"cycleTime"`
	MaxRequests int64  `json:"maxRequests"`
}
