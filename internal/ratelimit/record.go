package ratelimit

import (
	"strings"
	"time"
)

// KeyScope controls which parts of a request identify a tracked entity.
type KeyScope int

const (
	// ScopePerRoute tracks each identity separately on every route.
	ScopePerRoute KeyScope = iota
	// ScopePerIdentity shares one counter across all routes of an identity.
	ScopePerIdentity
)

// Key identifies a counter record.
type Key struct {
	Identity string
	Route    string
}

// NewKey builds the key for identity and route under the given scope.
func NewKey(scope KeyScope, identity, route string) Key {
	if scope == ScopePerIdentity {
		return Key{Identity: identity}
	}

	return Key{Identity: identity, Route: route}
}

// identityEscaper keeps ':' out of the identity part, so the first ':' of a
// record id always ends the identity.
var identityEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// String returns the opaque record id, "identity:route" or "identity".
// Any '%' or ':' in the identity is percent-encoded.
func (k Key) String() string {
	id := identityEscaper.Replace(k.Identity)
	if k.Route == "" {
		return id
	}

	return id + ":" + k.Route
}

// Record is the persisted window state for one key.
type Record struct {
	Key          string
	UserID       string
	Route        string
	RequestCount int64
	WindowStart  time.Time

	// Version is the optimistic concurrency token. Zero means the record has
	// never been saved.
	Version int64
}

// Options are the per-call limits for a route.
type Options struct {
	Route       string `json:"route"       validate:"required"`
	CycleTime   int64  `json:"cycleTime"   validate:"gt=0"`
	MaxRequests int64  `json:"maxRequests" validate:"gt=0"`
}

// Window returns the cycle time as a duration.
func (o Options) Window() time.Duration {
	return time.Duration(o.CycleTime) * time.Second
}
