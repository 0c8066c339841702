package ratelimit

import "github.com/serroba/guardflux/internal/audit"

// Reason explains a Decision.
type Reason string

const (
	ReasonNew              Reason = "New"
	ReasonWindowReset      Reason = "WindowReset"
	ReasonWithinWindow     Reason = "WithinWindow"
	ReasonLimitExceeded    Reason = "LimitExceeded"
	ReasonKeyMissing       Reason = "KeyMissing"
	ReasonReferenceMissing Reason = "ReferenceMissing"
	ReasonReferenceNull    Reason = "ReferenceNull"
	ReasonKeyMismatch      Reason = "KeyMismatch"
	ReasonStoreUnavailable Reason = "StoreUnavailable"
)

// Decision is the outcome of one Evaluate call.
type Decision struct {
	Allowed bool
	Reason  Reason

	// Count is the counter value after the decision. It is zero when no
	// counter was touched.
	Count int64

	// Remaining is how many more requests the current window admits.
	Remaining int64

	// Err is the underlying store failure when Reason is ReasonStoreUnavailable.
	Err error

	// Event is the payload handed to the audit sink, if one was emitted.
	Event *audit.Event
}

// Outcome is what a Backend reports for a single counted request.
type Outcome struct {
	Allowed bool
	Reason  Reason
	Count   int64
}

func (o Outcome) remaining(max int64) int64 {
	if o.Count >= max {
		return 0
	}

	return max - o.Count
}
