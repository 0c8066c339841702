package ratelimit

import "time"

// WindowPolicy is the fixed-window algorithm. It is pure: it never touches a
// store and never mutates its input.
type WindowPolicy struct{}

// Apply decides a request arriving at now against current, which is nil when
// no record exists. next is the record to persist and is nil on denial.
func (WindowPolicy) Apply(key Key, current *Record, opts Options, now time.Time) (next *Record, out Outcome) {
	if current == nil {
		next = &Record{
			Key:          key.String(),
			UserID:       key.Identity,
			Route:        key.Route,
			RequestCount: 1,
			WindowStart:  now,
		}

		return next, Outcome{Allowed: true, Reason: ReasonNew, Count: 1}
	}

	if now.Sub(current.WindowStart) >= opts.Window() {
		next = current.clone()
		next.RequestCount = 1
		next.WindowStart = now

		return next, Outcome{Allowed: true, Reason: ReasonWindowReset, Count: 1}
	}

	if current.RequestCount < opts.MaxRequests {
		next = current.clone()
		next.RequestCount++

		return next, Outcome{Allowed: true, Reason: ReasonWithinWindow, Count: next.RequestCount}
	}

	return nil, Outcome{Allowed: false, Reason: ReasonLimitExceeded, Count: current.RequestCount}
}

func (r *Record) clone() *Record {
	c := *r

	return &c
}
