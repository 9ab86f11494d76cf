// Package clock abstracts wall-clock time for transaction expiry and
// snapshot retention.
//
// The engine never reads time.Now directly. Every component that needs the
// current time receives a Clock, so tests can pin and advance time
// deterministically (see testutil.FixedClock).
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the production clock backed by time.Now.
//
// Thread-safety: System is stateless and safe for concurrent use.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Func adapts a plain function into a Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}

// OrSystem returns c, or System when c is nil.
func OrSystem(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}
