// Package clock abstracts wall time so that delay arithmetic is testable.
//
// Every component that compares "now" against a stored anchor takes a Clock
// instead of calling time.Now directly. Tests drive a manual clock through
// the exact boundary instants that matter (one second before a delay
// elapses versus the instant it does).
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// System is the production clock backed by time.Now.
type System struct{}

// Now returns the current wall time in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}
