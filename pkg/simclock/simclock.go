// Package simclock provides the harness's single notion of "now": a
// monotonic nanosecond counter that advances only when the event queue
// says so. No collaborator may consult the wall clock; anything needing
// "now" is handed a *Clock (or its read-only Time) explicitly.
package simclock

import "fmt"

// Time is a simulated instant in nanoseconds since the run began.
type Time int64

// Clock is the run's sole time source. The zero value starts at time 0,
// which is what a freshly constructed run wants.
type Clock struct {
	now Time
}

// New constructs a clock starting at time 0.
func New() *Clock {
	return &Clock{}
}

// Now returns the current simulated time. Reading never mutates state.
func (c *Clock) Now() Time {
	return c.now
}

// Advance moves the clock forward to t. Advancing is monotonic: t may
// equal the current time (several events can share one instant), but
// attempting to move to a time behind the current time is a fatal
// harness bug, not a recoverable error, because it would mean the event
// queue handed back an out-of-order event.
func (c *Clock) Advance(t Time) {
	if t < c.now {
		panic(fmt.Sprintf("simclock: refusing to rewind from %d to %d", c.now, t))
	}
	c.now = t
}
