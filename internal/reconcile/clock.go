package reconcile

import "sync/atomic"

// Clock numbers traces and outcomes. Values are strictly increasing for the
// lifetime of a Clock; a Clock resumed with NewClockAt continues after an
// earlier run's last value.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock whose first tick is 1.
func NewClock() *Clock {
	return NewClockAt(0)
}

// NewClockAt returns a clock whose first tick is last+1.
func NewClockAt(last int64) *Clock {
	c := new(Clock)
	c.last.Store(last)
	return c
}

// Next advances the clock and returns the new value.
func (c *Clock) Next() int64 { return c.last.Add(1) }

// Current is the most recent value handed out, without advancing.
func (c *Clock) Current() int64 { return c.last.Load() }
