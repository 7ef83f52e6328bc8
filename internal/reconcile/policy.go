package reconcile

import (
	"fmt"
	"time"
)

// Reference polling cadence: 30 attempts, 2 seconds apart.
const (
	DefaultInterval    = 2 * time.Second
	DefaultMaxAttempts = 30
)

// Policy is the fixed poll bound and cadence of a Coordinator. It cannot be
// changed after construction.
//
// ProbeTimeout is how long a single probe may run. Zero means the caller
// does not bound probes beyond the interval.
type Policy struct {
	Interval     time.Duration
	MaxAttempts  int
	ProbeTimeout time.Duration
}

// DefaultPolicy returns the reference policy (60 second ceiling).
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, MaxAttempts: DefaultMaxAttempts}
}

// Ceiling is the total wall-clock bound of one Processing cycle.
func (p Policy) Ceiling() time.Duration {
	return time.Duration(p.MaxAttempts) * p.Interval
}

// slack is the longest a probe started on time may still be running.
func (p Policy) slack() time.Duration {
	return max(p.Interval, p.ProbeTimeout)
}

// Deadline is when the guard timer forces a Timeout: the ceiling plus room
// for the last probe to answer.
func (p Policy) Deadline() time.Duration {
	return p.Ceiling() + p.slack()
}

// RetryDeadline bounds the single probe of a Retry cycle. A probe allowed
// its full ProbeTimeout still lands before it.
func (p Policy) RetryDeadline() time.Duration {
	return p.Interval + p.slack()
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", p.Interval)
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.ProbeTimeout < 0 {
		return fmt.Errorf("probe timeout must not be negative, got %s", p.ProbeTimeout)
	}
	return nil
}
