package confirm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Status is the state of a PendingConfirmation.
type Status int

const (
	// StatusIdle means nothing is pending.
	StatusIdle Status = iota
	// StatusProcessing means at least one channel may still resolve.
	StatusProcessing
	// StatusSuccess means the identifier is consumed; nothing may mutate it.
	StatusSuccess
	// StatusTimeout means polling was exhausted without confirmation.
	StatusTimeout
)

// String returns the lowercase status name used in logs and traces.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusSuccess:
		return "success"
	case StatusTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "idle":
		return StatusIdle, nil
	case "processing":
		return StatusProcessing, nil
	case "success":
		return StatusSuccess, nil
	case "timeout":
		return StatusTimeout, nil
	}
	return StatusIdle, fmt.Errorf("unknown status %q", s)
}

// Result is the outcome of a single probe or push event.
//
// Confirmed=false is a valid answer ("not yet"), distinct from a probe error.
type Result struct {
	Confirmed bool `json:"confirmed"`

	// ForObjectRef references the confirmed entity (an order, a
	// subscription). It is opaque to the reconciler and passed through
	// untouched.
	ForObjectRef json.RawMessage `json:"for_object_ref,omitempty"`

	// Target tags the kind of entity ForObjectRef points at.
	Target string `json:"target,omitempty"`
}

// PushEvent is an asynchronous confirmation delivered by the push channel.
type PushEvent struct {
	Identifier   string          `json:"identifier"`
	Target       string          `json:"target,omitempty"`
	ForObjectRef json.RawMessage `json:"for_object_ref,omitempty"`
}

// Result converts the event into a confirmed Result.
func (e PushEvent) Result() Result {
	return Result{
		Confirmed:    true,
		ForObjectRef: e.ForObjectRef,
		Target:       e.Target,
	}
}

// PendingConfirmation is the coordinator-owned state for one identifier.
//
// INVARIANTS:
//   - Attempt never decreases within a cycle; Retry starts a new cycle at 0.
//   - AlertSent goes false -> true at most once and is never cleared.
//   - Once Status is StatusSuccess, Result is set and nothing else changes.
type PendingConfirmation struct {
	Identifier  string        `json:"identifier"`
	Target      string        `json:"target,omitempty"`
	Status      Status        `json:"status"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	Interval    time.Duration `json:"interval"`
	AlertSent   bool          `json:"alert_sent"`

	// EnteredAt is the start of the current processing cycle.
	// Diagnostics only.
	EnteredAt time.Time `json:"entered_at"`

	// Cycle identifies the current processing cycle. Events tagged with
	// any other cycle are stale.
	Cycle string `json:"cycle"`

	// Result is set when Status reaches StatusSuccess.
	Result *Result `json:"result,omitempty"`
}

// Elapsed returns how long the current cycle has been running at now.
func (p *PendingConfirmation) Elapsed(now time.Time) time.Duration {
	if p.EnteredAt.IsZero() {
		return 0
	}
	return now.Sub(p.EnteredAt)
}

// Ceiling is the wall-clock bound of one polling cycle.
func (p *PendingConfirmation) Ceiling() time.Duration {
	return time.Duration(p.MaxAttempts) * p.Interval
}

// NormalizeIdentifier trims surrounding whitespace and applies Unicode NFC
// normalization. All identifier comparisons go through it.
func NormalizeIdentifier(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// SameIdentifier reports whether a and b name the same confirmation.
func SameIdentifier(a, b string) bool {
	return NormalizeIdentifier(a) == NormalizeIdentifier(b)
}
