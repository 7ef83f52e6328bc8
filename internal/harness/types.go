package harness

import (
	"fmt"

	"github.com/roach88/payconfirm/internal/reconcile"
)

// Summary is the final state of a scenario run.
type Summary struct {
	Status    string `json:"status"`
	Successes int    `json:"successes"`
	Timeouts  int    `json:"timeouts"`
	Closed    int    `json:"closed"`
	Alerts    int    `json:"alerts"`
	Probes    int    `json:"probes"`
}

// String renders the summary line of a transcript.
func (s Summary) String() string {
	return fmt.Sprintf("= status=%s successes=%d timeouts=%d closed=%d alerts=%d probes=%d",
		s.Status, s.Successes, s.Timeouts, s.Closed, s.Alerts, s.Probes)
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Transcript is the golden-file text, one entry per line.
	Transcript []string `json:"transcript"`

	// Traces holds every coordinator trace in order.
	Traces []reconcile.Trace `json:"-"`

	Summary Summary `json:"summary"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Transcript: []string{},
		Errors:     []string{},
	}
}

// AddError records a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
