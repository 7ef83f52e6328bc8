// Package probe asks the payment-status collaborator whether an identifier
// has been confirmed yet.
//
// A probe is a single read with no state. "Not yet confirmed" is a valid
// Result{Confirmed: false}; only transport and server failures are errors,
// and the reconciler treats every such error as retryable.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/payconfirm/internal/confirm"
)

// Prober performs one confirmation query.
type Prober interface {
	Probe(ctx context.Context, identifier string) (confirm.Result, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, identifier string) (confirm.Result, error)

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, identifier string) (confirm.Result, error) {
	return f(ctx, identifier)
}

// StatusError is returned when the collaborator answers with an unexpected
// HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("confirmation probe: unexpected status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("confirmation probe: unexpected status %d", e.StatusCode)
}

// Bounded wraps p so that every call is limited to timeout.
// A non-positive timeout returns p unchanged.
func Bounded(p Prober, timeout time.Duration) Prober {
	if timeout <= 0 {
		return p
	}
	return ProberFunc(func(ctx context.Context, identifier string) (confirm.Result, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return p.Probe(ctx, identifier)
	})
}
