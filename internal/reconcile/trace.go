package reconcile

import (
	"fmt"
	"strings"

	"github.com/roach88/payconfirm/internal/confirm"
)

// TraceKind names a step recorded by the loop.
type TraceKind string

const (
	TraceStart      TraceKind = "start"
	TraceRejected   TraceKind = "rejected"
	TraceProbe      TraceKind = "probe"
	TraceProbeError TraceKind = "probe_error"
	TracePolling    TraceKind = "polling"
	TracePush       TraceKind = "push"
	TraceDropped    TraceKind = "dropped"
	TraceSuccess    TraceKind = "success"
	TraceDeadline   TraceKind = "deadline"
	TraceTimeout    TraceKind = "timeout"
	TraceAlert      TraceKind = "alert"
	TraceRetry      TraceKind = "retry"
	TraceClosed     TraceKind = "closed"
)

// Trace is one step of the loop, in processing order.
type Trace struct {
	Seq        int64
	Kind       TraceKind
	Identifier string
	Cycle      string
	Status     confirm.Status
	Attempt    int
	Detail     string
}

// String renders the trace without the cycle id, which is the only
// non-deterministic field in production.
func (t Trace) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s id=%s status=%s attempt=%d", t.Seq, t.Kind, t.Identifier, t.Status, t.Attempt)
	if t.Detail != "" {
		b.WriteString(" ")
		b.WriteString(t.Detail)
	}
	return b.String()
}

// TraceFunc receives every trace. Called on the loop goroutine.
type TraceFunc func(Trace)
