package reconcile

import (
	"github.com/roach88/payconfirm/internal/confirm"
)

// eventKind distinguishes event payloads.
type eventKind int

const (
	eventCommand eventKind = iota + 1
	eventProbe
	eventPush
	eventDeadline
	eventSubscribed
)

// probeSource says which path issued a probe.
type probeSource string

const (
	sourceInitial probeSource = "initial"
	sourcePoll    probeSource = "poll"
	sourceRetry   probeSource = "retry"
)

// event is the unit of work for the loop.
type event struct {
	kind  eventKind
	cycle string

	// eventProbe; err is also the outcome of eventSubscribed
	source  probeSource
	attempt int
	result  confirm.Result
	err     error

	// eventPush
	push confirm.PushEvent

	// eventCommand
	cmd *command
}

type commandOp int

const (
	opStart commandOp = iota + 1
	opRetry
	opClose
	opSnapshot
)

// command is a caller request answered on reply by the loop.
type command struct {
	op         commandOp
	identifier string
	target     string
	reply      chan commandReply
}

type commandReply struct {
	err      error
	snapshot *confirm.PendingConfirmation
}

// orderTurn returns batch reordered for one scheduling turn: commands keep
// their FIFO position and split the batch into segments; within a segment
// push events go before every other event, stable otherwise.
func orderTurn(batch []event) []event {
	out := make([]event, 0, len(batch))
	start := 0
	flush := func(end int) {
		seg := batch[start:end]
		for _, e := range seg {
			if e.kind == eventPush {
				out = append(out, e)
			}
		}
		for _, e := range seg {
			if e.kind != eventPush {
				out = append(out, e)
			}
		}
	}

	for i, e := range batch {
		if e.kind == eventCommand {
			flush(i)
			out = append(out, e)
			start = i + 1
		}
	}
	flush(len(batch))
	return out
}
