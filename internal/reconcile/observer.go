package reconcile

import (
	"context"

	"github.com/roach88/payconfirm/internal/confirm"
)

// Observer is the Coordinator's only caller-facing surface.
// Callbacks run on the loop goroutine: they must return quickly and must
// not call Coordinator methods synchronously.
type Observer interface {
	OnSuccess(identifier string, res confirm.Result)
	OnTimeout(identifier string)
	OnClosed(identifier string)
}

// ObserverFuncs adapts optional functions to Observer. Nil fields are
// skipped.
type ObserverFuncs struct {
	Success func(identifier string, res confirm.Result)
	Timeout func(identifier string)
	Closed  func(identifier string)
}

// OnSuccess implements Observer.
func (o ObserverFuncs) OnSuccess(identifier string, res confirm.Result) {
	if o.Success != nil {
		o.Success(identifier, res)
	}
}

// OnTimeout implements Observer.
func (o ObserverFuncs) OnTimeout(identifier string) {
	if o.Timeout != nil {
		o.Timeout(identifier)
	}
}

// OnClosed implements Observer.
func (o ObserverFuncs) OnClosed(identifier string) {
	if o.Closed != nil {
		o.Closed(identifier)
	}
}

// AlertEmitter is the fire-and-forget alerting collaborator.
// Implemented by *alert.Emitter.
type AlertEmitter interface {
	Emit(ctx context.Context, a confirm.Alert)
}

// OutcomeLog records terminal transitions. Implemented by *store.Store.
type OutcomeLog interface {
	WriteOutcome(ctx context.Context, o confirm.Outcome) error
}
