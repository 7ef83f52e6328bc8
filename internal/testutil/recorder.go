package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/payconfirm/internal/confirm"
)

// RecordingObserver records every caller-facing notification.
//
// Thread-safety: safe for concurrent use via internal mutex.
type RecordingObserver struct {
	mu        sync.Mutex
	successes []confirm.Result
	successID []string
	timeouts  []string
	closed    []string
}

// NewRecordingObserver creates an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

// OnSuccess records a success.
func (o *RecordingObserver) OnSuccess(identifier string, res confirm.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.successID = append(o.successID, identifier)
	o.successes = append(o.successes, res)
}

// OnTimeout records a timeout.
func (o *RecordingObserver) OnTimeout(identifier string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timeouts = append(o.timeouts, identifier)
}

// OnClosed records a close.
func (o *RecordingObserver) OnClosed(identifier string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = append(o.closed, identifier)
}

// Successes returns the number of OnSuccess calls.
func (o *RecordingObserver) Successes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.successes)
}

// LastSuccess returns the most recent success result.
func (o *RecordingObserver) LastSuccess() (string, confirm.Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.successes) == 0 {
		return "", confirm.Result{}, false
	}
	i := len(o.successes) - 1
	return o.successID[i], o.successes[i], true
}

// Timeouts returns the identifiers passed to OnTimeout, in order.
func (o *RecordingObserver) Timeouts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.timeouts...)
}

// Closed returns the identifiers passed to OnClosed, in order.
func (o *RecordingObserver) Closed() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.closed...)
}

// RecordingSink is an alert sink that keeps every alert it receives.
// Setting Fail makes Send return an error after recording.
type RecordingSink struct {
	mu     sync.Mutex
	alerts []confirm.Alert
	fail   bool
}

// NewRecordingSink creates an empty sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// FailWith makes every subsequent Send fail.
func (s *RecordingSink) FailWith(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

// Send implements alert.Sink.
func (s *RecordingSink) Send(ctx context.Context, a confirm.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	if s.fail {
		return errors.New("alert sink unavailable")
	}
	return nil
}

// Alerts returns a copy of every received alert.
func (s *RecordingSink) Alerts() []confirm.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]confirm.Alert(nil), s.alerts...)
}
