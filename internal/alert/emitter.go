// Package alert escalates reconciliation timeouts to an operational side
// channel.
//
// Emission is fire-and-forget: Emit returns immediately, delivery happens
// on a background goroutine, and every delivery failure (including a panic
// inside a Sink) is logged and swallowed. An alerting outage never blocks
// or corrupts the reconciliation flow.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/roach88/payconfirm/internal/confirm"
)

// DefaultSeverity is used when an alert carries no severity.
const DefaultSeverity = "high"

// DefaultSendTimeout bounds one Sink.Send call.
const DefaultSendTimeout = 10 * time.Second

// Sink delivers an alert to the alerting collaborator.
type Sink interface {
	Send(ctx context.Context, a confirm.Alert) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a confirm.Alert) error

// Send calls f.
func (f SinkFunc) Send(ctx context.Context, a confirm.Alert) error {
	return f(ctx, a)
}

// Emitter sends alerts asynchronously through a Sink.
type Emitter struct {
	sink        Sink
	limiter     *rate.Limiter
	sendTimeout time.Duration
	environment string
	logger      *slog.Logger
	now         func() time.Time

	wg sync.WaitGroup
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithRatePerMinute smooths bursts to n alerts per minute. n <= 0 disables
// limiting.
func WithRatePerMinute(n int) Option {
	return func(e *Emitter) {
		if n <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), n)
	}
}

// WithSendTimeout bounds each delivery.
func WithSendTimeout(d time.Duration) Option {
	return func(e *Emitter) {
		e.sendTimeout = d
	}
}

// WithEnvironment sets the environment tag applied to alerts that lack one.
func WithEnvironment(env string) Option {
	return func(e *Emitter) {
		e.environment = env
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = l
	}
}

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(e *Emitter) {
		e.now = now
	}
}

// NewEmitter creates an Emitter delivering to sink.
func NewEmitter(sink Sink, opts ...Option) *Emitter {
	e := &Emitter{
		sink:        sink,
		sendTimeout: DefaultSendTimeout,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit schedules delivery of a and returns immediately. Missing ID, type,
// severity, environment and creation time are filled in.
//
// ctx only contributes values; its cancellation does not abort delivery.
func (e *Emitter) Emit(ctx context.Context, a confirm.Alert) {
	if a.ID == "" {
		a.ID = uuid.Must(uuid.NewV7()).String()
	}
	if a.Type == "" {
		a.Type = confirm.AlertTypePaymentTimeout
	}
	if a.Severity == "" {
		a.Severity = DefaultSeverity
	}
	if a.Environment == "" {
		a.Environment = e.environment
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = e.now().UTC()
	}

	e.wg.Add(1)
	go e.deliver(context.WithoutCancel(ctx), a)
}

// Wait blocks until every scheduled delivery has finished.
func (e *Emitter) Wait() {
	e.wg.Wait()
}

func (e *Emitter) deliver(ctx context.Context, a confirm.Alert) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("alert sink panicked",
				"alert_id", a.ID,
				"identifier", a.Identifier,
				"panic", r,
			)
		}
	}()

	if e.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.sendTimeout)
		defer cancel()
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			e.logger.Error("alert dropped by rate limiter",
				"alert_id", a.ID,
				"identifier", a.Identifier,
				"error", err,
			)
			return
		}
	}

	if err := e.sink.Send(ctx, a); err != nil {
		e.logger.Error("alert delivery failed",
			"alert_id", a.ID,
			"alert_type", a.Type,
			"identifier", a.Identifier,
			"error", err,
		)
		return
	}

	e.logger.Info("alert delivered",
		"alert_id", a.ID,
		"alert_type", a.Type,
		"identifier", a.Identifier,
		"elapsed_ms", a.ElapsedMs,
	)
}
