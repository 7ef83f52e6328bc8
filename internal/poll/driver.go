// Package poll drives the confirmation probe on a fixed interval.
//
// The Driver ticks at most MaxAttempts times. Each tick increments the
// attempt counter, runs one probe, and reports the outcome. Cancellation is
// checked at the delivery point under the same lock Cancel takes, so a probe
// that was in flight when Cancel was called never reaches the callback.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/probe"
)

// ErrRunning is returned by Start while a previous run is still active.
var ErrRunning = errors.New("poll driver already running")

// ResultFunc receives the outcome of one tick. attempt is 1-based.
type ResultFunc func(attempt int, res confirm.Result, err error)

// Driver repeatedly invokes a Prober.
//
// Thread-safety: Start and Cancel may be called from any goroutine.
type Driver struct {
	prober      probe.Prober
	interval    time.Duration
	maxAttempts int
	newTicker   TickerFactory
	logger      *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	ticker Ticker
	done   chan struct{}

	// deliverMu pairs the cancellation check with the callback.
	deliverMu sync.Mutex
}

// Option configures a Driver.
type Option func(*Driver)

// WithTickerFactory replaces the real ticker (tests use a manual one).
func WithTickerFactory(f TickerFactory) Option {
	return func(d *Driver) {
		d.newTicker = f
	}
}

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

// NewDriver creates a Driver that probes every interval, at most
// maxAttempts times.
func NewDriver(p probe.Prober, interval time.Duration, maxAttempts int, opts ...Option) *Driver {
	d := &Driver{
		prober:      p,
		interval:    interval,
		maxAttempts: maxAttempts,
		newTicker:   NewRealTicker,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins polling identifier in the background. The run ends after
// maxAttempts ticks, when ctx is done, or on Cancel.
func (d *Driver) Start(ctx context.Context, identifier string, onResult ResultFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.done != nil {
		select {
		case <-d.done:
		default:
			return ErrRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	ticker := d.newTicker(d.interval)
	done := make(chan struct{})

	d.cancel = cancel
	d.ticker = ticker
	d.done = done

	go d.loop(runCtx, ticker, identifier, onResult, done)
	return nil
}

// Cancel stops the current run. No tick is scheduled and no result is
// delivered after Cancel returns; a callback already running is waited for.
// Idempotent. Must not be called from inside the ResultFunc.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return
	}
	d.cancel()
	d.ticker.Stop()
	d.cancel = nil

	d.deliverMu.Lock()
	d.deliverMu.Unlock() //nolint:staticcheck // barrier against an in-progress delivery
}

// Done is closed when the current run has exited. Nil before Start.
func (d *Driver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done
}

func (d *Driver) loop(ctx context.Context, ticker Ticker, identifier string, onResult ResultFunc, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	attempt := 0
	for attempt < d.maxAttempts {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
		}

		// select picks randomly when both are ready
		if ctx.Err() != nil {
			return
		}

		attempt++
		res, err := d.prober.Probe(ctx, identifier)

		if !d.deliver(ctx, func() { onResult(attempt, res, err) }) {
			d.logger.Debug("discarding probe result after cancel",
				"identifier", identifier,
				"attempt", attempt,
			)
			return
		}
	}

	d.logger.Debug("poll attempts exhausted",
		"identifier", identifier,
		"attempts", attempt,
	)
}

// deliver runs fn unless ctx is already done. Cancel waits on the same lock,
// so the check and the call are one step as far as Cancel can observe.
func (d *Driver) deliver(ctx context.Context, fn func()) bool {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	fn()
	return true
}
