package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/payconfirm/internal/alert"
	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/poll"
	"github.com/roach88/payconfirm/internal/probe"
	"github.com/roach88/payconfirm/internal/push"
)

// Coordinator owns at most one PendingConfirmation and drives it through
// Idle -> Processing -> {Success, Timeout}.
//
// Thread-safety model:
//   - Start, Retry, Close, Snapshot, Stop: safe from any goroutine
//   - Run: must be called from exactly one goroutine
//
// INVARIANTS:
//   - pending and cycle are touched only by the Run goroutine
//   - at most one cycle (poll driver + push listener + deadline) is open
//   - Observer callbacks fire at most once per terminal transition
type Coordinator struct {
	prober    probe.Prober
	transport push.Transport
	emitter   AlertEmitter

	policy      Policy
	ledger      Ledger
	outcomes    OutcomeLog
	observer    Observer
	tracer      TraceFunc
	newTicker   poll.TickerFactory
	ids         IDGenerator
	clock       *Clock
	now         func() time.Time
	environment string
	severity    string
	channel     string
	logger      *slog.Logger

	queue *eventQueue

	// loop-owned
	runCtx  context.Context
	pending *confirm.PendingConfirmation
	cycle   *cycleState
}

// cycleState is the background work of one Processing cycle.
type cycleState struct {
	ctx      context.Context
	cancel   context.CancelFunc
	driver   *poll.Driver
	listener *push.Listener
	deadline *time.Timer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPolicy sets the poll cadence and bound.
//
// Default: 2s interval, 30 attempts (DefaultPolicy).
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// WithLedger sets the alert ledger. Default: NewMemoryLedger(256).
func WithLedger(l Ledger) Option {
	return func(c *Coordinator) {
		c.ledger = l
	}
}

// WithOutcomeLog records terminal transitions.
func WithOutcomeLog(o OutcomeLog) Option {
	return func(c *Coordinator) {
		c.outcomes = o
	}
}

// WithObserver sets the caller-facing callbacks.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithTracer receives every loop step (tests, golden traces, debugging).
func WithTracer(f TraceFunc) Option {
	return func(c *Coordinator) {
		c.tracer = f
	}
}

// WithTickerFactory overrides the poll driver's ticker.
func WithTickerFactory(f poll.TickerFactory) Option {
	return func(c *Coordinator) {
		c.newTicker = f
	}
}

// WithIDGenerator overrides cycle id generation. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Coordinator) {
		c.ids = g
	}
}

// WithClock resumes sequence numbering from an existing clock.
func WithClock(clock *Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithNow overrides the wall clock used for diagnostics.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithEnvironment sets the environment tag attached to alerts.
func WithEnvironment(env string) Option {
	return func(c *Coordinator) {
		c.environment = env
	}
}

// WithSeverity sets the alert severity.
func WithSeverity(s string) Option {
	return func(c *Coordinator) {
		c.severity = s
	}
}

// WithChannel sets the push channel name. Default: push.DefaultChannel.
func WithChannel(name string) Option {
	return func(c *Coordinator) {
		c.channel = name
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// New creates a Coordinator. transport and emitter may be nil, which
// disables the push channel or alert delivery respectively.
func New(p probe.Prober, transport push.Transport, emitter AlertEmitter, opts ...Option) (*Coordinator, error) {
	if p == nil {
		return nil, fmt.Errorf("new coordinator: prober is required")
	}

	c := &Coordinator{
		prober:    p,
		transport: transport,
		emitter:   emitter,
		policy:    DefaultPolicy(),
		ledger:    NewMemoryLedger(DefaultRecentIdentifiers),
		observer:  ObserverFuncs{},
		newTicker: poll.NewRealTicker,
		ids:       UUIDv7Generator{},
		clock:     NewClock(),
		now:       time.Now,
		severity:  alert.DefaultSeverity,
		channel:   push.DefaultChannel,
		logger:    slog.Default(),
		queue:     newEventQueue(),
		runCtx:    context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.policy.Validate(); err != nil {
		return nil, fmt.Errorf("new coordinator: %w", err)
	}
	return c, nil
}

// Policy returns the fixed poll policy.
func (c *Coordinator) Policy() Policy {
	return c.policy
}

// Run starts the single-writer event loop.
// Blocks until ctx is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// On return every open cycle is torn down and queued commands are answered
// with a STOPPED error. No Observer callback fires after Run returns.
func (c *Coordinator) Run(ctx context.Context) error {
	c.runCtx = ctx
	c.logger.Info("coordinator starting",
		"interval", c.policy.Interval,
		"max_attempts", c.policy.MaxAttempts,
		"channel", c.channel,
	)
	defer c.shutdown()

	for {
		if batch := c.queue.Drain(); batch != nil {
			for _, ev := range orderTurn(batch) {
				c.process(ev)
			}
			continue
		}

		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping: context cancelled")
			return ctx.Err()

		case <-c.queue.Wait():
			// The signal channel is closed by Stop, which makes this case
			// fire immediately; exit once everything queued is handled.
			if c.queue.Closed() && c.queue.Len() == 0 {
				c.logger.Info("coordinator stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the loop. Idempotent.
func (c *Coordinator) Stop() {
	c.queue.Close()
}

// Start begins reconciling identifier. It returns as soon as the loop has
// recorded the pending confirmation and issued the immediate probe; the
// outcome arrives through the Observer.
//
// Starting the identifier that is already processing is a no-op. Starting
// a different identifier while one is processing fails with
// ALREADY_IN_FLIGHT and leaves the in-flight one untouched.
func (c *Coordinator) Start(ctx context.Context, identifier, targetHint string) error {
	_, err := c.submit(ctx, &command{op: opStart, identifier: identifier, target: targetHint})
	return err
}

// Retry runs one fresh probe for a timed-out confirmation. A negative
// answer returns it to Timeout without a second alert.
func (c *Coordinator) Retry(ctx context.Context) error {
	_, err := c.submit(ctx, &command{op: opRetry})
	return err
}

// Close cancels all outstanding work and discards the pending
// confirmation. Once Close returns no further OnSuccess or OnTimeout is
// delivered for it. Always safe to call.
func (c *Coordinator) Close(ctx context.Context) error {
	_, err := c.submit(ctx, &command{op: opClose})
	return err
}

// Snapshot returns a copy of the pending confirmation, or nil when idle.
func (c *Coordinator) Snapshot(ctx context.Context) (*confirm.PendingConfirmation, error) {
	r, err := c.submit(ctx, &command{op: opSnapshot})
	if err != nil {
		return nil, err
	}
	return r.snapshot, nil
}

func (c *Coordinator) submit(ctx context.Context, cmd *command) (commandReply, error) {
	cmd.reply = make(chan commandReply, 1)
	if !c.queue.Enqueue(event{kind: eventCommand, cmd: cmd}) {
		return commandReply{}, confirm.NewError(confirm.ErrCodeStopped, cmd.identifier, "coordinator is not running")
	}

	select {
	case r := <-cmd.reply:
		return r, r.err
	case <-ctx.Done():
		return commandReply{}, ctx.Err()
	}
}

// shutdown runs on the loop goroutine as Run returns.
func (c *Coordinator) shutdown() {
	c.queue.Close()
	c.closeCycle()

	for _, ev := range c.queue.Drain() {
		if ev.kind == eventCommand {
			ev.cmd.reply <- commandReply{
				err: confirm.NewError(confirm.ErrCodeStopped, ev.cmd.identifier, "coordinator is not running"),
			}
		}
	}
}
