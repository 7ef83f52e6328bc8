package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/poll"
	"github.com/roach88/payconfirm/internal/push"
)

// process handles one event. Runs on the loop goroutine only.
func (c *Coordinator) process(ev event) {
	switch ev.kind {
	case eventCommand:
		c.handleCommand(ev.cmd)
	case eventProbe:
		c.handleProbe(ev)
	case eventPush:
		c.handlePush(ev)
	case eventDeadline:
		c.handleDeadline(ev)
	case eventSubscribed:
		c.handleSubscribed(ev)
	default:
		c.logger.Error("unknown event kind", "kind", ev.kind)
	}
}

func (c *Coordinator) handleCommand(cmd *command) {
	var r commandReply
	switch cmd.op {
	case opStart:
		r.err = c.start(cmd.identifier, cmd.target)
	case opRetry:
		r.err = c.retry()
	case opClose:
		c.close()
	case opSnapshot:
		r.snapshot = c.snapshot()
	}
	cmd.reply <- r
}

func (c *Coordinator) start(identifier, target string) error {
	id := confirm.NormalizeIdentifier(identifier)
	if id == "" {
		return confirm.NewError(confirm.ErrCodeInvalidIdentifier, identifier, "identifier is required")
	}

	alertSent := false
	if p := c.pending; p != nil {
		same := p.Identifier == id
		switch p.Status {
		case confirm.StatusProcessing:
			if same {
				return nil
			}
			c.trace(TraceRejected, p, fmt.Sprintf("requested=%s code=%s", id, confirm.ErrCodeAlreadyInFlight))
			return confirm.NewError(confirm.ErrCodeAlreadyInFlight, id,
				fmt.Sprintf("reconciliation of %s is still in flight", p.Identifier))
		case confirm.StatusSuccess:
			if same {
				return confirm.NewError(confirm.ErrCodeConsumed, id, "identifier is already confirmed")
			}
		case confirm.StatusTimeout:
			alertSent = same && p.AlertSent
		}
		c.closeCycle()
		c.pending = nil
	}

	c.pending = &confirm.PendingConfirmation{
		Identifier:  id,
		Target:      target,
		Status:      confirm.StatusProcessing,
		MaxAttempts: c.policy.MaxAttempts,
		Interval:    c.policy.Interval,
		AlertSent:   alertSent,
		EnteredAt:   c.now(),
		Cycle:       c.ids.Generate(),
	}
	c.openCycle(c.policy.Deadline())

	detail := ""
	if target != "" {
		detail = "target=" + target
	}
	c.trace(TraceStart, c.pending, detail)
	c.logger.Info("reconciliation started", "identifier", id, "cycle", c.pending.Cycle)

	c.launchProbe(sourceInitial)
	return nil
}

func (c *Coordinator) retry() error {
	p := c.pending
	if p == nil {
		return confirm.NewError(confirm.ErrCodeNoPending, "", "nothing to retry")
	}
	switch p.Status {
	case confirm.StatusTimeout:
	case confirm.StatusSuccess:
		return confirm.NewError(confirm.ErrCodeConsumed, p.Identifier, "identifier is already confirmed")
	default:
		return confirm.NewError(confirm.ErrCodeNotTimedOut, p.Identifier,
			fmt.Sprintf("retry needs status timeout, have %s", p.Status))
	}

	p.Status = confirm.StatusProcessing
	p.Attempt = 0
	p.EnteredAt = c.now()
	p.Cycle = c.ids.Generate()
	c.openCycle(c.policy.RetryDeadline())

	c.trace(TraceRetry, p, "")
	c.logger.Info("manual retry", "identifier", p.Identifier, "cycle", p.Cycle)

	c.launchProbe(sourceRetry)
	return nil
}

func (c *Coordinator) close() {
	p := c.pending
	if p == nil {
		return
	}

	c.closeCycle()
	if p.Status == confirm.StatusProcessing {
		c.recordOutcome(p, confirm.OutcomeClosed)
	}
	c.pending = nil

	c.emitTrace(Trace{
		Seq:        c.clock.Next(),
		Kind:       TraceClosed,
		Identifier: p.Identifier,
		Cycle:      p.Cycle,
		Status:     confirm.StatusIdle,
		Attempt:    p.Attempt,
	})
	c.logger.Info("reconciliation closed", "identifier", p.Identifier, "was", p.Status)
	c.observer.OnClosed(p.Identifier)
}

func (c *Coordinator) snapshot() *confirm.PendingConfirmation {
	if c.pending == nil {
		return nil
	}
	cp := *c.pending
	if c.pending.Result != nil {
		r := *c.pending.Result
		cp.Result = &r
	}
	return &cp
}

func (c *Coordinator) handleProbe(ev event) {
	p := c.pending
	if p == nil || ev.cycle != p.Cycle {
		c.drop(ev, "", "stale")
		return
	}
	if p.Status != confirm.StatusProcessing {
		c.drop(ev, p.Identifier, "settled")
		return
	}

	confirmed := ev.err == nil && ev.result.Confirmed
	switch ev.source {
	case sourceInitial:
		c.traceProbe(p, ev)
		if confirmed {
			c.succeed(ev.result, string(sourceInitial))
			return
		}
		c.openChannels()

	case sourcePoll:
		if ev.attempt > p.Attempt {
			p.Attempt = ev.attempt
		}
		c.traceProbe(p, ev)
		if confirmed {
			c.succeed(ev.result, string(sourcePoll))
			return
		}
		if p.Attempt >= p.MaxAttempts {
			c.timeout("exhausted")
		}

	case sourceRetry:
		p.Attempt = 1
		c.traceProbe(p, ev)
		if confirmed {
			c.succeed(ev.result, string(sourceRetry))
			return
		}
		c.timeout("retry")
	}
}

func (c *Coordinator) handlePush(ev event) {
	p := c.pending
	if p == nil || ev.cycle != p.Cycle || !confirm.SameIdentifier(ev.push.Identifier, p.Identifier) {
		c.drop(ev, ev.push.Identifier, "stale")
		return
	}
	if p.Status != confirm.StatusProcessing {
		c.drop(ev, p.Identifier, "settled")
		return
	}

	detail := ""
	if ev.push.Target != "" {
		detail = "target=" + ev.push.Target
	}
	c.trace(TracePush, p, detail)
	c.succeed(ev.push.Result(), "push")
}

func (c *Coordinator) handleDeadline(ev event) {
	p := c.pending
	if p == nil || ev.cycle != p.Cycle || p.Status != confirm.StatusProcessing {
		return
	}
	c.trace(TraceDeadline, p, "")
	c.timeout("deadline")
}

func (c *Coordinator) succeed(res confirm.Result, via string) {
	p := c.pending
	res.Confirmed = true
	if res.Target == "" {
		res.Target = p.Target
	}
	p.Status = confirm.StatusSuccess
	p.Target = res.Target
	p.Result = &res

	c.closeCycle()

	detail := "via=" + via
	if res.Target != "" {
		detail += " target=" + res.Target
	}
	c.trace(TraceSuccess, p, detail)
	c.logger.Info("payment confirmed",
		"identifier", p.Identifier,
		"via", via,
		"attempt", p.Attempt,
		"target", res.Target,
	)

	c.recordOutcome(p, confirm.OutcomeSuccess)
	c.observer.OnSuccess(p.Identifier, res)
}

func (c *Coordinator) timeout(reason string) {
	p := c.pending
	p.Status = confirm.StatusTimeout

	c.closeCycle()

	c.trace(TraceTimeout, p, "reason="+reason)
	c.logger.Warn("payment confirmation timed out",
		"identifier", p.Identifier,
		"reason", reason,
		"attempt", p.Attempt,
		"elapsed", p.Elapsed(c.now()),
	)

	c.escalate(p)
	c.recordOutcome(p, confirm.OutcomeTimeout)
	c.observer.OnTimeout(p.Identifier)
}

// escalate emits at most one alert per identifier. The pending flag covers
// the current record; the ledger covers restarts of the same identifier.
func (c *Coordinator) escalate(p *confirm.PendingConfirmation) {
	if p.AlertSent {
		return
	}
	p.AlertSent = true

	now := c.now()
	a := confirm.Alert{
		ID:          UUIDv7Generator{}.Generate(),
		Type:        confirm.AlertTypePaymentTimeout,
		Severity:    c.severity,
		Identifier:  p.Identifier,
		ElapsedMs:   p.Elapsed(now).Milliseconds(),
		Environment: c.environment,
		CreatedAt:   now.UTC(),
	}

	first := true
	if c.ledger != nil {
		ok, err := c.ledger.MarkAlerted(c.runCtx, a)
		if err != nil {
			c.logger.Error("alert ledger unavailable, emitting anyway",
				"identifier", p.Identifier,
				"error", err,
			)
		} else {
			first = ok
		}
	}
	if !first {
		c.trace(TraceAlert, p, "suppressed")
		return
	}

	c.trace(TraceAlert, p, "emitted")
	if c.emitter != nil {
		c.emitter.Emit(c.runCtx, a)
	}
}

func (c *Coordinator) recordOutcome(p *confirm.PendingConfirmation, kind confirm.OutcomeKind) {
	if c.outcomes == nil {
		return
	}
	now := c.now()
	o := confirm.Outcome{
		Seq:        c.clock.Current(),
		Identifier: p.Identifier,
		Cycle:      p.Cycle,
		Kind:       kind,
		Attempt:    p.Attempt,
		Target:     p.Target,
		ElapsedMs:  p.Elapsed(now).Milliseconds(),
		RecordedAt: now.UTC(),
	}
	if p.Result != nil {
		o.ForObjectRef = p.Result.ForObjectRef
	}
	if err := c.outcomes.WriteOutcome(c.runCtx, o); err != nil {
		c.logger.Error("write outcome failed", "identifier", p.Identifier, "kind", kind, "error", err)
	}
}

// openCycle creates the cycle context and arms the deadline guard for the
// current pending cycle.
func (c *Coordinator) openCycle(deadline time.Duration) {
	ctx, cancel := context.WithCancel(c.runCtx)
	cycle := c.pending.Cycle
	c.cycle = &cycleState{
		ctx:    ctx,
		cancel: cancel,
		deadline: time.AfterFunc(deadline, func() {
			c.queue.Enqueue(event{kind: eventDeadline, cycle: cycle})
		}),
	}
}

// openChannels starts the poll driver and the push listener for the
// current cycle. A push subscription failure leaves polling alone.
func (c *Coordinator) openChannels() {
	p := c.pending
	cs := c.cycle
	cycle := p.Cycle

	cs.driver = poll.NewDriver(c.prober, p.Interval, p.MaxAttempts,
		poll.WithTickerFactory(c.newTicker),
		poll.WithLogger(c.logger),
	)
	err := cs.driver.Start(cs.ctx, p.Identifier, func(attempt int, res confirm.Result, err error) {
		c.queue.Enqueue(event{
			kind:    eventProbe,
			cycle:   cycle,
			source:  sourcePoll,
			attempt: attempt,
			result:  res,
			err:     err,
		})
	})
	if err != nil {
		c.logger.Error("poll driver failed to start", "identifier", p.Identifier, "error", err)
	}

	if c.transport == nil {
		c.trace(TracePolling, p, fmt.Sprintf("interval=%s max_attempts=%d push=false", p.Interval, p.MaxAttempts))
		return
	}

	// Subscribing may be a network round trip, so it runs off the loop.
	// The listener is registered on the cycle first: closeCycle cancels
	// ctx and unsubscribes it whether or not Subscribe has returned.
	l := push.NewListener(c.transport, c.channel, c.logger)
	cs.listener = l
	ctx := cs.ctx
	identifier := p.Identifier

	go func() {
		err := l.Subscribe(ctx, identifier, func(ev confirm.PushEvent) {
			c.queue.Enqueue(event{kind: eventPush, cycle: cycle, push: ev})
		})
		if ctx.Err() != nil {
			if err == nil {
				_ = l.Unsubscribe()
			}
			return
		}
		c.queue.Enqueue(event{kind: eventSubscribed, cycle: cycle, err: err})
	}()
}

// handleSubscribed reports the push subscription of the current cycle.
// A cycle that settled meanwhile has already released its listener.
func (c *Coordinator) handleSubscribed(ev event) {
	p := c.pending
	if p == nil || c.cycle == nil || ev.cycle != p.Cycle || p.Status != confirm.StatusProcessing {
		return
	}

	subscribed := ev.err == nil
	if !subscribed {
		c.logger.Warn("push subscription failed, polling only",
			"identifier", p.Identifier,
			"channel", c.channel,
			"error", ev.err,
		)
		c.cycle.listener = nil
	}
	c.trace(TracePolling, p, fmt.Sprintf("interval=%s max_attempts=%d push=%t", p.Interval, p.MaxAttempts, subscribed))
}

// launchProbe issues one probe outside the poll driver. The result is
// discarded if the cycle closes first.
func (c *Coordinator) launchProbe(source probeSource) {
	ctx := c.cycle.ctx
	cycle := c.pending.Cycle
	identifier := c.pending.Identifier

	go func() {
		res, err := c.prober.Probe(ctx, identifier)
		if ctx.Err() != nil {
			return
		}
		c.queue.Enqueue(event{
			kind:   eventProbe,
			cycle:  cycle,
			source: source,
			result: res,
			err:    err,
		})
	}()
}

// closeCycle tears down every background source of the current cycle.
// After it returns nothing new is scheduled for that cycle; anything
// already queued is dropped by cycle id.
func (c *Coordinator) closeCycle() {
	cs := c.cycle
	if cs == nil {
		return
	}
	c.cycle = nil

	if cs.deadline != nil {
		cs.deadline.Stop()
	}
	if cs.driver != nil {
		cs.driver.Cancel()
	}
	// cancel before Unsubscribe: a Subscribe still in flight sees the
	// cancelled ctx when it returns and releases itself
	cs.cancel()
	if cs.listener != nil {
		if err := cs.listener.Unsubscribe(); err != nil {
			c.logger.Warn("push unsubscribe failed", "channel", c.channel, "error", err)
		}
	}
}

func (c *Coordinator) traceProbe(p *confirm.PendingConfirmation, ev event) {
	if ev.err != nil {
		c.trace(TraceProbeError, p, fmt.Sprintf("source=%s error=%q", ev.source, ev.err.Error()))
		c.logger.Warn("probe failed", "identifier", p.Identifier, "source", ev.source, "error", ev.err)
		return
	}
	c.trace(TraceProbe, p, fmt.Sprintf("source=%s confirmed=%t", ev.source, ev.result.Confirmed))
}

func (c *Coordinator) drop(ev event, identifier, reason string) {
	kind := "probe"
	if ev.kind == eventPush {
		kind = "push"
	}
	t := Trace{
		Seq:        c.clock.Next(),
		Kind:       TraceDropped,
		Identifier: identifier,
		Cycle:      ev.cycle,
		Detail:     fmt.Sprintf("kind=%s reason=%s", kind, reason),
	}
	if p := c.pending; p != nil {
		if t.Identifier == "" {
			t.Identifier = p.Identifier
		}
		t.Status = p.Status
		t.Attempt = p.Attempt
	}
	c.emitTrace(t)
}

func (c *Coordinator) trace(kind TraceKind, p *confirm.PendingConfirmation, detail string) {
	c.emitTrace(Trace{
		Seq:        c.clock.Next(),
		Kind:       kind,
		Identifier: p.Identifier,
		Cycle:      p.Cycle,
		Status:     p.Status,
		Attempt:    p.Attempt,
		Detail:     detail,
	})
}

func (c *Coordinator) emitTrace(t Trace) {
	c.logger.Debug("reconcile step",
		"seq", t.Seq,
		"kind", t.Kind,
		"identifier", t.Identifier,
		"cycle", t.Cycle,
		"status", t.Status,
		"attempt", t.Attempt,
	)
	if c.tracer != nil {
		c.tracer(t)
	}
}
