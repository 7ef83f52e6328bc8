package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/payconfirm/internal/alert"
	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/push"
	"github.com/roach88/payconfirm/internal/reconcile"
	"github.com/roach88/payconfirm/internal/testutil"
)

// stepTimeout bounds every wait for the coordinator to react to a step.
const stepTimeout = 2 * time.Second

// epoch is the fixed wall clock every scenario starts at.
var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// traceLog collects coordinator traces and wakes waiters on every append.
type traceLog struct {
	mu     sync.Mutex
	traces []reconcile.Trace
	signal chan struct{}
}

func newTraceLog() *traceLog {
	return &traceLog{signal: make(chan struct{}, 1)}
}

func (l *traceLog) record(t reconcile.Trace) {
	l.mu.Lock()
	l.traces = append(l.traces, t)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *traceLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.traces)
}

func (l *traceLog) since(mark int) []reconcile.Trace {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]reconcile.Trace, len(l.traces)-mark)
	copy(out, l.traces[mark:])
	return out
}

// waitFor blocks until a trace of one of kinds is recorded at or after mark.
func (l *traceLog) waitFor(mark int, kinds ...reconcile.TraceKind) error {
	deadline := time.NewTimer(stepTimeout)
	defer deadline.Stop()

	for {
		for _, t := range l.since(mark) {
			for _, k := range kinds {
				if t.Kind == k {
					return nil
				}
			}
		}
		select {
		case <-l.signal:
		case <-deadline.C:
			return fmt.Errorf("timed out waiting for %v trace", kinds)
		}
	}
}

// runner holds one scenario's coordinator and its doubles.
type runner struct {
	scenario *Scenario
	c        *reconcile.Coordinator
	prober   *testutil.ScriptedProber
	tickers  *testutil.ManualTickers
	bus      *push.Bus
	observer *testutil.RecordingObserver
	sink     *testutil.RecordingSink
	emitter  *alert.Emitter
	log      *traceLog
	ticks    int
	result   *Result
}

// Run executes a scenario against a fresh Coordinator and returns its
// transcript. A non-nil error means the scenario could not be driven; a
// failed expectation is reported through Result.Pass instead.
func Run(scenario *Scenario) (*Result, error) {
	if scenario == nil {
		return nil, fmt.Errorf("scenario is nil")
	}

	policy := reconcile.DefaultPolicy()
	if scenario.Policy != nil {
		policy = reconcile.Policy{
			Interval:    scenario.Policy.Interval.Std(),
			MaxAttempts: scenario.Policy.MaxAttempts,
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFixedClock(epoch)

	r := &runner{
		scenario: scenario,
		prober:   testutil.NewScriptedProber(scenario.Probe...),
		tickers:  testutil.NewManualTickers(),
		bus:      push.NewBus(),
		observer: testutil.NewRecordingObserver(),
		sink:     testutil.NewRecordingSink(),
		log:      newTraceLog(),
		result:   NewResult(),
	}
	r.emitter = alert.NewEmitter(r.sink,
		alert.WithLogger(logger),
		alert.WithNow(clock.Now),
	)

	c, err := reconcile.New(r.prober, r.bus, r.emitter,
		reconcile.WithPolicy(policy),
		reconcile.WithObserver(r.observer),
		reconcile.WithTracer(r.log.record),
		reconcile.WithTickerFactory(r.tickers.New),
		reconcile.WithIDGenerator(testutil.NewSequenceGenerator("cycle")),
		reconcile.WithNow(clock.Now),
		reconcile.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator: %w", err)
	}
	r.c = c

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	for i, step := range scenario.Steps {
		if err := r.step(ctx, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	summary, err := r.summarize(ctx)
	if err != nil {
		return nil, err
	}

	r.result.Summary = summary
	r.result.Transcript = append(r.result.Transcript, summary.String())
	r.result.Traces = r.log.since(0)
	checkExpect(scenario.Expect, summary, r.result)

	return r.result, nil
}

func (r *runner) step(ctx context.Context, step Step) error {
	if step.Tick > 0 {
		for i := 0; i < step.Tick; i++ {
			if err := r.tick(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	mark := r.log.len()

	var (
		header string
		err    error
	)
	switch {
	case step.Start != nil:
		header, err = r.start(ctx, step.Start, mark)
	case step.Push != nil:
		header, err = r.push(step.Push)
	case step.Retry:
		header, err = r.retry(ctx, mark)
	case step.Close:
		header = "> close"
		err = r.c.Close(ctx)
	}
	if err != nil {
		return err
	}
	return r.settle(ctx, header, mark)
}

// settle waits for the loop to finish everything the step caused, then
// appends the header and the step's traces to the transcript.
func (r *runner) settle(ctx context.Context, header string, mark int) error {
	// barrier: every event enqueued by this step is processed before the
	// snapshot command is answered
	if _, err := r.c.Snapshot(ctx); err != nil {
		return fmt.Errorf("barrier: %w", err)
	}

	r.result.Transcript = append(r.result.Transcript, header)
	for _, t := range r.log.since(mark) {
		r.result.Transcript = append(r.result.Transcript, t.String())
	}
	return nil
}

func (r *runner) start(ctx context.Context, s *StartStep, mark int) (string, error) {
	id := s.Identifier
	if id == "" {
		id = r.scenario.Identifier
	}
	header := "> start " + id
	if s.Target != "" {
		header += " target=" + s.Target
	}

	before, err := r.c.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	if err := r.c.Start(ctx, id, s.Target); err != nil {
		code, ok := errorCode(err)
		if !ok {
			return "", err
		}
		return header + " error=" + code, nil
	}

	after, err := r.c.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if after == nil || (before != nil && before.Cycle == after.Cycle) {
		return header, nil
	}

	// the initial probe either settles the cycle or opens polling
	if err := r.log.waitFor(mark, reconcile.TraceSuccess, reconcile.TracePolling); err != nil {
		return "", err
	}
	return header, nil
}

// tick fires one poll tick. A tick nobody takes (no live poll driver) is
// recorded as refused.
func (r *runner) tick(ctx context.Context) error {
	r.ticks++
	mark := r.log.len()

	if !r.tickers.Tick(stepTimeout) {
		return r.settle(ctx, fmt.Sprintf("> tick %d refused", r.ticks), mark)
	}
	if err := r.log.waitFor(mark, reconcile.TraceProbe, reconcile.TraceProbeError); err != nil {
		return fmt.Errorf("tick %d: %w", r.ticks, err)
	}
	return r.settle(ctx, fmt.Sprintf("> tick %d", r.ticks), mark)
}

func (r *runner) push(p *PushStep) (string, error) {
	id := p.Identifier
	if id == "" {
		id = r.scenario.Identifier
	}

	ev := confirm.PushEvent{Identifier: id, Target: p.Target}
	if p.Ref != "" {
		ref, err := json.Marshal(p.Ref)
		if err != nil {
			return "", err
		}
		ev.ForObjectRef = ref
	}

	n := r.bus.Publish(push.DefaultChannel, push.Confirmed(ev))
	return fmt.Sprintf("> push %s subscribers=%d", id, n), nil
}

func (r *runner) retry(ctx context.Context, mark int) (string, error) {
	if err := r.c.Retry(ctx); err != nil {
		code, ok := errorCode(err)
		if !ok {
			return "", err
		}
		return "> retry error=" + code, nil
	}
	if err := r.log.waitFor(mark, reconcile.TraceSuccess, reconcile.TraceTimeout); err != nil {
		return "", err
	}
	return "> retry", nil
}

func (r *runner) summarize(ctx context.Context) (Summary, error) {
	p, err := r.c.Snapshot(ctx)
	if err != nil {
		return Summary{}, err
	}
	r.emitter.Wait()

	status := confirm.StatusIdle
	if p != nil {
		status = p.Status
	}
	return Summary{
		Status:    status.String(),
		Successes: r.observer.Successes(),
		Timeouts:  len(r.observer.Timeouts()),
		Closed:    len(r.observer.Closed()),
		Alerts:    len(r.sink.Alerts()),
		Probes:    r.prober.Calls(),
	}, nil
}

func errorCode(err error) (string, bool) {
	var ce *confirm.Error
	if errors.As(err, &ce) {
		return string(ce.Code), true
	}
	return "", false
}
