package reconcile

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/payconfirm/internal/alert"
	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/push"
	"github.com/roach88/payconfirm/internal/testutil"
)

const waitTimeout = 2 * time.Second

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture runs a Coordinator against scripted collaborators.
type fixture struct {
	c        *Coordinator
	prober   *testutil.ScriptedProber
	tickers  *testutil.ManualTickers
	bus      *push.Bus
	observer *testutil.RecordingObserver
	sink     *testutil.RecordingSink
	emitter  *alert.Emitter
	outcomes *outcomeRecorder
	traces   chan Trace
	done     chan error
}

func newFixture(t *testing.T, steps []testutil.ProbeStep, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		prober:   testutil.NewScriptedProber(steps...),
		tickers:  testutil.NewManualTickers(),
		bus:      push.NewBus(),
		observer: testutil.NewRecordingObserver(),
		sink:     testutil.NewRecordingSink(),
		outcomes: &outcomeRecorder{},
		traces:   make(chan Trace, 4096),
		done:     make(chan error, 1),
	}
	f.emitter = alert.NewEmitter(f.sink, alert.WithLogger(quietLogger()))

	base := []Option{
		WithObserver(f.observer),
		WithTickerFactory(f.tickers.New),
		WithIDGenerator(testutil.NewSequenceGenerator("cycle")),
		WithOutcomeLog(f.outcomes),
		WithLogger(quietLogger()),
		WithTracer(func(tr Trace) { f.traces <- tr }),
	}
	c, err := New(f.prober, f.bus, f.emitter, append(base, opts...)...)
	require.NoError(t, err)
	f.c = c

	ctx, cancel := context.WithCancel(context.Background())
	go func() { f.done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		f.prober.Unblock()
		<-f.done
		f.emitter.Wait()
	})
	return f
}

// waitFor skips traces until one of kind arrives.
func (f *fixture) waitFor(t *testing.T, kind TraceKind) Trace {
	t.Helper()
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	for {
		select {
		case tr := <-f.traces:
			if tr.Kind == kind {
				return tr
			}
		case <-timer.C:
			t.Fatalf("timed out waiting for %s trace", kind)
			return Trace{}
		}
	}
}

// tick fires one poll tick and waits for its probe trace.
func (f *fixture) tick(t *testing.T) Trace {
	t.Helper()
	require.True(t, f.tickers.Tick(waitTimeout), "tick not taken")
	return f.waitFor(t, TraceProbe)
}

func (f *fixture) publish(identifier, target string) int {
	return f.bus.Publish(push.DefaultChannel, push.Confirmed(confirm.PushEvent{
		Identifier: identifier,
		Target:     target,
	}))
}

func (f *fixture) snapshot(t *testing.T) *confirm.PendingConfirmation {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	p, err := f.c.Snapshot(ctx)
	require.NoError(t, err)
	return p
}

// drainTraces returns every trace buffered so far.
func (f *fixture) drainTraces() []Trace {
	var out []Trace
	for {
		select {
		case tr := <-f.traces:
			out = append(out, tr)
		default:
			return out
		}
	}
}

type outcomeRecorder struct {
	mu   sync.Mutex
	list []confirm.Outcome
}

func (r *outcomeRecorder) WriteOutcome(_ context.Context, o confirm.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, o)
	return nil
}

func (r *outcomeRecorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.list))
	for i, o := range r.list {
		out[i] = string(o.Kind)
	}
	return out
}

func hasDetail(tr Trace, part string) bool {
	return strings.Contains(tr.Detail, part)
}
