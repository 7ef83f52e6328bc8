package testutil

import (
	"sync"
	"time"

	"github.com/roach88/payconfirm/internal/poll"
)

// ManualTicker is a poll.Ticker that only fires when told to.
type ManualTicker struct {
	c        chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
	interval time.Duration
}

func newManualTicker(d time.Duration) *ManualTicker {
	return &ManualTicker{
		c:        make(chan time.Time),
		stopped:  make(chan struct{}),
		interval: d,
	}
}

// C implements poll.Ticker.
func (t *ManualTicker) C() <-chan time.Time { return t.c }

// Stop implements poll.Ticker. Idempotent.
func (t *ManualTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

// Stopped reports whether Stop has been called.
func (t *ManualTicker) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
		return false
	}
}

// Tick hands one tick to the receiver. It blocks until the tick is taken
// and returns false if the ticker is (or becomes) stopped first, or if
// nobody takes it within timeout.
func (t *ManualTicker) Tick(timeout time.Duration) bool {
	// stopped wins over a receiver that happens to be ready
	if t.Stopped() {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case t.c <- time.Now():
		return true
	case <-t.stopped:
		return false
	case <-timer.C:
		return false
	}
}

// ManualTickers is a poll.TickerFactory that records every ticker it
// creates so tests can drive the most recent one.
type ManualTickers struct {
	mu      sync.Mutex
	tickers []*ManualTicker
}

// NewManualTickers creates an empty factory.
func NewManualTickers() *ManualTickers {
	return &ManualTickers{}
}

// New implements poll.TickerFactory.
func (m *ManualTickers) New(d time.Duration) poll.Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := newManualTicker(d)
	m.tickers = append(m.tickers, t)
	return t
}

// Count returns how many tickers have been created.
func (m *ManualTickers) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// Latest returns the most recently created ticker, or nil.
func (m *ManualTickers) Latest() *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

// Tick fires the latest ticker. Returns false if there is none or it is
// stopped.
func (m *ManualTickers) Tick(timeout time.Duration) bool {
	t := m.Latest()
	if t == nil {
		return false
	}
	return t.Tick(timeout)
}
