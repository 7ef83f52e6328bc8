package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/payconfirm/internal/confirm"
)

// ErrSubscribed is returned by Subscribe while a subscription is active.
var ErrSubscribed = errors.New("push listener already subscribed")

// EventFunc receives a relevant push event.
type EventFunc func(ev confirm.PushEvent)

// Listener forwards push events for one identifier.
//
// Thread-safety: all methods are safe for concurrent use. Delivery holds a
// read lock, so once Unsubscribe returns no callback is running or will run.
type Listener struct {
	transport Transport
	channel   string
	logger    *slog.Logger

	mu         sync.RWMutex
	gen        uint64
	active     bool
	identifier string
	onEvent    EventFunc
	sub        Subscription
}

// NewListener creates a Listener on channel. An empty channel means
// DefaultChannel.
func NewListener(t Transport, channel string, logger *slog.Logger) *Listener {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{transport: t, channel: channel, logger: logger}
}

// Channel returns the channel name the listener subscribes to.
func (l *Listener) Channel() string {
	return l.channel
}

// Subscribe starts forwarding events whose identifier matches identifier.
func (l *Listener) Subscribe(ctx context.Context, identifier string, onEvent EventFunc) error {
	l.mu.Lock()
	if l.active {
		l.mu.Unlock()
		return ErrSubscribed
	}
	l.gen++
	gen := l.gen
	l.active = true
	l.identifier = confirm.NormalizeIdentifier(identifier)
	l.onEvent = onEvent
	l.mu.Unlock()

	sub, err := l.transport.Subscribe(ctx, l.channel, func(batch []Message) {
		l.deliver(gen, batch)
	})
	if err != nil {
		l.mu.Lock()
		if l.gen == gen {
			l.active = false
			l.onEvent = nil
		}
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen || !l.active {
		// Unsubscribe raced with the transport call.
		return sub.Unsubscribe()
	}
	l.sub = sub
	return nil
}

// Unsubscribe stops delivery and releases the transport subscription.
// Idempotent.
func (l *Listener) Unsubscribe() error {
	l.mu.Lock()
	sub := l.sub
	l.active = false
	l.onEvent = nil
	l.sub = nil
	l.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

// Active reports whether the listener is subscribed.
func (l *Listener) Active() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

func (l *Listener) deliver(gen uint64, batch []Message) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, m := range batch {
		if !l.active || l.gen != gen {
			return
		}
		if m.Type != EventPaymentConfirmed {
			continue
		}
		if confirm.NormalizeIdentifier(m.Data.Identifier) != l.identifier {
			l.logger.Debug("dropping push event for other identifier",
				"channel", l.channel,
				"identifier", m.Data.Identifier,
			)
			continue
		}
		l.onEvent(m.Data)
	}
}
