package push

import (
	"context"
	"sync"
)

// Subscription is an active registration on a Transport.
type Subscription interface {
	// Unsubscribe removes the handler. Idempotent.
	Unsubscribe() error
}

// Transport is the pub/sub collaborator.
type Transport interface {
	Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error)
}

// Bus is an in-process Transport. Publish delivers synchronously to every
// handler registered on the channel at the time of the call.
//
// Thread-safety: safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[string]map[uint64]Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[uint64]Handler)}
}

// Subscribe implements Transport.
func (b *Bus) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	if b.handlers[channel] == nil {
		b.handlers[channel] = make(map[uint64]Handler)
	}
	b.handlers[channel][id] = h

	return &busSubscription{bus: b, channel: channel, id: id}, nil
}

// Publish delivers batch to every current subscriber of channel and
// returns how many handlers were called.
func (b *Bus) Publish(channel string, batch ...Message) int {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[channel]))
	for _, h := range b.handlers[channel] {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(batch)
	}
	return len(hs)
}

// Subscribers returns the number of handlers on channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[channel])
}

type busSubscription struct {
	bus     *Bus
	channel string
	id      uint64
}

func (s *busSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.handlers[s.channel], s.id)
	if len(s.bus.handlers[s.channel]) == 0 {
		delete(s.bus.handlers, s.channel)
	}
	return nil
}
