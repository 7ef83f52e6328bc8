package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTransport carries push messages over Redis pub/sub.
type RedisTransport struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisTransport wraps an existing client. The caller owns the client.
func NewRedisTransport(client *redis.Client, logger *slog.Logger) *RedisTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTransport{client: client, logger: logger}
}

// Subscribe implements Transport. It returns once Redis has confirmed the
// subscription, so nothing published afterwards is missed.
func (t *RedisTransport) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	ps := t.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{})}
	go sub.pump(t.logger, channel, h)
	return sub, nil
}

// Publish sends batch on channel.
func (t *RedisTransport) Publish(ctx context.Context, channel string, batch ...Message) error {
	payload, err := EncodeBatch(batch)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	if err := t.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) pump(logger *slog.Logger, channel string, h Handler) {
	defer close(s.done)

	// Channel() is closed by ps.Close()
	for msg := range s.ps.Channel() {
		batch, err := DecodeBatch([]byte(msg.Payload))
		if err != nil {
			logger.Warn("dropping malformed push payload",
				"channel", channel,
				"error", err,
			)
			continue
		}
		h(batch)
	}
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
