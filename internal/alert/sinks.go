package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"

	"github.com/roach88/payconfirm/internal/confirm"
)

// WebhookSink POSTs the alert as JSON. Any non-2xx answer is an error.
type WebhookSink struct {
	url    string
	client *resty.Client
}

// NewWebhookSink creates a sink posting to url. A nil client uses
// resty.New(); the Emitter's send timeout bounds each request through ctx.
func NewWebhookSink(url string, client *resty.Client) *WebhookSink {
	if client == nil {
		client = resty.New()
	}
	return &WebhookSink{url: url, client: client}
}

// Send implements Sink.
func (s *WebhookSink) Send(ctx context.Context, a confirm.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("post alert: unexpected status %d", resp.StatusCode())
	}
	return nil
}

// RedisSink PUBLISHes the alert JSON on a Redis channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink creates a sink publishing on channel.
func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

// Send implements Sink.
func (s *RedisSink) Send(ctx context.Context, a confirm.Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, body).Err(); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// LogSink writes the alert to a logger at Warn. It never fails.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink; a nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Send implements Sink.
func (s *LogSink) Send(ctx context.Context, a confirm.Alert) error {
	s.logger.Warn("payment confirmation alert",
		"alert_id", a.ID,
		"alert_type", a.Type,
		"severity", a.Severity,
		"identifier", a.Identifier,
		"elapsed_ms", a.ElapsedMs,
		"environment", a.Environment,
	)
	return nil
}
