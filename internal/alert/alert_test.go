package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/payconfirm/internal/confirm"
	"github.com/roach88/payconfirm/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitter_FillsDefaults(t *testing.T) {
	sink := testutil.NewRecordingSink()
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	e := NewEmitter(sink,
		WithEnvironment("staging"),
		WithNow(func() time.Time { return fixed }),
		WithLogger(quietLogger()),
	)

	e.Emit(context.Background(), confirm.Alert{Identifier: "si_3", ElapsedMs: 60000})
	e.Wait()

	alerts := sink.Alerts()
	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, confirm.AlertTypePaymentTimeout, a.Type)
	assert.Equal(t, DefaultSeverity, a.Severity)
	assert.Equal(t, "staging", a.Environment)
	assert.Equal(t, fixed, a.CreatedAt)
	assert.Equal(t, int64(60000), a.ElapsedMs)
}

func TestEmitter_KeepsExplicitFields(t *testing.T) {
	sink := testutil.NewRecordingSink()
	e := NewEmitter(sink, WithEnvironment("staging"), WithLogger(quietLogger()))

	e.Emit(context.Background(), confirm.Alert{ID: "a-1", Severity: "low", Environment: "prod", Identifier: "si_1"})
	e.Wait()

	a := sink.Alerts()[0]
	assert.Equal(t, "a-1", a.ID)
	assert.Equal(t, "low", a.Severity)
	assert.Equal(t, "prod", a.Environment)
}

func TestEmitter_SwallowsSinkFailure(t *testing.T) {
	var logs bytes.Buffer
	sink := testutil.NewRecordingSink()
	sink.FailWith(true)
	e := NewEmitter(sink, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	assert.NotPanics(t, func() {
		e.Emit(context.Background(), confirm.Alert{Identifier: "si_1"})
		e.Wait()
	})
	assert.Contains(t, logs.String(), "alert delivery failed")
}

func TestEmitter_RecoversSinkPanic(t *testing.T) {
	var logs bytes.Buffer
	e := NewEmitter(SinkFunc(func(ctx context.Context, a confirm.Alert) error {
		panic("sink exploded")
	}), WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	e.Emit(context.Background(), confirm.Alert{Identifier: "si_1"})
	e.Wait()
	assert.Contains(t, logs.String(), "alert sink panicked")
}

func TestEmitter_DoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	e := NewEmitter(SinkFunc(func(ctx context.Context, a confirm.Alert) error {
		<-release
		return nil
	}), WithLogger(quietLogger()))

	done := make(chan struct{})
	go func() {
		e.Emit(context.Background(), confirm.Alert{Identifier: "si_1"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on the sink")
	}
	close(release)
	e.Wait()
}

func TestEmitter_CancelledContextStillDelivers(t *testing.T) {
	sink := testutil.NewRecordingSink()
	e := NewEmitter(sink, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Emit(ctx, confirm.Alert{Identifier: "si_1"})
	e.Wait()

	assert.Len(t, sink.Alerts(), 1)
}

func TestEmitter_RateLimitTimesOut(t *testing.T) {
	var logs bytes.Buffer
	sink := testutil.NewRecordingSink()
	e := NewEmitter(sink,
		WithRatePerMinute(1),
		WithSendTimeout(20*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
	)

	e.Emit(context.Background(), confirm.Alert{Identifier: "si_1"})
	e.Emit(context.Background(), confirm.Alert{Identifier: "si_2"})
	e.Wait()

	assert.Len(t, sink.Alerts(), 1, "second alert should wait past the send timeout")
	assert.Contains(t, logs.String(), "alert dropped by rate limiter")
}

func TestWebhookSink(t *testing.T) {
	var got confirm.Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL, nil)
	err := sink.Send(context.Background(), confirm.Alert{
		ID:         "a-1",
		Type:       confirm.AlertTypePaymentTimeout,
		Identifier: "si_3",
		ElapsedMs:  60000,
	})
	require.NoError(t, err)
	assert.Equal(t, "si_3", got.Identifier)
	assert.Equal(t, int64(60000), got.ElapsedMs)
}

func TestWebhookSink_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL, nil).Send(context.Background(), confirm.Alert{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "503"))
}

func TestWebhookSink_CustomClient(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := resty.New().SetAuthToken("t_alerts")
	require.NoError(t, NewWebhookSink(srv.URL, client).Send(context.Background(), confirm.Alert{Identifier: "si_3"}))
	assert.Equal(t, "Bearer t_alerts", gotAuth)
}

func TestLogSink(t *testing.T) {
	var logs bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&logs, nil)))

	require.NoError(t, sink.Send(context.Background(), confirm.Alert{Identifier: "si_9", Type: confirm.AlertTypePaymentTimeout}))
	assert.Contains(t, logs.String(), "identifier=si_9")
	assert.Contains(t, logs.String(), "PAYMENT_TIMEOUT")
}
