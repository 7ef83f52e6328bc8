package reconcile

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/payconfirm/internal/confirm"
)

func TestEventQueue_DrainFIFO(t *testing.T) {
	q := newEventQueue()

	for _, c := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(event{kind: eventDeadline, cycle: c}))
	}
	assert.Equal(t, 3, q.Len())

	batch := q.Drain()
	require.Len(t, batch, 3)
	assert.Equal(t, "A", batch[0].cycle)
	assert.Equal(t, "B", batch[1].cycle)
	assert.Equal(t, "C", batch[2].cycle)

	assert.Nil(t, q.Drain(), "drain of empty queue returns nil")
}

func TestEventQueue_SignalCoalesces(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(event{kind: eventDeadline})
	q.Enqueue(event{kind: eventDeadline})

	<-q.Wait()
	select {
	case <-q.Wait():
		t.Fatal("second signal should have been coalesced")
	default:
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(event{kind: eventDeadline})
	q.Close()
	q.Close() // idempotent

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(event{kind: eventDeadline}), "enqueue after close should fail")

	// closed signal channel never blocks
	<-q.Wait()
	<-q.Wait()

	// events queued before close are still drained
	assert.Len(t, q.Drain(), 1)
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(event{kind: eventDeadline})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, q.Len())
}

func kinds(batch []event) []eventKind {
	out := make([]eventKind, len(batch))
	for i, e := range batch {
		out[i] = e.kind
	}
	return out
}

func TestOrderTurn(t *testing.T) {
	tests := []struct {
		name string
		in   []eventKind
		want []eventKind
	}{
		{
			name: "push before probe",
			in:   []eventKind{eventProbe, eventPush},
			want: []eventKind{eventPush, eventProbe},
		},
		{
			name: "push before deadline",
			in:   []eventKind{eventDeadline, eventProbe, eventPush},
			want: []eventKind{eventPush, eventDeadline, eventProbe},
		},
		{
			name: "commands split segments",
			in:   []eventKind{eventProbe, eventCommand, eventPush},
			want: []eventKind{eventProbe, eventCommand, eventPush},
		},
		{
			name: "reorder within each segment",
			in:   []eventKind{eventProbe, eventPush, eventCommand, eventProbe, eventPush},
			want: []eventKind{eventPush, eventProbe, eventCommand, eventPush, eventProbe},
		},
		{
			name: "empty",
			in:   nil,
			want: []eventKind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := make([]event, len(tt.in))
			for i, k := range tt.in {
				batch[i] = event{kind: k}
			}
			assert.Equal(t, tt.want, kinds(orderTurn(batch)))
		})
	}
}

func TestOrderTurn_StableWithinKind(t *testing.T) {
	batch := []event{
		{kind: eventPush, push: confirm.PushEvent{Identifier: "a"}},
		{kind: eventProbe, attempt: 1},
		{kind: eventPush, push: confirm.PushEvent{Identifier: "b"}},
		{kind: eventProbe, attempt: 2},
	}
	out := orderTurn(batch)
	assert.Equal(t, "a", out[0].push.Identifier)
	assert.Equal(t, "b", out[1].push.Identifier)
	assert.Equal(t, 1, out[2].attempt)
	assert.Equal(t, 2, out[3].attempt)
}
