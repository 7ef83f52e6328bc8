package confirm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_StringRoundTrip(t *testing.T) {
	for _, s := range []Status{StatusIdle, StatusProcessing, StatusSuccess, StatusTimeout} {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err := ParseStatus("bogus")
	assert.Error(t, err)
	assert.Equal(t, "status(9)", Status(9).String())
}

func TestNormalizeIdentifier(t *testing.T) {
	// "e" + combining acute accent vs precomposed U+00E9
	decomposed := "si_cafe\u0301"
	composed := "si_caf\u00e9"

	assert.Equal(t, composed, NormalizeIdentifier(decomposed))
	assert.Equal(t, "si_1", NormalizeIdentifier("  si_1\n"))
	assert.True(t, SameIdentifier(decomposed, composed))
	assert.False(t, SameIdentifier("si_1", "si_2"))
}

func TestPushEvent_Result(t *testing.T) {
	ev := PushEvent{Identifier: "si_1", Target: "order", ForObjectRef: []byte(`{"id":"o_1"}`)}
	res := ev.Result()

	assert.True(t, res.Confirmed)
	assert.Equal(t, "order", res.Target)
	assert.JSONEq(t, `{"id":"o_1"}`, string(res.ForObjectRef))
}

func TestPendingConfirmation_Elapsed(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &PendingConfirmation{EnteredAt: start, MaxAttempts: 30, Interval: 2 * time.Second}

	assert.Equal(t, 5*time.Second, p.Elapsed(start.Add(5*time.Second)))
	assert.Equal(t, 60*time.Second, p.Ceiling())

	var zero PendingConfirmation
	assert.Zero(t, zero.Elapsed(start))
}

func TestError_Codes(t *testing.T) {
	err := fmt.Errorf("start: %w", NewError(ErrCodeAlreadyInFlight, "si_1", "reconciliation already in flight"))

	assert.True(t, IsInFlight(err))
	assert.True(t, IsCode(err, ErrCodeAlreadyInFlight))
	assert.False(t, IsCode(err, ErrCodeNoPending))
	assert.False(t, IsInFlight(errors.New("plain")))
	assert.Contains(t, err.Error(), "identifier=si_1")
	assert.Equal(t, "NO_PENDING: nothing pending", NewError(ErrCodeNoPending, "", "nothing pending").Error())
}
