package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/payconfirm/internal/confirm"
)

// createTestStore creates a new file-backed store under t.TempDir().
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := createTestStore(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
	require.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.MarkAlerted(context.Background(), confirm.Alert{Identifier: "si_1", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	alerted, err := s2.Alerted(context.Background(), "si_1")
	require.NoError(t, err)
	assert.True(t, alerted, "alert ledger must survive reopen")
}

func TestMarkAlerted_FirstOnly(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	a := confirm.Alert{
		ID:          "a-1",
		Type:        confirm.AlertTypePaymentTimeout,
		Severity:    "high",
		Identifier:  "si_3",
		ElapsedMs:   60000,
		Environment: "test",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	first, err := s.MarkAlerted(ctx, a)
	require.NoError(t, err)
	assert.True(t, first)

	a.ID = "a-2"
	first, err = s.MarkAlerted(ctx, a)
	require.NoError(t, err)
	assert.False(t, first)

	alerts, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "a-1", alerts[0].ID)
	assert.Equal(t, a.CreatedAt, alerts[0].CreatedAt)
	assert.Equal(t, int64(60000), alerts[0].ElapsedMs)
}

func TestMarkAlerted_Concurrent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		firsts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := s.MarkAlerted(ctx, confirm.Alert{Identifier: "si_race"})
			assert.NoError(t, err)
			if first {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, firsts)
}

func TestMarkAlerted_EmptyIdentifier(t *testing.T) {
	s := createTestStore(t)
	_, err := s.MarkAlerted(context.Background(), confirm.Alert{Identifier: "  "})
	assert.Error(t, err)
}

func TestOutcomes_WriteAndFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	rows := []confirm.Outcome{
		{Seq: 3, Identifier: "si_1", Cycle: "c-1", Kind: confirm.OutcomeTimeout, Attempt: 30, ElapsedMs: 60000, RecordedAt: at},
		{Seq: 7, Identifier: "si_1", Cycle: "c-2", Kind: confirm.OutcomeSuccess, Target: "order", ForObjectRef: json.RawMessage(`{"id":"o_1"}`), RecordedAt: at},
		{Seq: 5, Identifier: "si_2", Cycle: "c-3", Kind: confirm.OutcomeClosed, Attempt: 2, RecordedAt: at},
	}
	for _, o := range rows {
		require.NoError(t, s.WriteOutcome(ctx, o))
	}

	all, err := s.ReadOutcomes(ctx, OutcomeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{3, 7, 5}, []int64{all[0].Seq, all[1].Seq, all[2].Seq}, "insertion order")

	si1, err := s.ReadOutcomes(ctx, OutcomeFilter{Identifier: "si_1"})
	require.NoError(t, err)
	require.Len(t, si1, 2)
	assert.JSONEq(t, `{"id":"o_1"}`, string(si1[1].ForObjectRef))
	assert.Nil(t, si1[0].ForObjectRef)

	timeouts, err := s.ReadOutcomes(ctx, OutcomeFilter{Kind: confirm.OutcomeTimeout})
	require.NoError(t, err)
	require.Len(t, timeouts, 1)
	assert.Equal(t, 30, timeouts[0].Attempt)

	limited, err := s.ReadOutcomes(ctx, OutcomeFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOutcomes_RejectsUnknownKind(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteOutcome(context.Background(), confirm.Outcome{Identifier: "si_1", Kind: "bogus"})
	assert.Error(t, err)
}

func TestListAlerts_OrderedByTimeThenIdentifier(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, a := range []confirm.Alert{
		{ID: "a-3", Identifier: "si_c", CreatedAt: at.Add(time.Minute)},
		{ID: "a-2", Identifier: "si_b", CreatedAt: at},
		{ID: "a-1", Identifier: "si_a", CreatedAt: at},
	} {
		first, err := s.MarkAlerted(ctx, a)
		require.NoError(t, err)
		require.True(t, first)
	}

	alerts, err := s.ListAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 3)
	assert.Equal(t, []string{"si_a", "si_b", "si_c"},
		[]string{alerts[0].Identifier, alerts[1].Identifier, alerts[2].Identifier})
}

func TestListAlerts_Empty(t *testing.T) {
	s := createTestStore(t)
	alerts, err := s.ListAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestLastOutcomeSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq, err := s.LastOutcomeSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	for _, n := range []int64{4, 11, 9} {
		require.NoError(t, s.WriteOutcome(ctx, confirm.Outcome{
			Seq:        n,
			Identifier: "si_1",
			Kind:       confirm.OutcomeTimeout,
			RecordedAt: time.Now(),
		}))
	}

	seq, err = s.LastOutcomeSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), seq)
}
