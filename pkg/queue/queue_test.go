package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOperation(id string, typ Type, priority Priority, ts time.Time) *Operation {
	op := NewOperation(typ, MustPayload(map[string]string{"id": id}), priority)
	op.ID = id
	op.Timestamp = ts
	return op
}

func ids(ops []*Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.ID)
	}
	return out
}

func TestQueue_AddBatchOrdersByPriorityThenInsertion(t *testing.T) {
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	q := NewQueue()

	err := q.AddBatch([]*Operation{
		newTestOperation("low-1", TypeDataUpload, PriorityLow, base),
		newTestOperation("crit-1", TypeDataUpload, PriorityCritical, base.Add(time.Second)),
		newTestOperation("high-1", TypeDataUpload, PriorityHigh, base.Add(2*time.Second)),
		newTestOperation("low-2", TypeDataUpload, PriorityLow, base.Add(3*time.Second)),
		newTestOperation("norm-1", TypeDataUpload, PriorityNormal, base.Add(4*time.Second)),
		newTestOperation("crit-2", TypeDataUpload, PriorityCritical, base.Add(5*time.Second)),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"crit-1", "crit-2", "high-1", "norm-1", "low-1", "low-2"}, ids(q.Pending()))
}

func TestQueue_AddRejectsDuplicates(t *testing.T) {
	q := NewQueue()
	op := newTestOperation("dup", TypeDelete, PriorityNormal, time.Now())
	require.NoError(t, q.Add(op))

	assert.ErrorIs(t, q.Add(op), ErrDuplicateOperation)

	other := newTestOperation("other", TypeDelete, PriorityNormal, time.Now())
	err := q.AddBatch([]*Operation{other, other})
	assert.ErrorIs(t, err, ErrDuplicateOperation)
	_, ok := q.Get("other")
	assert.False(t, ok, "a rejected batch must not be partially added")
}

func TestQueue_FailAndReset(t *testing.T) {
	now := time.Now()
	q := NewQueue()
	op := newTestOperation("op-1", TypeProfileUpdate, PriorityNormal, now)
	require.NoError(t, q.Add(op))

	require.NoError(t, op.Begin(now))
	require.NoError(t, op.Fail(errors.New("404")))
	require.NoError(t, q.MarkFailed(op.ID))

	assert.Equal(t, 0, q.Len())
	assert.Equal(t, []string{"op-1"}, ids(q.Failed()))

	reset, err := q.Reset(op.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, reset.Attempts)
	assert.Equal(t, StatusPending, reset.Status)
	assert.Empty(t, q.Failed())
	assert.Equal(t, []string{"op-1"}, ids(q.Pending()))

	_, err = q.Reset(op.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestQueue_ReadySkipsScheduledRetries(t *testing.T) {
	now := time.Now()
	q := NewQueue()
	a := newTestOperation("a", TypeRemoteRequest, PriorityNormal, now)
	b := newTestOperation("b", TypeRemoteRequest, PriorityNormal, now)
	require.NoError(t, q.AddBatch([]*Operation{a, b}))

	require.NoError(t, a.Begin(now))
	require.NoError(t, a.Reschedule(errors.New("503"), now.Add(time.Minute)))

	assert.Equal(t, []string{"b"}, ids(q.Ready(now)))
	assert.Equal(t, []string{"a", "b"}, ids(q.Ready(now.Add(2*time.Minute))))

	next, ok := q.NextRetry()
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Minute), next)
}

func TestQueue_PruneFailed(t *testing.T) {
	now := time.Now()
	q := NewQueue()
	old := newTestOperation("old", TypeDelete, PriorityNormal, now.Add(-8*24*time.Hour))
	recent := newTestOperation("recent", TypeDelete, PriorityNormal, now.Add(-time.Hour))
	require.NoError(t, q.AddBatch([]*Operation{old, recent}))
	for _, op := range []*Operation{old, recent} {
		require.NoError(t, op.Begin(now))
		require.NoError(t, op.Fail(errors.New("gone")))
		require.NoError(t, q.MarkFailed(op.ID))
	}

	pruned := q.PruneFailed(now.Add(-7 * 24 * time.Hour))
	assert.Equal(t, []string{"old"}, ids(pruned))
	assert.Equal(t, []string{"recent"}, ids(q.Failed()))
	_, ok := q.Get("old")
	assert.False(t, ok)
}

func TestQueue_Stats(t *testing.T) {
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	q := NewQueue()
	a := newTestOperation("a", TypeDataUpload, PriorityNormal, base.Add(time.Minute))
	b := newTestOperation("b", TypeDataUpload, PriorityHigh, base)
	c := newTestOperation("c", TypeDelete, PriorityLow, base.Add(-time.Hour))
	require.NoError(t, q.AddBatch([]*Operation{a, b, c}))
	require.NoError(t, c.Begin(base))
	require.NoError(t, c.Fail(NewStatusError(410, "gone")))
	require.NoError(t, q.MarkFailed(c.ID))

	stats := q.Stats()
	assert.Equal(t, 2, stats.Pending)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 3, stats.Total())
	assert.Equal(t, 2, stats.ByType[TypeDataUpload])
	assert.Equal(t, 1, stats.ByType[TypeDelete])
	require.NotNil(t, stats.OldestPending)
	assert.Equal(t, base, *stats.OldestPending)
	require.NotNil(t, stats.OldestFailed)
	assert.Equal(t, "c", stats.OldestFailed.ID)
	assert.Contains(t, stats.OldestFailed.LastError, "410")
	assert.Equal(t, a.EstimatedSize+b.EstimatedSize+c.EstimatedSize, stats.EstimatedSize)
}

func TestRestore(t *testing.T) {
	now := time.Now()
	pending := newTestOperation("pending", TypeDataUpload, PriorityLow, now)
	inflight := newTestOperation("inflight", TypeDataUpload, PriorityCritical, now)
	inflight.Status = StatusProcessing
	inflight.Attempts = 2
	failed := newTestOperation("failed", TypeDataUpload, PriorityNormal, now)
	failed.Status = StatusFailed

	q := Restore([]*Operation{pending, inflight, failed})

	assert.Equal(t, []string{"inflight", "pending"}, ids(q.Pending()))
	assert.Equal(t, StatusPending, inflight.Status)
	assert.Equal(t, 2, inflight.Attempts)
	assert.Equal(t, []string{"failed"}, ids(q.Failed()))
}

func TestOperation_Transitions(t *testing.T) {
	now := time.Now()
	op := NewOperation(TypeBatchSubmission, MustPayload([]int{1, 2}), PriorityNormal)

	assert.ErrorIs(t, op.Complete(), ErrInvalidTransition)
	assert.ErrorIs(t, op.Reset(), ErrInvalidTransition)

	require.NoError(t, op.Begin(now))
	assert.Equal(t, 1, op.Attempts)
	assert.ErrorIs(t, op.Begin(now), ErrInvalidTransition)

	require.NoError(t, op.Complete())
	assert.True(t, op.Status.Terminal())
	assert.ErrorIs(t, op.Fail(errors.New("late")), ErrInvalidTransition)
}

func TestPayload_DecodeIsStrict(t *testing.T) {
	type sample struct {
		Steps int `json:"steps"`
	}

	var s sample
	require.NoError(t, MustPayload(map[string]int{"steps": 1200}).Decode(&s))
	assert.Equal(t, 1200, s.Steps)

	err := MustPayload(map[string]any{"steps": 10, "calories": 3}).Decode(&s)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = MustPayload(map[string]string{"steps": "many"}).Decode(&s)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	err = Payload{Version: 99, Data: []byte(`{"steps":1}`)}.Decode(&s)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestSerializer_RoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 2, 9, 30, 0, 0, time.UTC)
	op := newTestOperation("rt", TypeProfileUpdate, PriorityHigh, now)
	require.NoError(t, op.Begin(now))
	require.NoError(t, op.Reschedule(NewStatusError(500, "boom"), now.Add(4*time.Second)))

	data, err := Marshal(op)
	require.NoError(t, err)
	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, op.ID, decoded.ID)
	assert.Equal(t, op.Type, decoded.Type)
	assert.JSONEq(t, string(op.Payload.Data), string(decoded.Payload.Data))
	assert.Equal(t, op.Attempts, decoded.Attempts)
	assert.True(t, op.NextRetryAt.Equal(*decoded.NextRetryAt))

	_, err = Unmarshal([]byte(`{"id":"x","type":"teleport"}`))
	assert.ErrorIs(t, err, ErrPersistence)
}
