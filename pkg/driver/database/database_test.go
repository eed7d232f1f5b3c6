package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T, driver string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, driver, "offline_operations"), mock
}

func sampleOperation() *queue.Operation {
	op := queue.NewOperation(queue.TypeDataUpload, queue.MustPayload(map[string]int{"steps": 4200}), queue.PriorityHigh)
	op.ID = "op-1"
	return op
}

func TestStore_Persist(t *testing.T) {
	store, mock := newMockStore(t, "mysql")
	op := sampleOperation()

	mock.ExpectExec("INSERT INTO offline_operations").
		WithArgs(op.ID, "data_upload", []byte(op.Payload.Data), queue.PayloadVersion, int(queue.PriorityHigh),
			"pending", 0, sqlmock.AnyArg(), op.Timestamp.UnixNano(), sqlmock.AnyArg(), sqlmock.AnyArg(), op.EstimatedSize).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Persist(context.Background(), op))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PersistWrapsError(t *testing.T) {
	store, mock := newMockStore(t, "mysql")

	mock.ExpectExec("INSERT INTO offline_operations").WillReturnError(errors.New("disk full"))

	err := store.Persist(context.Background(), sampleOperation())
	assert.ErrorIs(t, err, queue.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateInsertsMissingRow(t *testing.T) {
	store, mock := newMockStore(t, "mysql")
	op := sampleOperation()
	require.NoError(t, op.Begin(time.Now()))

	mock.ExpectExec("UPDATE offline_operations SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM offline_operations WHERE id = ?")).
		WithArgs(op.ID).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectExec("INSERT INTO offline_operations").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Update(context.Background(), op))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateUnchangedRowDoesNotInsert(t *testing.T) {
	store, mock := newMockStore(t, "mysql")
	op := sampleOperation()

	// MySQL counts changed rows, so rewriting identical values affects none
	mock.ExpectExec("UPDATE offline_operations SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM offline_operations WHERE id = ?")).
		WithArgs(op.ID).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	require.NoError(t, store.Update(context.Background(), op))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Update(t *testing.T) {
	store, mock := newMockStore(t, "mysql")
	op := sampleOperation()
	require.NoError(t, op.Begin(time.Now()))

	mock.ExpectExec("UPDATE offline_operations SET").
		WithArgs("data_upload", []byte(op.Payload.Data), queue.PayloadVersion, int(queue.PriorityHigh),
			"processing", 1, sqlmock.AnyArg(), op.LastAttemptAt.UnixNano(), sqlmock.AnyArg(), op.EstimatedSize, op.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Update(context.Background(), op))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_RemoveAndClear(t *testing.T) {
	store, mock := newMockStore(t, "sqlite")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM offline_operations WHERE id = ?")).
		WithArgs("op-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM offline_operations")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, store.Remove(context.Background(), "op-1"))
	require.NoError(t, store.Clear(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadAll(t *testing.T) {
	store, mock := newMockStore(t, "mysql")
	base := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	retry := base.Add(time.Minute)

	rows := sqlmock.NewRows([]string{"id", "type", "payload", "payload_version", "priority", "status", "attempts",
		"last_error", "created_at", "last_attempt_at", "next_retry_at", "estimated_size"}).
		AddRow("a", "profile_update", []byte(`{"name":"x"}`), 1, 3, "pending", 2, "HTTP 503", base.UnixNano(), base.UnixNano(), retry.UnixNano(), 12).
		AddRow("b", "delete", []byte(`{}`), 1, 1, "failed", 1, "HTTP 404", base.Add(time.Second).UnixNano(), nil, nil, 2)

	mock.ExpectQuery("SELECT (.+) FROM offline_operations WHERE status <> \\? ORDER BY priority DESC, created_at ASC").
		WithArgs("completed").
		WillReturnRows(rows)

	ops, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 2)

	assert.Equal(t, "a", ops[0].ID)
	assert.Equal(t, queue.TypeProfileUpdate, ops[0].Type)
	assert.Equal(t, queue.PriorityCritical, ops[0].Priority)
	assert.Equal(t, 2, ops[0].Attempts)
	assert.Equal(t, "HTTP 503", ops[0].LastError)
	require.NotNil(t, ops[0].NextRetryAt)
	assert.True(t, retry.Equal(*ops[0].NextRetryAt))

	assert.Equal(t, queue.StatusFailed, ops[1].Status)
	assert.Nil(t, ops[1].LastAttemptAt)
	assert.Equal(t, "HTTP 404", ops[1].LastError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadAllRejectsUnknownType(t *testing.T) {
	store, mock := newMockStore(t, "mysql")

	rows := sqlmock.NewRows([]string{"id", "type", "payload", "payload_version", "priority", "status", "attempts",
		"last_error", "created_at", "last_attempt_at", "next_retry_at", "estimated_size"}).
		AddRow("a", "teleport", []byte(`{}`), 1, 1, "pending", 0, nil, time.Now().UnixNano(), nil, nil, 2)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	_, err := store.LoadAll(context.Background())
	assert.ErrorIs(t, err, queue.ErrPersistence)
}

func TestFailedLogger_Log(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	logger := NewFailedLogger(db, "mysql", "")
	fixed := time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC)
	logger.now = func() time.Time { return fixed }

	op := sampleOperation()
	op.Attempts = 5

	mock.ExpectExec("INSERT INTO failed_operations").
		WithArgs(op.ID, "data_upload", []byte(op.Payload.Data), 5, "HTTP 404: not found", fixed.UnixNano()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, logger.Log(context.Background(), op, "HTTP 404: not found"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
