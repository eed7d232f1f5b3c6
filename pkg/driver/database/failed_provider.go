package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pixelvide/syncqueue/pkg/queue"
)

// FailedLogger implements queue.FailedOperationLogger using a SQL database
type FailedLogger struct {
	store *Store
	now   func() time.Time
}

// NewFailedLogger creates a new failed operation logger writing to tableName
func NewFailedLogger(db *sql.DB, driver string, tableName string) *FailedLogger {
	if tableName == "" {
		tableName = "failed_operations"
	}
	return &FailedLogger{
		store: NewStore(db, driver, tableName),
		now:   time.Now,
	}
}

// Migrate creates the failed operations table if it does not exist
func (p *FailedLogger) Migrate(ctx context.Context) error {
	blob := "BLOB"
	switch p.store.currentDriver() {
	case "mysql":
		blob = "LONGBLOB"
	case "postgres":
		blob = "BYTEA"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			operation_id VARCHAR(64) NOT NULL,
			type VARCHAR(32) NOT NULL,
			payload %s,
			attempts INTEGER NOT NULL,
			exception TEXT,
			failed_at BIGINT NOT NULL
		)`, p.store.table, blob)
	if _, err := p.store.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: create table %s: %v", queue.ErrPersistence, p.store.table, err)
	}
	return nil
}

// Log records a failed operation to the database
func (p *FailedLogger) Log(ctx context.Context, op *queue.Operation, cause string) error {
	query := `
		INSERT INTO ` + p.store.table + ` (operation_id, type, payload, attempts, exception, failed_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := p.store.exec(ctx, query, op.ID, string(op.Type), []byte(op.Payload.Data), op.Attempts, cause, p.now().UnixNano())
	return err
}

var _ queue.FailedOperationLogger = (*FailedLogger)(nil)
