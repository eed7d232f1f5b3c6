package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/rs/zerolog/log"
)

const columns = "id, type, payload, payload_version, priority, status, attempts, last_error, created_at, last_attempt_at, next_retry_at, estimated_size"

// Store implements queue.Store on a SQL table
type Store struct {
	db     *sql.DB
	table  string
	ownsDB bool

	mu     sync.RWMutex
	driver string // sqlite, mysql or postgres
}

// NewStore creates a store on an existing connection. The caller keeps ownership of db.
func NewStore(db *sql.DB, driver string, table string) *Store {
	if table == "" {
		table = "offline_operations"
	}
	return &Store{
		db:     db,
		table:  table,
		driver: normalizeDriver(driver),
	}
}

// OwnDB makes Close also close the underlying connection
func (s *Store) OwnDB() *Store {
	s.ownsDB = true
	return s
}

func normalizeDriver(driver string) string {
	switch driver {
	case "postgres", "postgresql", "pgsql", "pq":
		return "postgres"
	case "sqlite", "sqlite3":
		return "sqlite"
	}
	return driver
}

// Migrate creates the operations table if it does not exist
func (s *Store) Migrate(ctx context.Context) error {
	blob, text, key := "BLOB", "TEXT", "TEXT"
	switch s.currentDriver() {
	case "mysql":
		blob, key = "LONGBLOB", "VARCHAR(64)"
	case "postgres":
		blob = "BYTEA"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id %s PRIMARY KEY,
			type VARCHAR(32) NOT NULL,
			payload %s,
			payload_version INTEGER NOT NULL,
			priority INTEGER NOT NULL,
			status VARCHAR(16) NOT NULL,
			attempts INTEGER NOT NULL,
			last_error %s,
			created_at BIGINT NOT NULL,
			last_attempt_at BIGINT,
			next_retry_at BIGINT,
			estimated_size BIGINT NOT NULL
		)`, s.table, key, blob, text)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: create table %s: %v", queue.ErrPersistence, s.table, err)
	}
	return nil
}

// Persist inserts a new operation row
func (s *Store) Persist(ctx context.Context, op *queue.Operation) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.table, columns)
	_, err := s.exec(ctx, query,
		op.ID, string(op.Type), []byte(op.Payload.Data), op.Payload.Version, int(op.Priority),
		string(op.Status), op.Attempts, nullString(op.LastError), op.Timestamp.UnixNano(),
		nullTime(op.LastAttemptAt), nullTime(op.NextRetryAt), op.EstimatedSize)
	if err != nil {
		return fmt.Errorf("%w: persist %s: %v", queue.ErrPersistence, op.ID, err)
	}
	return nil
}

// Update overwrites an operation row. A row lost by an earlier failed
// Persist is inserted again, so the table converges on the in-memory state.
func (s *Store) Update(ctx context.Context, op *queue.Operation) error {
	query := fmt.Sprintf(`UPDATE %s SET type = ?, payload = ?, payload_version = ?, priority = ?, status = ?, attempts = ?, last_error = ?, last_attempt_at = ?, next_retry_at = ?, estimated_size = ? WHERE id = ?`, s.table)
	res, err := s.exec(ctx, query,
		string(op.Type), []byte(op.Payload.Data), op.Payload.Version, int(op.Priority),
		string(op.Status), op.Attempts, nullString(op.LastError),
		nullTime(op.LastAttemptAt), nullTime(op.NextRetryAt), op.EstimatedSize, op.ID)
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", queue.ErrPersistence, op.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for an UPDATE that matched a row but changed nothing
		exists, err := s.exists(ctx, op.ID)
		if err != nil {
			return fmt.Errorf("%w: update %s: %v", queue.ErrPersistence, op.ID, err)
		}
		if !exists {
			log.Debug().Str("operation_id", op.ID).Msg("Update found no row, inserting")
			return s.Persist(ctx, op)
		}
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	query := s.rebind(fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", s.table))
	var one int
	err := s.db.QueryRowContext(ctx, query, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		s.detectDialect(err)
		return false, err
	}
	return true, nil
}

// Remove deletes an operation row
func (s *Store) Remove(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table)
	if _, err := s.exec(ctx, query, id); err != nil {
		return fmt.Errorf("%w: remove %s: %v", queue.ErrPersistence, id, err)
	}
	return nil
}

// LoadAll returns all non-completed operations ordered by priority then creation time
func (s *Store) LoadAll(ctx context.Context) ([]*queue.Operation, error) {
	query := s.rebind(fmt.Sprintf("SELECT %s FROM %s WHERE status <> ? ORDER BY priority DESC, created_at ASC", columns, s.table))
	rows, err := s.db.QueryContext(ctx, query, string(queue.StatusCompleted))
	if err != nil {
		s.detectDialect(err)
		return nil, fmt.Errorf("%w: load: %v", queue.ErrPersistence, err)
	}
	defer rows.Close()

	var ops []*queue.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: load: %v", queue.ErrPersistence, err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load: %v", queue.ErrPersistence, err)
	}
	queue.SortOperations(ops)
	return ops, nil
}

// Clear deletes every operation row
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.exec(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return fmt.Errorf("%w: clear: %v", queue.ErrPersistence, err)
	}
	return nil
}

// Close closes the connection if the store owns it
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		s.detectDialect(err)
	}
	return res, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOperation(row scanner) (*queue.Operation, error) {
	var (
		op          queue.Operation
		typ, status string
		payload     []byte
		priority    int
		lastError   sql.NullString
		createdAt   int64
		lastAttempt sql.NullInt64
		nextRetry   sql.NullInt64
	)
	err := row.Scan(&op.ID, &typ, &payload, &op.Payload.Version, &priority, &status,
		&op.Attempts, &lastError, &createdAt, &lastAttempt, &nextRetry, &op.EstimatedSize)
	if err != nil {
		return nil, err
	}
	op.Type = queue.Type(typ)
	if !op.Type.Valid() {
		return nil, fmt.Errorf("operation %s has unknown type %q", op.ID, typ)
	}
	op.Payload.Data = payload
	op.Priority = queue.Priority(priority)
	op.Status = queue.Status(status)
	op.LastError = lastError.String
	op.Timestamp = time.Unix(0, createdAt).UTC()
	op.LastAttemptAt = fromNullTime(lastAttempt)
	op.NextRetryAt = fromNullTime(nextRetry)
	return &op, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for postgres
func (s *Store) rebind(query string) string {
	if s.currentDriver() != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// detectDialect switches to postgres placeholders when a query fails with
// a lib/pq syntax error, which happens when the driver was misconfigured.
func (s *Store) detectDialect(err error) {
	if err == nil || !strings.HasPrefix(err.Error(), "pq: syntax error") {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver != "postgres" {
		log.Warn().Str("previous", s.driver).Msg("Detected postgres dialect, switching placeholders")
		s.driver = "postgres"
	}
}

func (s *Store) currentDriver() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.driver
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

var _ queue.Store = (*Store)(nil)

// DB returns the underlying connection
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the SQL dialect in use
func (s *Store) Driver() string {
	return s.currentDriver()
}
