package schedule

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"
)

// DatabaseLockProvider implements LockProvider with session-level SQL locks
// (MySQL GET_LOCK, postgres advisory locks). A session lock belongs to one
// connection, so each held lock pins a connection from the pool until it is
// released.
type DatabaseLockProvider struct {
	db     *sql.DB
	driver string // "mysql", "postgres" or "sqlite"

	mu   sync.Mutex
	held map[string]*sql.Conn
}

// NewDatabaseLockProvider creates a new database lock provider
func NewDatabaseLockProvider(db *sql.DB, driver string) *DatabaseLockProvider {
	return &DatabaseLockProvider{
		db:     db,
		driver: driver,
		held:   make(map[string]*sql.Conn),
	}
}

func (d *DatabaseLockProvider) postgres() bool {
	switch d.driver {
	case "postgres", "pgsql", "pq":
		return true
	}
	return false
}

// GetLock attempts to acquire a lock without waiting.
// SQLite files are opened by a single process, so the lock is always granted.
// duration is not enforced by the server: the lock ends with the session.
func (d *DatabaseLockProvider) GetLock(ctx context.Context, name string, duration time.Duration) (bool, error) {
	if d.driver == "sqlite" || d.driver == "sqlite3" {
		return true, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.held[name]; ok {
		return false, nil
	}

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", name, err)
	}
	var acquired bool
	if d.postgres() {
		acquired, err = d.tryPostgresLock(ctx, conn, name)
	} else {
		acquired, err = d.tryMySQLLock(ctx, conn, name)
	}
	if err != nil || !acquired {
		conn.Close()
		return false, err
	}
	d.held[name] = conn
	return true, nil
}

// ReleaseLock releases a lock taken by GetLock and returns its connection to the pool
func (d *DatabaseLockProvider) ReleaseLock(ctx context.Context, name string) error {
	if d.driver == "sqlite" || d.driver == "sqlite3" {
		return nil
	}

	d.mu.Lock()
	conn, ok := d.held[name]
	delete(d.held, name)
	d.mu.Unlock()
	if !ok {
		return nil
	}

	var err error
	if d.postgres() {
		var released bool
		err = conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", d.hashName(name)).Scan(&released)
	} else {
		var result sql.NullInt64
		err = conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", name).Scan(&result)
	}
	return errors.Join(err, conn.Close())
}

// GET_LOCK(str, 0) returns 1 if acquired, 0 if held elsewhere, NULL on error
func (d *DatabaseLockProvider) tryMySQLLock(ctx context.Context, conn *sql.Conn, name string) (bool, error) {
	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", name).Scan(&result); err != nil {
		return false, err
	}
	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL")
	}
	return result.Int64 == 1, nil
}

func (d *DatabaseLockProvider) tryPostgresLock(ctx context.Context, conn *sql.Conn, name string) (bool, error) {
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", d.hashName(name)).Scan(&acquired); err != nil {
		return false, err
	}
	return acquired, nil
}

// hashName maps a lock name to the bigint key advisory locks take
func (d *DatabaseLockProvider) hashName(name string) int64 {
	return int64(crc32.ChecksumIEEE([]byte(name)))
}
