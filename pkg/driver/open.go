package driver

import (
	"context"
	"fmt"

	"github.com/pixelvide/syncqueue/pkg/config"
	"github.com/pixelvide/syncqueue/pkg/database"
	sqlstore "github.com/pixelvide/syncqueue/pkg/driver/database"
	"github.com/pixelvide/syncqueue/pkg/driver/file"
	"github.com/pixelvide/syncqueue/pkg/driver/memory"
	redisstore "github.com/pixelvide/syncqueue/pkg/driver/redis"
	"github.com/pixelvide/syncqueue/pkg/queue"
	"github.com/pixelvide/syncqueue/pkg/schedule"
	"github.com/rs/zerolog/log"
)

// Open builds the store selected by cfg.Store.Driver. SQL tables are
// created if missing.
func Open(ctx context.Context, cfg config.Config) (queue.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		return file.NewStore(cfg.Store.Path)
	case "sqlite", "sqlite3", "mysql", "pgsql", "postgres", "postgresql":
		dbCfg := cfg.Database
		dbCfg.Connection = cfg.Store.Driver
		db, err := database.NewFactory().Connect(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", queue.ErrPersistence, err)
		}
		driverName, _ := database.DriverName(dbCfg.Connection)
		store := sqlstore.NewStore(db, driverName, dbCfg.Table).OwnDB()
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		log.Debug().Str("driver", driverName).Str("table", dbCfg.Table).Msg("Opened SQL store")
		return store, nil
	case "redis":
		store := redisstore.NewStoreFromConfig(cfg.Redis)
		if err := store.Ping(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unsupported store driver %q", queue.ErrPersistence, cfg.Store.Driver)
}

// FailedLogger returns a failed-operation log sharing the store's
// connection, or nil when the store has no SQL backend.
func FailedLogger(ctx context.Context, store queue.Store, cfg config.Config) (queue.FailedOperationLogger, error) {
	s, ok := store.(*sqlstore.Store)
	if !ok {
		return nil, nil
	}
	logger := sqlstore.NewFailedLogger(s.DB(), s.Driver(), cfg.Database.FailedTable)
	if err := logger.Migrate(ctx); err != nil {
		return nil, err
	}
	return logger, nil
}

// LockProvider returns a cycle lock backed by the same system as store
func LockProvider(store queue.Store) schedule.LockProvider {
	switch s := store.(type) {
	case *sqlstore.Store:
		return schedule.NewDatabaseLockProvider(s.DB(), s.Driver())
	case *redisstore.Store:
		return schedule.NewRedisLockProvider(s.Client())
	}
	return schedule.NewMemoryLockProvider()
}
