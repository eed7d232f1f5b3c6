package redis

import (
	"context"
	"fmt"

	"github.com/pixelvide/syncqueue/pkg/config"
	"github.com/pixelvide/syncqueue/pkg/queue"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Store keeps each operation as a JSON string under <prefix>:op:<id> and
// tracks the stored IDs in the set <prefix>:ops.
type Store struct {
	client  goredis.UniversalClient
	prefix  string
	ownsCli bool
}

// NewClient creates a go-redis client from configuration
func NewClient(cfg config.RedisConfig) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewStore creates a store on an existing client. The caller keeps ownership of client.
func NewStore(client goredis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "syncqueue"
	}
	return &Store{client: client, prefix: prefix}
}

// NewStoreFromConfig creates a store with its own client
func NewStoreFromConfig(cfg config.RedisConfig) *Store {
	s := NewStore(NewClient(cfg), cfg.Prefix)
	s.ownsCli = true
	return s
}

func (s *Store) opKey(id string) string {
	return s.prefix + ":op:" + id
}

func (s *Store) setKey() string {
	return s.prefix + ":ops"
}

func (s *Store) Persist(ctx context.Context, op *queue.Operation) error {
	data, err := queue.Marshal(op)
	if err != nil {
		return err
	}
	// The index entry is written first in the same MULTI/EXEC, so a record
	// never exists without its index entry.
	var created *goredis.BoolCmd
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.SAdd(ctx, s.setKey(), op.ID)
		created = pipe.SetNX(ctx, s.opKey(op.ID), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: persist %s: %v", queue.ErrPersistence, op.ID, err)
	}
	if !created.Val() {
		return fmt.Errorf("%w: persist %s: %v", queue.ErrPersistence, op.ID, queue.ErrDuplicateOperation)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, op *queue.Operation) error {
	data, err := queue.Marshal(op)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.opKey(op.ID), data, 0)
		pipe.SAdd(ctx, s.setKey(), op.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: update %s: %v", queue.ErrPersistence, op.ID, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.opKey(id))
		pipe.SRem(ctx, s.setKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", queue.ErrPersistence, id, err)
	}
	return nil
}

func (s *Store) LoadAll(ctx context.Context) ([]*queue.Operation, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load index: %v", queue.ErrPersistence, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.opKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load: %v", queue.ErrPersistence, err)
	}

	ops := make([]*queue.Operation, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a record, left by an interrupted write
			log.Warn().Str("operation_id", ids[i]).Msg("Dropping dangling operation index entry")
			s.client.SRem(ctx, s.setKey(), ids[i])
			continue
		}
		op, err := queue.Unmarshal([]byte(raw))
		if err != nil {
			return nil, err
		}
		if op.Status == queue.StatusCompleted {
			continue
		}
		ops = append(ops, op)
	}
	queue.SortOperations(ops)
	return ops, nil
}

func (s *Store) Clear(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return fmt.Errorf("%w: clear: %v", queue.ErrPersistence, err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.opKey(id))
	}
	keys = append(keys, s.setKey())
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: clear: %v", queue.ErrPersistence, err)
	}
	return nil
}

// Ping checks that the server is reachable
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: ping redis: %v", queue.ErrPersistence, err)
	}
	return nil
}

// Client returns the underlying client
func (s *Store) Client() goredis.UniversalClient {
	return s.client
}

// Close closes the client if the store created it
func (s *Store) Close() error {
	if s.ownsCli {
		return s.client.Close()
	}
	return nil
}

var _ queue.Store = (*Store)(nil)
