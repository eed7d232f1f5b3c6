package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "syncqueue_lock:"

// releaseScript deletes the lock only while it still carries our token, so a
// lock that expired and was taken by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLockProvider implements LockProvider with SET NX PX and an owner token
type RedisLockProvider struct {
	client redis.UniversalClient
	token  string
}

// NewRedisLockProvider creates a provider whose locks are tagged with a fresh token
func NewRedisLockProvider(client redis.UniversalClient) *RedisLockProvider {
	return &RedisLockProvider{client: client, token: uuid.NewString()}
}

func (r *RedisLockProvider) GetLock(ctx context.Context, name string, duration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, redisLockPrefix+name, r.token, duration).Result()
}

func (r *RedisLockProvider) ReleaseLock(ctx context.Context, name string) error {
	return releaseScript.Run(ctx, r.client, []string{redisLockPrefix + name}, r.token).Err()
}
