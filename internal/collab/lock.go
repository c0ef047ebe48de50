package collab

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/knmi/sdsrules/pkg/errs"
)

// RedisLocker is a Locker built on Redis SET NX EX, the same client library
// the teacher module uses for its job queue (queue/redis/queue.go), adapted
// here to a single-key mutual-exclusion primitive guarding deletion-ledger
// writes when multiple pipeline workers run concurrently.
type RedisLocker struct {
	client *redis.Client
	prefix string
	token  string
}

// NewRedisLocker connects to redisURL (a redis://... connection string, as
// accepted by redis.ParseURL).
func NewRedisLocker(ctx context.Context, redisURL, keyPrefix string) (*RedisLocker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", errs.ErrIoError, err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: connect to redis: %v", errs.ErrIoError, err)
	}
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &RedisLocker{client: client, prefix: keyPrefix, token: uuid.NewString()}, nil
}

// TryLock attempts to acquire key for ttl, returning false (not an error)
// when another holder already owns it. The lock value is this process's
// uuid so Unlock can verify ownership before releasing.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+key, l.token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: acquire lock %s: %v", errs.ErrIoError, key, err)
	}
	return ok, nil
}

// unlockScript deletes the key only if it still holds this locker's token,
// avoiding a release race against a holder whose lease has since expired
// and been re-acquired by someone else.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Unlock releases key if this locker still owns it.
func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	err := unlockScript.Run(ctx, l.client, []string{l.prefix + key}, l.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("%w: release lock %s: %v", errs.ErrIoError, key, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
