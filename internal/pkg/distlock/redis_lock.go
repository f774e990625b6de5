package distlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mailtrack:lock:"

// ErrNotHeld is returned by Extend when the lock expired or another owner
// took it.
var ErrNotHeld = errors.New("distlock: lock not held")

// RedisLock is a SET NX lock with a TTL. Each instance carries its own owner
// token; release and extend only act while the stored token still matches.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lock on key. The TTL bounds how long a crashed
// holder can block others.
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    redisKeyPrefix + key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return ok, nil
}

// ownedScript runs an owner-checked command: DEL with no extra argument,
// PEXPIRE with a TTL in milliseconds.
var ownedScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) ~= ARGV[1] then
		return 0
	end
	if ARGV[2] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return redis.call("del", KEYS[1])
`)

// Release frees the lock if this instance still owns it. Releasing a lock
// held by someone else is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := ownedScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// Extend resets the TTL of a lock this instance still owns.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := ownedScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
