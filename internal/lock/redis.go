package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired возвращается, если ключи не освободились за время ожидания
var ErrNotAcquired = errors.New("lock not acquired")

const retryInterval = 25 * time.Millisecond

// acquireScript ставит все ключи или ни одного
var acquireScript = redis.NewScript(`
	for i, key in ipairs(KEYS) do
		if not redis.call('SET', key, ARGV[1], 'NX', 'PX', ARGV[2]) then
			for j = 1, i - 1 do
				if redis.call('GET', KEYS[j]) == ARGV[1] then
					redis.call('DEL', KEYS[j])
				end
			end
			return 0
		end
	end
	return 1
`)

// releaseScript удаляет только ключи, которые все еще принадлежат владельцу
var releaseScript = redis.NewScript(`
	local n = 0
	for _, key in ipairs(KEYS) do
		if redis.call('GET', key) == ARGV[1] then
			n = n + redis.call('DEL', key)
		end
	end
	return n
`)

// RedisLocker - блокировка набора ключей на SET NX PX. Ключ живет не дольше ttl,
// поэтому упавший владелец не блокирует остальных навсегда.
type RedisLocker struct {
	client  *redis.Client
	maxWait time.Duration
}

func NewRedisLocker(client *redis.Client, maxWait time.Duration) *RedisLocker {
	return &RedisLocker{client: client, maxWait: maxWait}
}

// Lock ждет, пока все ключи станут свободны, не дольше maxWait
func (l *RedisLocker) Lock(ctx context.Context, keys []string, ttl time.Duration) (func(ctx context.Context) error, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := acquireScript.Run(ctx, l.client, keys, token, ttl.Milliseconds()).Int()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock: %w", err)
		}
		if ok == 1 {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %v", ErrNotAcquired, keys)
		}

		t := time.NewTimer(retryInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, keys, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock: %w", err)
		}
		return nil
	}, nil
}
