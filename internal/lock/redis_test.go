package lock

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient подключается к Redis из TEST_REDIS_ADDR, иначе тест пропускается
func newTestClient(t *testing.T) *redis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testKeys() []string {
	prefix := "test:" + uuid.NewString()
	return []string{prefix + ":a", prefix + ":b"}
}

func TestRedisLocker_ExclusiveAndReleased(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	keys := testKeys()
	locker := NewRedisLocker(client, 50*time.Millisecond)

	unlock, err := locker.Lock(ctx, keys, time.Second)
	require.NoError(t, err)

	// Второй захват того же набора ключей не проходит
	_, err = locker.Lock(ctx, keys[1:], time.Second)
	require.ErrorIs(t, err, ErrNotAcquired)

	require.NoError(t, unlock(ctx))
	n, err := client.Exists(ctx, keys...).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisLocker_PartialOverlapLeavesNothingBehind(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	keys := testKeys()
	locker := NewRedisLocker(client, 0)

	unlock, err := locker.Lock(ctx, keys[1:], time.Second)
	require.NoError(t, err)
	defer func() { _ = unlock(ctx) }()

	_, err = locker.Lock(ctx, keys, time.Second)
	require.ErrorIs(t, err, ErrNotAcquired)

	// Первый ключ не должен остаться захваченным после неудачной попытки
	n, err := client.Exists(ctx, keys[0]).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisLocker_SerializesCriticalSection(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	keys := testKeys()
	locker := NewRedisLocker(client, 5*time.Second)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, keys, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			cur := atomic.AddInt32(&inside, 1)
			for {
				prev := atomic.LoadInt32(&maxInside)
				if cur <= prev || atomic.CompareAndSwapInt32(&maxInside, prev, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			assert.NoError(t, unlock(ctx))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}
