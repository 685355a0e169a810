package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDistributedLock_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)

	first := NewDistributedLock(client, "k", "req-1", time.Minute)
	second := NewDistributedLock(client, "k", "req-2", time.Minute)

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// 只能释放自己的锁
	require.NoError(t, second.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_LockGivesUp(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)

	holder := NewDistributedLock(client, "k", "holder", time.Minute)
	require.NoError(t, holder.Lock(ctx, time.Millisecond, 1))

	waiter := NewDistributedLock(client, "k", "waiter", time.Minute)
	assert.ErrorIs(t, waiter.Lock(ctx, time.Millisecond, 3), ErrLockFailed)
}

func TestDistributedLock_ExpiredLockIsReacquired(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)

	holder := NewDistributedLock(client, "k", "holder", time.Second)
	require.NoError(t, holder.Lock(ctx, time.Millisecond, 1))
	mr.FastForward(2 * time.Second)

	other := NewDistributedLock(client, "k", "other", time.Second)
	ok, err := other.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccountLocker_SerializesSameAccount(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	locker := NewAccountLocker(client, 2*time.Second)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			release, err := locker.Acquire(ctx, "ACC-A", string(rune('a'+i)))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestAccountLocker_DifferentAccountsDoNotBlock(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	locker := NewAccountLocker(client, time.Second)

	releaseA, err := locker.Acquire(ctx, "ACC-A", "x")
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(ctx, "ACC-B", "y")
	require.NoError(t, err)
	releaseB()
}
