package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本保证"检查+删除"的原子性
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，只删除自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Err()
}

// ============================================================================
// 账户锁：Intake 校验余额期间按源账户加锁
// ============================================================================

// AccountLocker 按账号串行化 Intake 的余额校验和 PENDING 写入
//
// 同一个源账户的两笔并发取款如果同时读到同一个余额，都会通过校验；
// 加锁后第二笔只能在第一笔落库之后再读余额。锁只缩小窗口，
// 真正兜底的是 Applier 的条件扣款。
type AccountLocker struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewAccountLocker(client *redis.Client, ttl time.Duration) *AccountLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &AccountLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: 20 * time.Millisecond,
		maxRetries:    int(ttl / (20 * time.Millisecond)),
	}
}

func accountLockKey(accountNumber string) string {
	return fmt.Sprintf("bank:lock:account:%s", accountNumber)
}

// Acquire 获取账户锁，返回的 release 必须调用
func (a *AccountLocker) Acquire(ctx context.Context, accountNumber, owner string) (func(), error) {
	l := NewDistributedLock(a.client, accountLockKey(accountNumber), owner, a.ttl)
	if err := l.Lock(ctx, a.retryInterval, a.maxRetries); err != nil {
		return nil, err
	}
	return func() {
		// 请求的 ctx 可能已经取消，释放锁不能依赖它
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.Unlock(releaseCtx)
	}, nil
}
