package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ThrottlePolicy はログイン試行制限の閾値です。
type ThrottlePolicy struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

// DefaultThrottlePolicy は 15 分間に 5 回失敗すると 10 分間ロックします。
var DefaultThrottlePolicy = ThrottlePolicy{
	MaxAttempts:  5,
	Window:       15 * time.Minute,
	LockDuration: 10 * time.Minute,
}

// Throttle はクライアント単位のログイン失敗回数を管理します。
type Throttle interface {
	// Check はロック中であれば残り時間を返します。
	Check(ctx context.Context, key string) (time.Duration, error)
	// RecordFailure は失敗を記録し、ロックまでの残り試行回数を返します。
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset は失敗記録を消去します。
	Reset(ctx context.Context, key string) error
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// MemoryThrottle はプロセス内のマップで試行回数を保持します。
type MemoryThrottle struct {
	policy     ThrottlePolicy
	now        func() time.Time
	lock       sync.Mutex
	attempts   map[string]*attemptState
	lastPruned time.Time
}

// NewMemoryThrottle は MemoryThrottle を作成します。
func NewMemoryThrottle(policy ThrottlePolicy) *MemoryThrottle {
	return &MemoryThrottle{
		policy:   policy,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

func (t *MemoryThrottle) Check(ctx context.Context, key string) (time.Duration, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	state, ok := t.attempts[key]
	if !ok {
		return 0, nil
	}
	now := t.now()
	if !now.Before(state.lockedUntil) {
		return 0, nil
	}
	return state.lockedUntil.Sub(now), nil
}

func (t *MemoryThrottle) RecordFailure(ctx context.Context, key string) (int, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	now := t.now()
	t.pruneLocked(now)

	state, ok := t.attempts[key]
	if !ok || now.Sub(state.firstAttempt) > t.policy.Window {
		state = &attemptState{firstAttempt: now}
		t.attempts[key] = state
	}

	state.count++
	if state.count >= t.policy.MaxAttempts {
		state.lockedUntil = now.Add(t.policy.LockDuration)
		// ロック解除後は新しいウィンドウで数え直す
		state.count = 0
		state.firstAttempt = state.lockedUntil
		return 0, nil
	}

	return t.policy.MaxAttempts - state.count, nil
}

// pruneLocked はウィンドウもロックも切れたエントリを削除します。
// 走査はウィンドウ1つ分の間隔をあけて行います。
func (t *MemoryThrottle) pruneLocked(now time.Time) {
	if now.Sub(t.lastPruned) < t.policy.Window {
		return
	}
	t.lastPruned = now

	for key, state := range t.attempts {
		if now.Before(state.lockedUntil) {
			continue
		}
		if state.count == 0 || now.Sub(state.firstAttempt) > t.policy.Window {
			delete(t.attempts, key)
		}
	}
}

func (t *MemoryThrottle) Reset(ctx context.Context, key string) error {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.attempts, key)
	return nil
}

const (
	attemptKeyPrefix = "login:attempts:"
	lockKeyPrefix    = "login:lock:"
)

// RedisThrottle は Redis に試行回数を保持します。複数プロセスで共有できます。
type RedisThrottle struct {
	rdb    *redis.Client
	policy ThrottlePolicy
}

// NewRedisThrottle は RedisThrottle を作成します。
func NewRedisThrottle(rdb *redis.Client, policy ThrottlePolicy) *RedisThrottle {
	return &RedisThrottle{
		rdb:    rdb,
		policy: policy,
	}
}

func (t *RedisThrottle) Check(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := t.rdb.PTTL(ctx, lockKeyPrefix+key).Result()
	if err != nil {
		return 0, fmt.Errorf("read login lock: %w", err)
	}
	if ttl <= 0 {
		return 0, nil
	}
	return ttl, nil
}

func (t *RedisThrottle) RecordFailure(ctx context.Context, key string) (int, error) {
	attemptKey := attemptKeyPrefix + key

	var incr *redis.IntCmd
	_, err := t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// ウィンドウの TTL は最初の失敗時にだけ付き、INCR では変わらない
		pipe.SetNX(ctx, attemptKey, 0, t.policy.Window)
		incr = pipe.Incr(ctx, attemptKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}

	count := int(incr.Val())
	if count < t.policy.MaxAttempts {
		return t.policy.MaxAttempts - count, nil
	}

	_, err = t.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lockKeyPrefix+key, "1", t.policy.LockDuration)
		pipe.Del(ctx, attemptKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("lock login: %w", err)
	}
	return 0, nil
}

func (t *RedisThrottle) Reset(ctx context.Context, key string) error {
	if err := t.rdb.Del(ctx, attemptKeyPrefix+key, lockKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("reset login attempts: %w", err)
	}
	return nil
}
