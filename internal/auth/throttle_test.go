package auth

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryThrottleLocksAfterMaxAttempts(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	throttle := NewMemoryThrottle(DefaultThrottlePolicy)
	throttle.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 1; i < DefaultThrottlePolicy.MaxAttempts; i++ {
		remaining, err := throttle.RecordFailure(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, DefaultThrottlePolicy.MaxAttempts-i, remaining)

		wait, err := throttle.Check(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Zero(t, wait)
	}

	remaining, err := throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, remaining)

	wait, err := throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultThrottlePolicy.LockDuration, wait)

	// 別クライアントには影響しない
	wait, err = throttle.Check(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.Zero(t, wait)

	now = now.Add(DefaultThrottlePolicy.LockDuration)
	wait, err = throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, wait)

	remaining, err = throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultThrottlePolicy.MaxAttempts-1, remaining)
}

func TestMemoryThrottleWindowExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	throttle := NewMemoryThrottle(DefaultThrottlePolicy)
	throttle.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < DefaultThrottlePolicy.MaxAttempts-1; i++ {
		_, err := throttle.RecordFailure(ctx, "10.0.0.1")
		require.NoError(t, err)
	}

	now = now.Add(DefaultThrottlePolicy.Window + time.Second)
	remaining, err := throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultThrottlePolicy.MaxAttempts-1, remaining)
}

func TestMemoryThrottleReset(t *testing.T) {
	throttle := NewMemoryThrottle(ThrottlePolicy{MaxAttempts: 1, Window: time.Minute, LockDuration: time.Minute})
	ctx := context.Background()

	_, err := throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	wait, err := throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Positive(t, wait)

	require.NoError(t, throttle.Reset(ctx, "10.0.0.1"))
	wait, err = throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestMemoryThrottlePrunesStaleEntries(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	policy := ThrottlePolicy{MaxAttempts: 2, Window: time.Minute, LockDuration: 10 * time.Minute}
	throttle := NewMemoryThrottle(policy)
	throttle.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := throttle.RecordFailure(ctx, fmt.Sprintf("10.0.0.%d", i))
		require.NoError(t, err)
	}
	for i := 0; i < policy.MaxAttempts; i++ {
		_, err := throttle.RecordFailure(ctx, "10.0.1.1")
		require.NoError(t, err)
	}
	assert.Len(t, throttle.attempts, 11)

	now = now.Add(policy.Window + time.Second)
	_, err := throttle.RecordFailure(ctx, "10.0.2.1")
	require.NoError(t, err)
	assert.Len(t, throttle.attempts, 2)

	// ロック中のクライアントは残る
	wait, err := throttle.Check(ctx, "10.0.1.1")
	require.NoError(t, err)
	assert.Positive(t, wait)
}

func newTestRedisThrottle(t *testing.T, policy ThrottlePolicy) (*RedisThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisThrottle(rdb, policy), mr
}

func TestRedisThrottleLocksAfterMaxAttempts(t *testing.T) {
	throttle, mr := newTestRedisThrottle(t, DefaultThrottlePolicy)
	ctx := context.Background()

	for i := 1; i < DefaultThrottlePolicy.MaxAttempts; i++ {
		remaining, err := throttle.RecordFailure(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, DefaultThrottlePolicy.MaxAttempts-i, remaining)

		wait, err := throttle.Check(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Zero(t, wait)
	}
	assert.Equal(t, DefaultThrottlePolicy.Window, mr.TTL(attemptKeyPrefix+"10.0.0.1"))

	remaining, err := throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, remaining)
	assert.False(t, mr.Exists(attemptKeyPrefix+"10.0.0.1"))
	assert.Equal(t, DefaultThrottlePolicy.LockDuration, mr.TTL(lockKeyPrefix+"10.0.0.1"))

	wait, err := throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultThrottlePolicy.LockDuration, wait)

	// 別クライアントには影響しない
	wait, err = throttle.Check(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.Zero(t, wait)

	mr.FastForward(DefaultThrottlePolicy.LockDuration)
	wait, err = throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, wait)

	remaining, err = throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultThrottlePolicy.MaxAttempts-1, remaining)
}

func TestRedisThrottleWindowExpires(t *testing.T) {
	throttle, mr := newTestRedisThrottle(t, DefaultThrottlePolicy)
	ctx := context.Background()

	for i := 0; i < DefaultThrottlePolicy.MaxAttempts-1; i++ {
		_, err := throttle.RecordFailure(ctx, "10.0.0.1")
		require.NoError(t, err)
	}
	// 以降の失敗でウィンドウは延びない
	mr.FastForward(time.Minute)
	assert.Equal(t, DefaultThrottlePolicy.Window-time.Minute, mr.TTL(attemptKeyPrefix+"10.0.0.1"))

	mr.FastForward(DefaultThrottlePolicy.Window)
	remaining, err := throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, DefaultThrottlePolicy.MaxAttempts-1, remaining)
}

func TestRedisThrottleReset(t *testing.T) {
	throttle, mr := newTestRedisThrottle(t, ThrottlePolicy{MaxAttempts: 1, Window: time.Minute, LockDuration: time.Minute})
	ctx := context.Background()

	_, err := throttle.RecordFailure(ctx, "10.0.0.1")
	require.NoError(t, err)
	wait, err := throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Positive(t, wait)

	require.NoError(t, throttle.Reset(ctx, "10.0.0.1"))
	assert.False(t, mr.Exists(lockKeyPrefix+"10.0.0.1"))
	assert.False(t, mr.Exists(attemptKeyPrefix+"10.0.0.1"))

	wait, err = throttle.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Zero(t, wait)
}

func TestRedisThrottleConnectionError(t *testing.T) {
	throttle, mr := newTestRedisThrottle(t, DefaultThrottlePolicy)
	mr.Close()

	_, err := throttle.Check(context.Background(), "10.0.0.1")
	assert.Error(t, err)
	_, err = throttle.RecordFailure(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}
