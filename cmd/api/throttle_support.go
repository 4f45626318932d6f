package main

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/config"
)

// setupThrottle は設定に応じてログイン試行制限の保存先を選びます。
// 返す関数で Redis クライアントを閉じます。
func setupThrottle(ctx context.Context, cfg *config.Config, logs *zap.SugaredLogger) (auth.Throttle, func(), error) {
	if cfg.LoginThrottleRedisURL == "" {
		logs.Infow("login throttle uses process memory")
		return auth.NewMemoryThrottle(auth.DefaultThrottlePolicy), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.LoginThrottleRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse LOGIN_THROTTLE_REDIS_URL: %w", err)
	}

	redisClient := redis.NewClient(opt)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	logs.Infow("login throttle uses redis", "addr", opt.Addr)
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			logs.Errorw("failed to close redis client", "error", err)
		}
	}
	return auth.NewRedisThrottle(redisClient, auth.DefaultThrottlePolicy), closeFn, nil
}
