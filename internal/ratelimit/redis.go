package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Redis 使用 INCR+EXPIRE 在多个实例之间共享计数。
type Redis struct {
	client redisRateCounter
	policy Policy
	prefix string
}

// NewRedis 构造共享限流器，prefix 用于区分业务（如 "rate:contact:"）。
func NewRedis(client redisRateCounter, policy Policy, prefix string) *Redis {
	return &Redis{client: client, policy: policy, prefix: prefix}
}

// Allow 实现 Limiter。
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	count, err := IncrWithTTL(ctx, r.client, r.prefix+key, r.policy.Window)
	if err != nil {
		return false, err
	}
	return count <= int64(r.policy.Max), nil
}

// IncrWithTTL 自增计数，首次创建时设置过期时间。
// 后续命中若发现 key 没有过期时间（首次 EXPIRE 失败），会补设一次。
func IncrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count > 1 {
		remaining, err := client.TTL(ctx, key).Result()
		if err != nil {
			return count, fmt.Errorf("ttl %s: %w", key, err)
		}
		if remaining >= 0 {
			return count, nil
		}
	}
	if err := client.Expire(ctx, key, ttl).Err(); err != nil {
		return count, fmt.Errorf("expire %s: %w", key, err)
	}
	return count, nil
}
