package ratelimit

import (
	"context"
	"errors"

	"github.com/patrickmn/go-cache"
)

// Memory 是进程内限流器，重启后计数丢失，且不在多实例间共享。
type Memory struct {
	policy Policy
	counts *cache.Cache
}

// NewMemory 构造进程内限流器。
func NewMemory(policy Policy) *Memory {
	return &Memory{
		policy: policy,
		counts: cache.New(policy.Window, 2*policy.Window),
	}
}

// Allow 实现 Limiter。
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	count, err := m.incr(key)
	if err != nil {
		return false, err
	}
	return count <= int64(m.policy.Max), nil
}

// incr 原子地执行“不存在则以 1 创建并设置过期，否则自增”，过期时间不随自增刷新。
func (m *Memory) incr(key string) (int64, error) {
	for attempt := 0; attempt < 3; attempt++ {
		if err := m.counts.Add(key, int64(1), m.policy.Window); err == nil {
			return 1, nil
		}
		count, err := m.counts.IncrementInt64(key, 1)
		if err == nil {
			return count, nil
		}
		// 两步之间条目恰好过期，重试。
	}
	return 0, errors.New("rate limit counter contention")
}
