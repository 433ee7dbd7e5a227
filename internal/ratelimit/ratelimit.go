// Package ratelimit 提供按 key 计数的固定窗口限流，窗口从第一次记录的请求开始计时。
package ratelimit

import (
	"context"
	"time"
)

// Limiter 判断 key 在当前窗口内是否仍允许请求。
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Policy 描述窗口长度与窗口内允许的最大次数。
type Policy struct {
	Window time.Duration
	Max    int
}

// DefaultContactPolicy 联系表单默认策略：每分钟 3 次。
var DefaultContactPolicy = Policy{Window: time.Minute, Max: 3}
