package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"portfolio/internal/ratelimit"
)

const (
	refreshBlacklistPrefix = "auth:refresh:blacklist:"
	loginRatePrefix        = "rate:login:"
	loginFailPrefix        = "lock:login:fail:"
	loginLockPrefix        = "lock:login:"
)

// ErrLoginRateLimited 与 ErrAccountLocked 表示登录被暂时拒绝。
var (
	ErrLoginRateLimited = errors.New("rate limit exceeded")
	ErrAccountLocked    = errors.New("account temporarily locked")
)

// KV 是会话状态需要的最小键值操作。
type KV interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Set(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// SessionPolicy 描述登录限流与锁定策略。
type SessionPolicy struct {
	LoginRatePerHour int
	LockThreshold    int
	LockTTL          time.Duration
}

// Sessions 管理刷新令牌黑名单与登录失败锁定。
type Sessions struct {
	kv     KV
	policy SessionPolicy
	now    func() time.Time
}

// NewSessions 构造会话状态管理。
func NewSessions(kv KV, policy SessionPolicy) *Sessions {
	return &Sessions{kv: kv, policy: policy, now: time.Now}
}

// Revoke 将刷新令牌加入黑名单，直到其原本的过期时间。
func (s *Sessions) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.kv.Set(ctx, refreshBlacklistPrefix+jti, ttl)
}

// IsRevoked 判断刷新令牌是否已吊销。
func (s *Sessions) IsRevoked(ctx context.Context, jti string) (bool, error) {
	return s.kv.Exists(ctx, refreshBlacklistPrefix+jti)
}

// CheckLogin 在校验密码前执行：每 IP+账号 每小时限次，账号锁定期间直接拒绝。
// 计数后端出错时放行。
func (s *Sessions) CheckLogin(ctx context.Context, ip, email string) error {
	email = strings.ToLower(email)
	rateKey := loginRatePrefix + ip + ":" + email + ":" + s.now().UTC().Format("2006010215")
	if count, err := s.kv.Incr(ctx, rateKey, time.Hour); err == nil && count > int64(s.policy.LoginRatePerHour) {
		return ErrLoginRateLimited
	}
	if locked, err := s.kv.Exists(ctx, loginLockPrefix+email); err == nil && locked {
		return ErrAccountLocked
	}
	return nil
}

// LoginFailed 记录一次失败，达到阈值后锁定账号。
func (s *Sessions) LoginFailed(ctx context.Context, email string) error {
	email = strings.ToLower(email)
	count, err := s.kv.Incr(ctx, loginFailPrefix+email, s.policy.LockTTL)
	if err != nil {
		return err
	}
	if count >= int64(s.policy.LockThreshold) {
		return s.kv.Set(ctx, loginLockPrefix+email, s.policy.LockTTL)
	}
	return nil
}

// LoginSucceeded 清除失败计数。
func (s *Sessions) LoginSucceeded(ctx context.Context, email string) error {
	return s.kv.Delete(ctx, loginFailPrefix+strings.ToLower(email))
}

// RedisKV 基于 Redis，适合多实例部署。
type RedisKV struct {
	client redis.UniversalClient
}

// NewRedisKV 构造 Redis 键值存储。
func NewRedisKV(client redis.UniversalClient) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return ratelimit.IncrWithTTL(ctx, r.client, key, ttl)
}

func (r *RedisKV) Set(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Set(ctx, key, "1", ttl).Err()
}

func (r *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MemoryKV 是进程内实现，未启用 Redis 时使用。
type MemoryKV struct {
	items *cache.Cache
}

// NewMemoryKV 构造进程内键值存储。
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: cache.New(time.Hour, 10*time.Minute)}
}

func (m *MemoryKV) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	for attempt := 0; attempt < 3; attempt++ {
		if err := m.items.Add(key, int64(1), ttl); err == nil {
			return 1, nil
		}
		if count, err := m.items.IncrementInt64(key, 1); err == nil {
			return count, nil
		}
	}
	return 0, errors.New("counter contention")
}

func (m *MemoryKV) Set(_ context.Context, key string, ttl time.Duration) error {
	m.items.Set(key, true, ttl)
	return nil
}

func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.items.Get(key)
	return ok, nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.items.Delete(key)
	return nil
}
