package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FourthAttemptInWindowDenied(t *testing.T) {
	ctx := context.Background()
	limiter := NewMemory(Policy{Window: 150 * time.Millisecond, Max: 3})

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok, "attempt %d", i+1)
	}
	ok, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other)

	time.Sleep(250 * time.Millisecond)

	ok, err = limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

type fakeCounter struct {
	counts      map[string]int64
	expires     map[string]time.Duration
	err         error
	expireFails int
	expireCalls int
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expireCalls++
	cmd := redis.NewBoolCmd(ctx)
	if f.expireFails > 0 {
		f.expireFails--
		cmd.SetErr(errors.New("i/o timeout"))
		return cmd
	}
	f.expires[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func (f *fakeCounter) TTL(ctx context.Context, key string) *redis.DurationCmd {
	cmd := redis.NewDurationCmd(ctx, time.Second)
	if ttl, ok := f.expires[key]; ok {
		cmd.SetVal(ttl)
	} else {
		cmd.SetVal(-1)
	}
	return cmd
}

func TestRedis_SetsTTLOnFirstHitOnly(t *testing.T) {
	ctx := context.Background()
	counter := &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	limiter := NewRedis(counter, DefaultContactPolicy, "rate:contact:")

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Minute, counter.expires["rate:contact:1.2.3.4"])
	assert.Len(t, counter.expires, 1)
	assert.Equal(t, 1, counter.expireCalls)
}

func TestRedis_FailedExpireIsReportedAndRepaired(t *testing.T) {
	ctx := context.Background()
	counter := &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}, expireFails: 1}
	limiter := NewRedis(counter, DefaultContactPolicy, "rate:contact:")

	_, err := limiter.Allow(ctx, "1.2.3.4")
	require.Error(t, err)
	assert.NotContains(t, counter.expires, "rate:contact:1.2.3.4")

	ok, err := limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, counter.expires["rate:contact:1.2.3.4"])
	assert.Equal(t, 2, counter.expireCalls)

	_, err = limiter.Allow(ctx, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 2, counter.expireCalls)
}

func TestRedis_PropagatesBackendError(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}, err: errors.New("connection refused")}
	limiter := NewRedis(counter, DefaultContactPolicy, "rate:contact:")

	_, err := limiter.Allow(context.Background(), "1.2.3.4")
	assert.Error(t, err)
}
