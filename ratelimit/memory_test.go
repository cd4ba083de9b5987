package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusid/oauthd/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testPolicy(max int, window time.Duration) domain.RateLimitPolicy {
	return domain.RateLimitPolicy{MaxRequests: max, Window: window, Enabled: true}
}

func TestMemoryLimiterCountsWithinWindow(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(clock, 0)
	ctx := context.Background()
	policy := testPolicy(3, time.Minute)

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "client:token", policy)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 3-(i+1), res.Remaining)
	}

	res, err := l.Check(ctx, "client:token", policy)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
}

func TestMemoryLimiterWindowReset(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(clock, 0)
	ctx := context.Background()
	policy := testPolicy(1, time.Minute)

	res, _ := l.Check(ctx, "k", policy)
	assert.True(t, res.Allowed)
	res, _ = l.Check(ctx, "k", policy)
	assert.False(t, res.Allowed)

	// At exactly window end the counter resets; the window is half-open.
	clock.Advance(time.Minute)
	res, _ = l.Check(ctx, "k", policy)
	assert.True(t, res.Allowed)
}

func TestMemoryLimiterJustBeforeWindowEndStillDenied(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(clock, 0)
	ctx := context.Background()
	policy := testPolicy(1, time.Minute)

	l.Check(ctx, "k", policy)
	clock.Advance(time.Minute - time.Millisecond)
	res, _ := l.Check(ctx, "k", policy)
	assert.False(t, res.Allowed)
}

func TestMemoryLimiterIdentifiersIndependent(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(clock, 0)
	ctx := context.Background()
	policy := testPolicy(1, time.Minute)

	res, _ := l.Check(ctx, "a:token", policy)
	assert.True(t, res.Allowed)
	res, _ = l.Check(ctx, "b:token", policy)
	assert.True(t, res.Allowed)
	res, _ = l.Check(ctx, "a:token", policy)
	assert.False(t, res.Allowed)
}

func TestMemoryLimiterDisabledPolicyAlwaysAllows(t *testing.T) {
	l := NewMemoryLimiter(newFakeClock(), 0)
	ctx := context.Background()
	policy := domain.RateLimitPolicy{MaxRequests: 1, Window: time.Minute, Enabled: false}

	for i := 0; i < 10; i++ {
		res, err := l.Check(ctx, "k", policy)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestMemoryLimiterConcurrentChecksDoNotOvershoot(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter(clock, 0)
	policy := testPolicy(50, time.Minute)

	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(context.Background(), "shared", policy)
			require.NoError(t, err)
			allowed <- res.Allowed
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for a := range allowed {
		if a {
			count++
		}
	}
	assert.Equal(t, 50, count)
}

func TestKeyComposition(t *testing.T) {
	assert.Equal(t, "client-abc:token", ClientKey("client-abc", "token"))
	assert.Equal(t, "user:u1", UserKey("u1"))
	assert.Equal(t, "global:10.0.0.1", GlobalKey("10.0.0.1"))
}
