package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, 100*time.Millisecond)
	defer tb.Stop()

	assert.Equal(t, 5, tb.BucketSize())
	assert.Equal(t, 100*time.Millisecond, tb.RefillRate())
	assert.Equal(t, 5, tb.AvailableTokens())
}

func TestNewTokenBucketDefaults(t *testing.T) {
	tb := NewTokenBucket(0, 0)
	defer tb.Stop()

	assert.Equal(t, DefaultBucketSize, tb.BucketSize())
	assert.Equal(t, DefaultRefillRate, tb.RefillRate())
}

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(3, time.Hour)
	defer tb.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "token %d", i+1)
	}
	assert.False(t, tb.Allow(), "bucket should be empty")
	assert.Equal(t, 0, tb.AvailableTokens())
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(2, 20*time.Millisecond)
	defer tb.Stop()

	tb.Allow()
	tb.Allow()

	assert.Eventually(t, func() bool { return tb.AvailableTokens() >= 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, tb.Allow())
}

func TestTokenBucketWait(t *testing.T) {
	tb := NewTokenBucket(1, 50*time.Millisecond)
	defer tb.Stop()

	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, tb.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestTokenBucketWaitTimeout(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	defer tb.Stop()

	tb.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, tb.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucketWaitN(t *testing.T) {
	tb := NewTokenBucket(4, time.Hour)
	defer tb.Stop()

	require.NoError(t, tb.WaitN(context.Background(), 3))
	assert.Equal(t, 1, tb.AvailableTokens())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, tb.WaitN(ctx, 2), context.DeadlineExceeded)
}

func TestTokenBucketWaitNCappedAtBucketSize(t *testing.T) {
	tb := NewTokenBucket(2, time.Hour)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, tb.WaitN(ctx, 500))
	assert.Equal(t, 0, tb.AvailableTokens())
}

func TestTokenBucketStop(t *testing.T) {
	tb := NewTokenBucket(5, 100*time.Millisecond)

	assert.True(t, tb.Allow())

	tb.Stop()
	tb.Stop()

	assert.False(t, tb.Allow())
	assert.ErrorIs(t, tb.Wait(context.Background()), ErrRateLimiterStopped)
}

func TestTokenBucketStopReleasesWaiters(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	tb.Allow()

	done := make(chan error, 1)
	go func() {
		done <- tb.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	tb.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrRateLimiterStopped)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Stop")
	}
}

func TestTokenBucketConcurrency(t *testing.T) {
	tb := NewTokenBucket(10, 10*time.Millisecond)
	defer tb.Stop()

	const numGoroutines = 20
	results := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			results <- tb.Wait(ctx) == nil
		}()
	}

	successCount := 0
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			successCount++
		}
	}

	assert.GreaterOrEqual(t, successCount, 10)
}

func BenchmarkTokenBucketAllow(b *testing.B) {
	tb := NewTokenBucket(1000000, time.Nanosecond)
	defer tb.Stop()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tb.Allow()
		}
	})
}
