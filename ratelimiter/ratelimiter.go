// Package ratelimiter throttles calls to the generation service with channel-backed token buckets.
package ratelimiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultBucketSize = 10
	DefaultRefillRate = time.Second
)

var ErrRateLimiterStopped = errors.New("rate limiter stopped")

// TokenBucket holds up to bucketSize tokens and adds one every refillRate.
type TokenBucket struct {
	bucketSize int
	refillRate time.Duration
	tokens     chan struct{}
	ticker     *time.Ticker
	stopCh     chan struct{}
	mu         sync.RWMutex
	stopped    bool
}

func NewTokenBucket(bucketSize int, refillRate time.Duration) *TokenBucket {
	if bucketSize <= 0 {
		bucketSize = DefaultBucketSize
	}
	if refillRate <= 0 {
		refillRate = DefaultRefillRate
	}

	tb := &TokenBucket{
		bucketSize: bucketSize,
		refillRate: refillRate,
		tokens:     make(chan struct{}, bucketSize),
		ticker:     time.NewTicker(refillRate),
		stopCh:     make(chan struct{}),
	}

	for i := 0; i < bucketSize; i++ {
		tb.tokens <- struct{}{}
	}

	go tb.refill()

	return tb
}

func (tb *TokenBucket) refill() {
	for {
		select {
		case <-tb.ticker.C:
			select {
			case tb.tokens <- struct{}{}:
			default:
			}
		case <-tb.stopCh:
			return
		}
	}
}

func (tb *TokenBucket) isStopped() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.stopped
}

// Allow takes a token if one is available, without waiting.
func (tb *TokenBucket) Allow() bool {
	if tb.isStopped() {
		return false
	}

	select {
	case <-tb.tokens:
		return true
	default:
		return false
	}
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// WaitN takes n tokens, blocking as needed. n is capped at the bucket size so a single
// oversized request cannot wait forever. Tokens taken before ctx is done are not returned.
func (tb *TokenBucket) WaitN(ctx context.Context, n int) error {
	if tb.isStopped() {
		return ErrRateLimiterStopped
	}
	if n > tb.bucketSize {
		n = tb.bucketSize
	}

	for i := 0; i < n; i++ {
		select {
		case <-tb.tokens:
		case <-tb.stopCh:
			return ErrRateLimiterStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (tb *TokenBucket) Stop() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.stopped {
		return
	}

	tb.stopped = true
	tb.ticker.Stop()
	close(tb.stopCh)
}

func (tb *TokenBucket) AvailableTokens() int {
	return len(tb.tokens)
}

func (tb *TokenBucket) BucketSize() int {
	return tb.bucketSize
}

func (tb *TokenBucket) RefillRate() time.Duration {
	return tb.refillRate
}
