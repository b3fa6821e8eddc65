package ratelimit

import (
	"context"
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter paces outgoing requests
type Limiter interface {
	// Allow reports whether a request may start now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may start or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter
	Reset()
}

// New returns a pacer for requestsPerSecond, or an unlimited limiter when
// requestsPerSecond is not positive
func New(requestsPerSecond float64) Limiter {
	if requestsPerSecond <= 0 {
		return Unlimited{}
	}
	burst := int(math.Ceil(requestsPerSecond))
	return NewTokenBucket(requestsPerSecond, burst)
}

// TokenBucket is a token bucket refilled continuously at a fixed rate
type TokenBucket struct {
	rate  rate.Limit
	burst int

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewTokenBucket creates a bucket holding burst tokens refilled at perSecond
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// Allow consumes a token if one is available
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

// Reset restores the bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(tb.rate, tb.burst)
}

// Unlimited never delays a request
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

func (Unlimited) Reset() {}
