package scheduler

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter wraps a token bucket that only ratchets down. When
// the portal throttles, the effective rate halves (floored at 1/16 of
// the configured rate) and stays there for the remainder of the run —
// it never climbs back above the configured budget.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(r, burst),
		initialRate: r,
		minRate:     r / 16,
		currentRate: r,
	}
}

// Wait blocks until the limiter allows a request.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnThrottle halves the effective rate after a portal throttle
// response.
func (a *AdaptiveLimiter) OnThrottle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate / 2
	if newRate < a.minRate {
		newRate = a.minRate
	}
	if newRate == a.currentRate {
		return
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: portal throttled, halving rate",
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current effective rate.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}
