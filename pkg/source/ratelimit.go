package source

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Default per-client budgets, in requests per minute.
const (
	YouTubeRequestsPerMinute = 100
	SocialRequestsPerMinute  = 20
	ScrapeRequestsPerMinute  = 10
	FeedRequestsPerMinute    = 60
)

// RateLimiter spreads a budget of N requests over a rolling window. A full
// window's worth may be spent at once; after that tokens refill at N/window.
type RateLimiter struct {
	limiter *rate.Limiter
	perMin  int
}

// NewRateLimiter creates a limiter allowing perMinute requests per minute.
func NewRateLimiter(perMinute int) (*RateLimiter, error) {
	return newWindowLimiter(perMinute, time.Minute)
}

func newWindowLimiter(n int, window time.Duration) (*RateLimiter, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRateLimit, n)
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(n)), n),
		perMin:  n,
	}, nil
}

// Wait blocks until a request is allowed or ctx ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl == nil {
		return nil
	}
	if rl.limiter.Allow() {
		return nil
	}

	reservation := rl.limiter.Reserve()
	if !reservation.OK() {
		return fmt.Errorf("rate limit: cannot reserve token")
	}

	timer := time.NewTimer(reservation.Delay())
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	}
}

// PerMinute returns the configured budget.
func (rl *RateLimiter) PerMinute() int { return rl.perMin }
