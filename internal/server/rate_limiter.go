package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter throttles inbound events on one connection: a bucket of burst
// tokens refilled steadily, one token every interval/burst.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Every(interval/time.Duration(burst)), burst),
	}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
