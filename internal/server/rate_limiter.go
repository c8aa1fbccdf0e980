// Package server implements a token bucket rate limiter for per-client
// throttling that protects the message buffer from abuse.
package server

import (
	"sync"
	"time"
)

type rateLimiter struct {
	mu        sync.Mutex
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	rate := float64(capacity) / interval.Seconds()
	if rate <= 0 {
		rate = float64(capacity)
	}

	return &rateLimiter{
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      rate,
		lastCheck: time.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastCheck).Seconds()
	rl.lastCheck = now

	if elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}

	if rl.tokens < 1 {
		return false
	}

	rl.tokens--
	return true
}

// idle reports whether the bucket has been untouched for longer than d.
func (rl *rateLimiter) idle(now time.Time, d time.Duration) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return now.Sub(rl.lastCheck) > d
}

// maxTrackedClients bounds limiterSet before idle buckets are pruned.
const maxTrackedClients = 10000

// limiterSet keeps one token bucket per client key (the remote IP for
// plain HTTP posts).
type limiterSet struct {
	mu       sync.Mutex
	cfg      RateLimitConfig
	limiters map[string]*rateLimiter
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{cfg: cfg, limiters: make(map[string]*rateLimiter)}
}

func (s *limiterSet) allow(key string) bool {
	s.mu.Lock()
	rl, ok := s.limiters[key]
	if !ok {
		if len(s.limiters) >= maxTrackedClients {
			s.pruneLocked(time.Now())
		}
		rl = newRateLimiter(s.cfg.Burst, s.cfg.RefillInterval)
		s.limiters[key] = rl
	}
	s.mu.Unlock()

	return rl.allow()
}

// pruneLocked drops buckets that have been idle long enough to be full again.
func (s *limiterSet) pruneLocked(now time.Time) {
	for key, rl := range s.limiters {
		if rl.idle(now, s.cfg.RefillInterval) {
			delete(s.limiters, key)
		}
	}
}
