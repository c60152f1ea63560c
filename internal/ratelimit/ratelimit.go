package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// RateLimiter paces a stream of actions such as page loads or dispatches.
type RateLimiter interface {
	Wait(ctx context.Context) error
	SetDelay(min, max time.Duration)
}

// SimpleRateLimiter spaces consecutive actions by a random delay drawn from
// [min, max). The first action never waits. Callers queue on the mutex, so
// concurrent waiters are released one slot at a time.
type SimpleRateLimiter struct {
	mu   sync.Mutex
	min  time.Duration
	max  time.Duration
	last time.Time
}

func NewSimpleRateLimiter(minDelay, maxDelay time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{min: minDelay, max: maxDelay}
}

func (r *SimpleRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.last.IsZero() {
		if remaining := r.pick() - time.Since(r.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			defer timer.Stop()

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	r.last = time.Now()
	return nil
}

func (r *SimpleRateLimiter) SetDelay(minDelay, maxDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.min, r.max = minDelay, maxDelay
}

// Delays returns the current bounds.
func (r *SimpleRateLimiter) Delays() (time.Duration, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.min, r.max
}

// pick draws the gap before the next action. r.mu must be held.
func (r *SimpleRateLimiter) pick() time.Duration {
	if r.max <= r.min {
		return r.min
	}
	return r.min + rand.N(r.max-r.min)
}

const (
	// errorStreak consecutive errors widen the delay once.
	errorStreak = 3
	// successStreak consecutive successes narrow it once.
	successStreak = 6

	backoffFactor = 1.5
	recoverFactor = 0.9
	backoffStep   = 500 * time.Millisecond

	maxMinDelay = 60 * time.Second
	maxMaxDelay = 120 * time.Second
)

// AdaptiveRateLimiter widens its delay after a streak of captcha pages and
// narrows it back towards the configured floor on sustained success.
type AdaptiveRateLimiter struct {
	*SimpleRateLimiter
	floor     time.Duration
	errors    int
	successes int
}

func NewAdaptiveRateLimiter(minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	return &AdaptiveRateLimiter{
		SimpleRateLimiter: NewSimpleRateLimiter(minDelay, maxDelay),
		floor:             minDelay,
	}
}

func (a *AdaptiveRateLimiter) RecordSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors = 0
	a.successes++
	if a.successes < successStreak {
		return
	}
	a.successes = 0
	a.min = max(time.Duration(float64(a.min)*recoverFactor), a.floor)
}

func (a *AdaptiveRateLimiter) RecordError() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.successes = 0
	a.errors++
	if a.errors < errorStreak {
		return
	}
	a.errors = 0

	// The additive step keeps a zero-delay limiter from staying at zero.
	lo := max(time.Duration(float64(a.min)*backoffFactor), a.min+backoffStep)
	hi := max(time.Duration(float64(a.max)*backoffFactor), lo)
	a.min = min(lo, maxMinDelay)
	a.max = min(hi, maxMaxDelay)
}
