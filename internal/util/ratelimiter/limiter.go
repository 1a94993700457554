package ratelimiter

import (
	"sync"
	"time"
)

// Limiter provides simple time-based rate limiting.
// It tracks the next time an action is allowed and is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	nextAllowed time.Time
	now         func() time.Time
}

// New creates a new rate limiter with the specified interval.
// The first call to Allow always succeeds.
func New(interval time.Duration) *Limiter {
	return NewWithClock(interval, time.Now)
}

// NewWithClock creates a limiter that reads time from now
func NewWithClock(interval time.Duration, now func() time.Time) *Limiter {
	return &Limiter{
		interval: interval,
		now:      now,
	}
}

// Allow checks if an action is allowed at this time.
// Returns true if allowed (and moves the next allowed time forward by one interval),
// or false with the remaining wait duration if rate-limited.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !now.Before(l.nextAllowed) {
		l.nextAllowed = now.Add(l.interval)
		return true, 0
	}

	return false, l.nextAllowed.Sub(now)
}

// Reset clears the limiter state, allowing the next action immediately.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.nextAllowed = time.Time{}
	l.mu.Unlock()
}

// NextAllowed returns the earliest time the next action is allowed.
// The zero time means the next call is allowed immediately.
func (l *Limiter) NextAllowed() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextAllowed
}

// Interval returns the configured rate limit interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}
