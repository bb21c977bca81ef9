// Package ratelimit caps payment attempts per customer per fixed time window.
package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"payment-gateway-service/models"
)

// Limiter grants or refuses one attempt for key
type Limiter interface {
	TryAcquire(ctx context.Context, key string) (bool, error)
}

// Key identifies a customer for throttling: email, then phone, then name
func Key(c models.Customer) string {
	for _, v := range []string{c.Email, c.Phone, c.Name} {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	return "anonymous"
}

// bucket returns the fixed window index containing now
func bucket(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}

// MemoryLimiter is an in-process fixed-window limiter
type MemoryLimiter struct {
	max    int64
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*int64
	current  int64
}

// NewMemoryLimiter allows max attempts per key per window
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return NewMemoryLimiterWithClock(max, window, time.Now)
}

// NewMemoryLimiterWithClock is NewMemoryLimiter with an injectable clock
func NewMemoryLimiterWithClock(max int, window time.Duration, now func() time.Time) *MemoryLimiter {
	return &MemoryLimiter{
		max:      int64(max),
		window:   window,
		now:      now,
		counters: make(map[string]*int64),
	}
}

// TryAcquire counts an attempt and reports whether it is within the limit
func (l *MemoryLimiter) TryAcquire(ctx context.Context, key string) (bool, error) {
	b := bucket(l.now(), l.window)
	counter := l.counter(key, b)
	return atomic.AddInt64(counter, 1) <= l.max, nil
}

func (l *MemoryLimiter) counter(key string, b int64) *int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	// counters of past windows are never read again
	if b > l.current {
		l.counters = make(map[string]*int64)
		l.current = b
	}
	k := key + ":" + strconv.FormatInt(b, 10)
	c, ok := l.counters[k]
	if !ok {
		c = new(int64)
		l.counters[k] = c
	}
	return c
}
