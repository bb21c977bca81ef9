package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-gateway-service/models"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiterWithClock(2, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		ok, err := l.TryAcquire(ctx, "sara@example.com")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "attempt %d", i+1)
	}

	ok, _ := l.TryAcquire(ctx, "omar@example.com")
	assert.True(t, ok, "other customers are counted separately")

	now = now.Add(time.Minute)
	ok, _ = l.TryAcquire(ctx, "sara@example.com")
	assert.True(t, ok, "a new window resets the count")
}

func TestMemoryLimiterConcurrentCount(t *testing.T) {
	l := NewMemoryLimiter(50, time.Hour)
	var granted int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.TryAcquire(context.Background(), "same-customer"); ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), granted)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "sara@example.com", Key(models.Customer{Email: " Sara@Example.com ", Phone: "0551234567"}))
	assert.Equal(t, "0551234567", Key(models.Customer{Phone: "0551234567", Name: "Sara"}))
	assert.Equal(t, "sara", Key(models.Customer{Name: "Sara"}))
	assert.Equal(t, "anonymous", Key(models.Customer{}))
}
