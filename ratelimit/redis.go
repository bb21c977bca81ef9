package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
)

// RedisLimiter shares fixed-window counters between service instances
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// RedisOptions configures NewRedisLimiter
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Max      int
	Window   time.Duration
}

// NewRedisLimiter connects to redis and verifies the connection
func NewRedisLimiter(opts RedisOptions) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if _, err := client.Ping().Result(); err != nil {
		return nil, errors.Wrap(err, "cannot connect to redis")
	}
	return NewRedisLimiterWithClient(client, opts.Max, opts.Window), nil
}

// NewRedisLimiterWithClient wraps an existing client
func NewRedisLimiterWithClient(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		max:    int64(max),
		window: window,
		prefix: "payments:ratelimit:",
		now:    time.Now,
	}
}

// TryAcquire increments the window counter and sets its expiry in one MULTI block
func (l *RedisLimiter) TryAcquire(ctx context.Context, key string) (bool, error) {
	k := l.prefix + key + ":" + strconv.FormatInt(bucket(l.now(), l.window), 10)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(k)
	pipe.Expire(k, l.window)
	if _, err := pipe.Exec(); err != nil {
		return false, errors.Wrap(err, "rate limit counter")
	}
	return incr.Val() <= l.max, nil
}

// Close releases the redis connection pool
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
