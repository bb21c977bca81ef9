// Package retry drives gateway calls through exponential backoff with at most one
// fallback gateway per request. MaxAttempts bounds the calls of a request across
// both gateways.
package retry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"payment-gateway-service/gateways"
	"payment-gateway-service/logging"
	"payment-gateway-service/monitoring"
	"payment-gateway-service/payerr"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second
)

// Sleeper waits between attempts. It returns early with ctx's error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config controls attempts and backoff
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// DisableFallback keeps every request on its selected gateway
	DisableFallback bool
}

// Operation performs one call against gatewayID
type Operation func(ctx context.Context, gatewayID string) (*gateways.Response, error)

// FallbackFunc returns the alternate gateway that takes the last attempt after exhausted
// kept failing
type FallbackFunc func(exhausted string) (string, bool)

// Attempt records one invocation of an Operation
type Attempt struct {
	GatewayID string
	Number    int
	// Delay is the backoff waited before this attempt
	Delay time.Duration
	Err   error
}

// Outcome is the result of Execute
type Outcome struct {
	Response     *gateways.Response
	GatewayID    string
	Attempts     []Attempt
	UsedFallback bool
}

// Controller runs operations with retry and fallback
type Controller struct {
	cfg     Config
	sleeper Sleeper
}

// Option configures a Controller
type Option func(*Controller)

// WithSleeper replaces the timer-based sleeper
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleeper = s }
}

// New creates a controller. Zero config values take the package defaults.
func New(cfg Config, opts ...Option) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	c := &Controller{cfg: cfg, sleeper: timerSleeper{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backoff returns the delay after the n-th failed attempt: base * 2^(n-1), capped at
// the maximum delay.
func (c *Controller) Backoff(n int) time.Duration {
	d := c.cfg.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= c.cfg.MaxDelay {
			return c.cfg.MaxDelay
		}
	}
	if d > c.cfg.MaxDelay {
		return c.cfg.MaxDelay
	}
	return d
}

// state is the position of one request in the retry machine
type state struct {
	gateway      string
	delay        time.Duration
	fallbackUsed bool
}

// Execute calls op against primary until it succeeds, fails terminally, or MaxAttempts
// calls have been made. When a fallback is available the last call goes to it, without
// backoff; otherwise every call stays on primary. Terminal errors are returned as is;
// exhaustion surfaces as a non-retryable PROCESSING_ERROR wrapping the last failure.
func (c *Controller) Execute(ctx context.Context, primary string, fallback FallbackFunc, op Operation) (*Outcome, error) {
	out := &Outcome{}
	st := state{gateway: primary}
	logger := logging.FromContext(ctx)

	for {
		resp, err := op(ctx, st.gateway)
		n := len(out.Attempts) + 1
		out.Attempts = append(out.Attempts, Attempt{GatewayID: st.gateway, Number: n, Delay: st.delay, Err: err})
		out.GatewayID = st.gateway

		if err == nil {
			out.Response = resp
			return out, nil
		}
		if !payerr.IsRetryable(err) {
			return out, err
		}

		if n >= c.cfg.MaxAttempts {
			logger.Error("Gateway retries exhausted",
				zap.String("gateway", st.gateway),
				zap.Int("attempts", n),
				zap.Error(err),
			)
			return out, payerr.Wrap(payerr.ProcessingError, err)
		}

		if n == c.cfg.MaxAttempts-1 && !st.fallbackUsed && !c.cfg.DisableFallback && fallback != nil {
			if next, ok := fallback(st.gateway); ok && next != st.gateway {
				logger.Warn("Gateway failing, falling back",
					zap.String("gateway", st.gateway),
					zap.String("fallback", next),
					zap.Error(err),
				)
				st = state{gateway: next, fallbackUsed: true}
				out.UsedFallback = true
				continue
			}
		}

		st.delay = c.Backoff(n)
		monitoring.GatewayRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("gateway", st.gateway)))
		logger.Warn("Retrying gateway call",
			zap.String("gateway", st.gateway),
			zap.Int("attempt", n),
			zap.Duration("backoff", st.delay),
			zap.Error(err),
		)
		if serr := c.sleeper.Sleep(ctx, st.delay); serr != nil {
			return out, payerr.Wrap(payerr.ProcessingError, serr)
		}
	}
}

// WithRetry runs op against a single gateway with backoff and no fallback
func (c *Controller) WithRetry(ctx context.Context, gatewayID string, op Operation) (*Outcome, error) {
	return c.Execute(ctx, gatewayID, nil, op)
}
