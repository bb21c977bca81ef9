package gateways

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"payment-gateway-service/monitoring"
	"payment-gateway-service/payerr"
)

const maxResponseBytes = 1 << 20

// Client is the instrumented HTTP client adapters use to reach their gateway
type Client struct {
	gatewayID string
	timeout   time.Duration
	http      *http.Client
}

// NewClient creates a client whose every call is bounded by timeout
func NewClient(gatewayID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		gatewayID: gatewayID,
		timeout:   timeout,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Do sends req and returns the status code and body. Transport failures and timeouts
// come back as retryable payment errors.
func (c *Client) Do(ctx context.Context, operation string, req *http.Request) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("gateway.id", c.gatewayID),
		attribute.String("gateway.operation", operation),
	)

	start := time.Now()
	resp, err := c.http.Do(req.WithContext(ctx))
	duration := time.Since(start).Seconds()

	if err != nil {
		c.record(ctx, operation, "error", duration)
		span.SetAttributes(attribute.String("gateway.status", "error"))
		return 0, nil, payerr.Transient(fmt.Sprintf("%s: %s request failed", c.gatewayID, operation), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.record(ctx, operation, "error", duration)
		return 0, nil, payerr.Transient(fmt.Sprintf("%s: %s read response failed", c.gatewayID, operation), err)
	}

	c.record(ctx, operation, strconv.Itoa(resp.StatusCode), duration)
	span.SetAttributes(attribute.Int("gateway.status_code", resp.StatusCode))
	return resp.StatusCode, body, nil
}

func (c *Client) record(ctx context.Context, operation, status string, seconds float64) {
	monitoring.GatewayCallDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("gateway", c.gatewayID),
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// StatusError maps a non-success HTTP status into the payment error taxonomy.
// message and messageAr are the gateway's own text when it supplied any; code overrides
// the status-derived code when the adapter already recognized the failure.
func StatusError(status int, code payerr.Code, message, messageAr string) *payerr.Error {
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		e := payerr.New(payerr.ProcessingError, orDefault(message, "gateway temporarily unavailable"), messageAr)
		e.Retryable = true
		e.HTTPStatus = status
		return e
	}
	if code == "" {
		switch status {
		case http.StatusPaymentRequired:
			code = payerr.CardDeclined
		case http.StatusNotFound:
			code = payerr.TransactionNotFound
		case http.StatusConflict:
			code = payerr.DuplicateTransaction
		case http.StatusUnauthorized, http.StatusForbidden:
			code = payerr.ProcessingError
		default:
			code = payerr.ValidationError
		}
	}
	e := payerr.New(code, message, messageAr)
	e.HTTPStatus = status
	return e
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
