// Package gateways defines the adapter contract every payment processor implements and
// the HTTP plumbing the adapters share. Concrete adapters live in sub-packages.
package gateways

import (
	"context"

	"github.com/shopspring/decimal"

	"payment-gateway-service/models"
)

// Response is an adapter's normalized answer to a charge, refund or status call.
// Failures are returned as *payerr.Error instead.
type Response struct {
	Status         models.PaymentStatus
	TransactionID  string
	RefundID       string
	Amount         decimal.Decimal
	ActionRequired *models.ActionRequired
	// Raw is the scrubbed gateway payload kept for diagnostics
	Raw map[string]interface{}
}

// RefundCall carries what an adapter needs to reverse a charge
type RefundCall struct {
	TransactionID  string
	Amount         decimal.Decimal
	Currency       string
	Reason         string
	ReasonAr       string
	// IdempotencyKey is shared by every attempt of one refund request
	IdempotencyKey string
}

// Adapter translates canonical requests into one gateway's wire protocol
type Adapter interface {
	// ID returns the gateway identifier (e.g. "mada", "stripe")
	ID() string

	// Charge submits a payment
	Charge(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*Response, error)

	// Refund reverses all or part of a completed payment
	Refund(ctx context.Context, call RefundCall, cred models.GatewayCredential) (*Response, error)

	// QueryStatus fetches the current status of a transaction
	QueryStatus(ctx context.Context, transactionID string, cred models.GatewayCredential) (*Response, error)
}

// Registry resolves adapters by gateway id
type Registry map[string]Adapter

// NewRegistry indexes adapters by their ID
func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.ID()] = a
	}
	return r
}

// Get returns the adapter for gatewayID
func (r Registry) Get(gatewayID string) (Adapter, bool) {
	a, ok := r[gatewayID]
	return a, ok
}
