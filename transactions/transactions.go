// Package transactions records the outcome of submitted payments so refunds and status
// queries can resolve the gateway and the refundable balance of a transaction.
package transactions

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"payment-gateway-service/models"
)

var (
	ErrNotFound           = errors.New("transaction not found")
	ErrDuplicate          = errors.New("transaction already recorded")
	ErrRefundExceedsTotal = errors.New("refund exceeds the remaining refundable amount")
)

// Record is the stored outcome of one payment
type Record struct {
	TransactionID  string
	GatewayID      string
	InvoiceID      string
	Amount         decimal.Decimal
	Currency       string
	Status         models.PaymentStatus
	ProcessingFee  decimal.Decimal
	RefundedAmount decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Refundable returns the amount that can still be refunded
func (r Record) Refundable() decimal.Decimal {
	rest := r.Amount.Sub(r.RefundedAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// Store persists payment records
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, transactionID string) (*Record, error)
	UpdateStatus(ctx context.Context, transactionID string, status models.PaymentStatus) error
	// RecordRefund adds amount to the refunded total and returns the updated record. It
	// fails with ErrRefundExceedsTotal, changing nothing, when the total would pass the
	// charged amount.
	RecordRefund(ctx context.Context, transactionID string, amount decimal.Decimal) (*Record, error)
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record), now: time.Now}
}

// Save inserts rec
func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TransactionID]; ok {
		return ErrDuplicate
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	s.records[rec.TransactionID] = rec
	return nil
}

// Get returns the record of transactionID
func (s *MemoryStore) Get(ctx context.Context, transactionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// UpdateStatus sets the status of transactionID
func (s *MemoryStore) UpdateStatus(ctx context.Context, transactionID string, status models.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[transactionID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = status
	rec.UpdatedAt = s.now().UTC()
	s.records[transactionID] = rec
	return nil
}

// RecordRefund adds amount to the refunded total
func (s *MemoryStore) RecordRefund(ctx context.Context, transactionID string, amount decimal.Decimal) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.RefundedAmount.Add(amount).GreaterThan(rec.Amount) {
		return nil, ErrRefundExceedsTotal
	}
	rec.RefundedAmount = rec.RefundedAmount.Add(amount)
	rec.UpdatedAt = s.now().UTC()
	s.records[transactionID] = rec
	return &rec, nil
}
