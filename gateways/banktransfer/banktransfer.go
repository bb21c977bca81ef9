// Package banktransfer implements the manual bank transfer channel. Nothing is sent over
// the network: a charge issues a transfer reference and the beneficiary account details,
// and settlement is confirmed out of band.
package banktransfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"payment-gateway-service/catalog"
	"payment-gateway-service/gateways"
	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

// Config holds the beneficiary account used when the credential carries none
type Config struct {
	BankName        string
	BankNameAr      string
	IBAN            string
	AccountHolder   string
	ProcessingHours int
}

// Adapter implements gateways.Adapter for bank transfers
type Adapter struct {
	cfg   Config
	newID func() string
}

// New creates a new bank transfer adapter
func New(cfg Config) *Adapter {
	if cfg.ProcessingHours <= 0 {
		cfg.ProcessingHours = 72
	}
	return &Adapter{cfg: cfg, newID: uuid.NewString}
}

// ID returns the gateway identifier
func (a *Adapter) ID() string { return catalog.BankTransfer }

// Charge issues a transfer reference. The payment stays pending until the transfer is
// reconciled.
func (a *Adapter) Charge(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*gateways.Response, error) {
	reference := Reference(a.newID())
	hours := a.cfg.ProcessingHours

	logging.FromContext(ctx).Info("Issued bank transfer reference",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("reference", reference),
	)

	return &gateways.Response{
		Status:        models.StatusPending,
		TransactionID: reference,
		Amount:        req.Amount,
		Raw: map[string]interface{}{
			"reference_number":           reference,
			"amount":                     req.Amount.StringFixed(2),
			"currency":                   strings.ToUpper(req.Currency),
			"estimated_processing_time":  fmt.Sprintf("%d hours", hours),
			"estimated_processing_hours": hours,
			"expires_at":                 time.Now().UTC().Add(time.Duration(hours) * time.Hour).Format(time.RFC3339),
			"bank_details": map[string]interface{}{
				"bank_name":      orDefault(cred.ExtraValue("bank_name"), a.cfg.BankName),
				"bank_name_ar":   orDefault(cred.ExtraValue("bank_name_ar"), a.cfg.BankNameAr),
				"iban":           orDefault(cred.ExtraValue("iban"), a.cfg.IBAN),
				"account_holder": orDefault(cred.ExtraValue("account_holder"), a.cfg.AccountHolder),
			},
			"instructions":    "Include the reference number in the transfer description",
			"instructions_ar": "يرجى كتابة الرقم المرجعي في وصف التحويل",
		},
	}, nil
}

// Refund always fails: bank transfers cannot be reversed programmatically
func (a *Adapter) Refund(ctx context.Context, call gateways.RefundCall, cred models.GatewayCredential) (*gateways.Response, error) {
	return nil, payerr.New(payerr.RefundNotSupported,
		"Bank transfers cannot be refunded automatically, please contact support",
		"لا يمكن استرداد التحويلات البنكية تلقائياً، يرجى التواصل مع الدعم")
}

// QueryStatus reports pending; confirmation happens through reconciliation
func (a *Adapter) QueryStatus(ctx context.Context, transactionID string, cred models.GatewayCredential) (*gateways.Response, error) {
	if !strings.HasPrefix(transactionID, referencePrefix) {
		return nil, payerr.New(payerr.TransactionNotFound, "", "")
	}
	return &gateways.Response{
		Status:        models.StatusPending,
		TransactionID: transactionID,
		Raw: map[string]interface{}{
			"reference_number":          transactionID,
			"estimated_processing_time": fmt.Sprintf("%d hours", a.cfg.ProcessingHours),
		},
	}, nil
}

const referencePrefix = "BT-"

// Reference formats a transfer reference number from a unique id
func Reference(id string) string {
	id = strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(id) > 12 {
		id = id[:12]
	}
	return referencePrefix + id
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
