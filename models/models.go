package models

import (
	"github.com/shopspring/decimal"

	"payment-gateway-service/payerr"
)

// PaymentMethod is the method a customer chose at checkout
type PaymentMethod string

const (
	MethodMada         PaymentMethod = "mada"
	MethodSTCPay       PaymentMethod = "stc_pay"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodPayTabs      PaymentMethod = "paytabs"
	MethodStripe       PaymentMethod = "stripe"
	// MethodVisa and MethodMastercard are routed to a card processor by currency
	MethodVisa       PaymentMethod = "visa"
	MethodMastercard PaymentMethod = "mastercard"
)

// PaymentStatus is the canonical status of a payment
type PaymentStatus string

const (
	StatusCompleted      PaymentStatus = "completed"
	StatusPending        PaymentStatus = "pending"
	StatusRequiresAction PaymentStatus = "requires_action"
	StatusFailed         PaymentStatus = "failed"
)

// Successful reports whether the status counts as a successful submission
func (s PaymentStatus) Successful() bool {
	return s == StatusCompleted || s == StatusPending || s == StatusRequiresAction
}

// ActionType identifies the customer step required to finish a payment
type ActionType string

const (
	Action3DSecure        ActionType = "3d_secure"
	ActionOTPVerification ActionType = "otp_verification"
)

// Customer holds payer details
type Customer struct {
	Name   string `json:"name"`
	NameAr string `json:"name_ar,omitempty"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
}

// CardData holds raw card fields. Never log these values unmasked.
type CardData struct {
	Number      string `json:"number,omitempty"`
	ExpiryMonth string `json:"expiry_month,omitempty"`
	ExpiryYear  string `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv,omitempty"`
	HolderName  string `json:"holder_name,omitempty"`
}

// WalletData holds mobile-wallet fields for the OTP flow
type WalletData struct {
	Phone string `json:"phone,omitempty"`
	OTP   string `json:"otp,omitempty"`
	// OTPReference and PaymentReference come back from the authorize step
	OTPReference     string `json:"otp_reference,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
}

// BankAccountData holds payer bank account fields for manual transfers
type BankAccountData struct {
	AccountHolder string `json:"account_holder,omitempty"`
	BankName      string `json:"bank_name,omitempty"`
	IBAN          string `json:"iban,omitempty"`
}

// PaymentData is the method-specific part of a request; only the member matching
// the payment method is read.
type PaymentData struct {
	Card        *CardData        `json:"card,omitempty"`
	Wallet      *WalletData      `json:"wallet,omitempty"`
	BankAccount *BankAccountData `json:"bank_account,omitempty"`
	// Token is a gateway-issued payment method token used instead of raw card fields
	Token string `json:"token,omitempty"`
}

// RequestMetadata carries device and network context
type RequestMetadata struct {
	IPAddress string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// PaymentRequest is the canonical charge request. Amount is in major units.
type PaymentRequest struct {
	InvoiceID      string           `json:"invoice_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Currency       string           `json:"currency"`
	PaymentMethod  PaymentMethod    `json:"payment_method"`
	Customer       Customer         `json:"customer"`
	PaymentData    PaymentData      `json:"payment_data"`
	ReturnURL      string           `json:"return_url,omitempty"`
	CallbackURL    string           `json:"callback_url,omitempty"`
	Metadata       *RequestMetadata `json:"metadata,omitempty"`
	// IdempotencyKey, when set, is forwarded to gateways that deduplicate charges
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
}

// ActionRequired describes the customer step needed before a payment completes
type ActionRequired struct {
	Type      ActionType `json:"type"`
	URL       string     `json:"url,omitempty"`
	Reference string     `json:"reference,omitempty"`
}

// PaymentError is the bilingual error attached to failed results
type PaymentError struct {
	Code      payerr.Code `json:"code"`
	Message   string      `json:"message"`
	MessageAr string      `json:"message_ar"`
}

// NewPaymentError converts err into its bilingual form
func NewPaymentError(err error) *PaymentError {
	pe := payerr.From(err)
	if pe == nil {
		return nil
	}
	return &PaymentError{Code: pe.Code, Message: pe.Message, MessageAr: pe.MessageAr}
}

// PaymentResult is the canonical response of a charge or status query
type PaymentResult struct {
	Success         bool                   `json:"success"`
	Status          PaymentStatus          `json:"status"`
	TransactionID   string                 `json:"transaction_id,omitempty"`
	GatewayID       string                 `json:"gateway_id,omitempty"`
	ProcessingFee   decimal.Decimal        `json:"processing_fee"`
	GatewayResponse map[string]interface{} `json:"gateway_response,omitempty"`
	ActionRequired  *ActionRequired        `json:"action_required,omitempty"`
	Error           *PaymentError          `json:"error,omitempty"`
}

// FailedResult builds a failed result from err
func FailedResult(err error) *PaymentResult {
	return &PaymentResult{
		Success: false,
		Status:  StatusFailed,
		Error:   NewPaymentError(err),
	}
}

// RefundRequest asks for a full or partial refund of a completed transaction
type RefundRequest struct {
	OriginalTransactionID string          `json:"original_transaction_id"`
	Amount                decimal.Decimal `json:"amount"`
	Reason                string          `json:"reason,omitempty"`
	ReasonAr              string          `json:"reason_ar,omitempty"`
}

// RefundResult is the canonical refund response
type RefundResult struct {
	Success                   bool            `json:"success"`
	RefundID                  string          `json:"refund_id,omitempty"`
	Status                    PaymentStatus   `json:"status"`
	Amount                    decimal.Decimal `json:"amount"`
	RemainingRefundableAmount decimal.Decimal `json:"remaining_refundable_amount"`
	Error                     *PaymentError   `json:"error,omitempty"`
}

// FailedRefund builds a failed refund result from err
func FailedRefund(err error) *RefundResult {
	return &RefundResult{
		Success: false,
		Status:  StatusFailed,
		Error:   NewPaymentError(err),
	}
}
