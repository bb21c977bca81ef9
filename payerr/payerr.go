// Package payerr defines the stable error taxonomy shared by every payment operation.
// Each error carries English and Arabic text so callers can render either.
package payerr

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Code is a stable, language-independent error identifier
type Code string

const (
	ValidationError      Code = "VALIDATION_ERROR"
	GatewayNotSupported  Code = "GATEWAY_NOT_SUPPORTED"
	CardDeclined         Code = "CARD_DECLINED"
	TransactionNotFound  Code = "TRANSACTION_NOT_FOUND"
	DuplicateTransaction Code = "DUPLICATE_TRANSACTION"
	RefundNotSupported   Code = "REFUND_NOT_SUPPORTED"
	RateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
	ProcessingError      Code = "PROCESSING_ERROR"
)

type messages struct {
	en string
	ar string
}

var defaultMessages = map[Code]messages{
	ValidationError:      {"The payment request is invalid", "طلب الدفع غير صالح"},
	GatewayNotSupported:  {"No payment gateway supports this request", "لا توجد بوابة دفع تدعم هذا الطلب"},
	CardDeclined:         {"The card was declined by the issuer", "تم رفض البطاقة من قبل البنك المصدر"},
	TransactionNotFound:  {"Transaction not found", "لم يتم العثور على العملية"},
	DuplicateTransaction: {"This transaction has already been submitted", "تم إرسال هذه العملية مسبقاً"},
	RefundNotSupported:   {"Refunds are not supported for this payment method", "الاسترداد غير مدعوم لطريقة الدفع هذه"},
	RateLimitExceeded:    {"Too many payment attempts, please try again later", "محاولات دفع كثيرة، يرجى المحاولة لاحقاً"},
	ProcessingError:      {"The payment could not be processed, please try again", "تعذرت معالجة الدفع، يرجى المحاولة مرة أخرى"},
}

// Error is the canonical payment error
type Error struct {
	Code      Code
	Message   string
	MessageAr string
	// Retryable marks transient failures (timeouts, 5xx, temporarily unavailable)
	Retryable bool
	// HTTPStatus is the gateway's HTTP status when the error came from a gateway response
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an error with explicit messages. Empty messages fall back to the code defaults.
func New(code Code, message, messageAr string) *Error {
	def := defaultMessages[code]
	if message == "" {
		message = def.en
	}
	if messageAr == "" {
		messageAr = def.ar
	}
	return &Error{Code: code, Message: message, MessageAr: messageAr}
}

// Wrap builds an error with the default messages of code and records cause
func Wrap(code Code, cause error) *Error {
	e := New(code, "", "")
	e.Cause = cause
	return e
}

// Validation returns a VALIDATION_ERROR carrying the given messages
func Validation(message, messageAr string) *Error {
	return New(ValidationError, message, messageAr)
}

// Transient returns a retryable PROCESSING_ERROR
func Transient(message string, cause error) *Error {
	e := New(ProcessingError, message, "")
	e.Retryable = true
	e.Cause = cause
	return e
}

// DefaultMessages returns the English and Arabic default text for code
func DefaultMessages(code Code) (string, string) {
	m := defaultMessages[code]
	return m.en, m.ar
}

// From normalizes any error into *Error. Deadlines and network timeouts are retryable.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient("gateway request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient("gateway unreachable", err)
	}
	return Wrap(ProcessingError, err)
}

// IsRetryable reports whether err is a transient gateway failure
func IsRetryable(err error) bool {
	pe := From(err)
	return pe != nil && pe.Retryable
}

// CodeOf returns the taxonomy code of err
func CodeOf(err error) Code {
	if pe := From(err); pe != nil {
		return pe.Code
	}
	return ""
}
