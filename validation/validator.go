// Package validation checks payment requests before any gateway is contacted.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"payment-gateway-service/catalog"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	// Saudi mobile numbers: 05XXXXXXXX, 9665XXXXXXXX or +9665XXXXXXXX
	saudiMobilePattern = regexp.MustCompile(`^(05\d{8}|\+?9665\d{8})$`)
)

// ErrNilRequest is returned when Validate is called without a request
var ErrNilRequest = errors.New("validation: nil request")

// FieldError is a single failed check
type FieldError struct {
	Field     string `json:"field"`
	Message   string `json:"message"`
	MessageAr string `json:"message_ar"`
}

// Result collects every failed check in evaluation order
type Result struct {
	Valid  bool
	Errors []FieldError
}

func (r *Result) add(field, msg, msgAr string) {
	r.Valid = false
	r.Errors = append(r.Errors, FieldError{Field: field, Message: msg, MessageAr: msgAr})
}

// Err returns the VALIDATION_ERROR for an invalid result, nil otherwise
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	en := make([]string, 0, len(r.Errors))
	ar := make([]string, 0, len(r.Errors))
	for _, fe := range r.Errors {
		en = append(en, fe.Message)
		ar = append(ar, fe.MessageAr)
	}
	return payerr.Validation(strings.Join(en, "; "), strings.Join(ar, "؛ "))
}

// Validator runs the ordered request checks
type Validator struct {
	now func() time.Time
}

// New creates a Validator using the wall clock
func New() *Validator {
	return &Validator{now: time.Now}
}

// NewWithClock creates a Validator with a custom clock, used for expiry checks
func NewWithClock(now func() time.Time) *Validator {
	return &Validator{now: now}
}

// IsSaudiMobile reports whether phone is a Saudi mobile number
func IsSaudiMobile(phone string) bool {
	return saudiMobilePattern.MatchString(strings.ReplaceAll(phone, " ", ""))
}

// Validate checks req. It returns an error only for programmer misuse.
func (v *Validator) Validate(req *models.PaymentRequest) (*Result, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	res := &Result{Valid: true}

	if strings.TrimSpace(req.InvoiceID) == "" {
		res.add("invoice_id", "Invoice ID is required", "رقم الفاتورة مطلوب")
	}
	if !req.Amount.IsPositive() {
		res.add("amount", "Amount must be greater than zero", "يجب أن يكون المبلغ أكبر من صفر")
	}
	v.checkCurrency(req, res)

	if strings.TrimSpace(req.Customer.Name) == "" {
		res.add("customer.name", "Customer name is required", "اسم العميل مطلوب")
	}
	if !emailPattern.MatchString(req.Customer.Email) {
		res.add("customer.email", "Customer email is invalid", "البريد الإلكتروني للعميل غير صالح")
	}

	switch req.PaymentMethod {
	case models.MethodSTCPay:
		phone := req.Customer.Phone
		if req.PaymentData.Wallet != nil && req.PaymentData.Wallet.Phone != "" {
			phone = req.PaymentData.Wallet.Phone
		}
		if !IsSaudiMobile(phone) {
			res.add("phone", "Phone must be a Saudi mobile number (05XXXXXXXX)", "يجب أن يكون رقم الجوال سعودياً (05XXXXXXXX)")
		}
	case models.MethodBankTransfer:
		if !IsSaudiMobile(req.Customer.Phone) {
			res.add("customer.phone", "Phone must be a Saudi mobile number (05XXXXXXXX)", "يجب أن يكون رقم الجوال سعودياً (05XXXXXXXX)")
		}
	case models.MethodMada, models.MethodStripe, models.MethodVisa, models.MethodMastercard:
		if req.PaymentData.Token == "" {
			v.checkCard(req.PaymentData.Card, res)
		}
	}

	return res, nil
}

func (v *Validator) checkCurrency(req *models.PaymentRequest, res *Result) {
	currency := strings.ToUpper(req.Currency)
	if len(currency) != 3 {
		res.add("currency", "Currency must be an ISO 4217 code", "يجب أن تكون العملة رمز ISO 4217")
		return
	}
	if gatewayID, ok := catalog.GatewayForMethod(req.PaymentMethod); ok {
		if !catalog.SupportsCurrency(gatewayID, currency) {
			res.add("currency", "Currency "+currency+" is not supported by "+gatewayID, "العملة "+currency+" غير مدعومة لطريقة الدفع المختارة")
		}
		return
	}
	kind, ok := catalog.KindForMethod(req.PaymentMethod)
	if !ok {
		res.add("payment_method", "Unsupported payment method", "طريقة الدفع غير مدعومة")
		return
	}
	for _, id := range catalog.IDs() {
		cfg, _ := catalog.Get(id)
		if cfg.Kind == kind && catalog.SupportsCurrency(id, currency) {
			return
		}
	}
	res.add("currency", "Currency "+currency+" is not supported", "العملة "+currency+" غير مدعومة")
}

func (v *Validator) checkCard(card *models.CardData, res *Result) {
	if card == nil {
		res.add("payment_data.card", "Card details are required", "بيانات البطاقة مطلوبة")
		return
	}
	if !Luhn(card.Number) {
		res.add("card.number", "Card number is invalid", "رقم البطاقة غير صالح")
	}
	month, year, ok := ParseExpiry(card.ExpiryMonth, card.ExpiryYear)
	switch {
	case !ok:
		res.add("card.expiry", "Card expiry date is invalid", "تاريخ انتهاء البطاقة غير صالح")
	case Expired(month, year, v.now()):
		res.add("card.expiry", "Card has expired", "البطاقة منتهية الصلاحية")
	}
	if !ValidCVV(card.CVV, card.Number) {
		res.add("card.cvv", "Card security code is invalid", "رمز الأمان للبطاقة غير صالح")
	}
	if strings.TrimSpace(card.HolderName) == "" {
		res.add("card.holder_name", "Cardholder name is required", "اسم حامل البطاقة مطلوب")
	}
}

// ValidateRefund checks a refund request
func (v *Validator) ValidateRefund(req *models.RefundRequest) (*Result, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	res := &Result{Valid: true}
	if strings.TrimSpace(req.OriginalTransactionID) == "" {
		res.add("original_transaction_id", "Original transaction ID is required", "رقم العملية الأصلية مطلوب")
	}
	if !req.Amount.IsPositive() {
		res.add("amount", "Refund amount must be greater than zero", "يجب أن يكون مبلغ الاسترداد أكبر من صفر")
	}
	return res, nil
}
