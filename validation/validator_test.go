package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

var fixedNow = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)

func cardRequest() *models.PaymentRequest {
	return &models.PaymentRequest{
		InvoiceID:     "INV-1001",
		Amount:        decimal.NewFromInt(1000),
		Currency:      "SAR",
		PaymentMethod: models.MethodMada,
		Customer:      models.Customer{Name: "Sara Ahmed", NameAr: "سارة أحمد", Email: "sara@example.com", Phone: "0551234567"},
		PaymentData: models.PaymentData{Card: &models.CardData{
			Number:      "4111 1111 1111 1111",
			ExpiryMonth: "03",
			ExpiryYear:  "26",
			CVV:         "123",
			HolderName:  "SARA AHMED",
		}},
	}
}

func validate(t *testing.T, req *models.PaymentRequest) *Result {
	t.Helper()
	res, err := NewWithClock(func() time.Time { return fixedNow }).Validate(req)
	require.NoError(t, err)
	return res
}

func fields(res *Result) []string {
	out := make([]string, 0, len(res.Errors))
	for _, fe := range res.Errors {
		out = append(out, fe.Field)
	}
	return out
}

func TestValidCardRequest(t *testing.T) {
	res := validate(t, cardRequest())
	assert.True(t, res.Valid, fields(res))
	assert.NoError(t, res.Err())
}

func TestLuhn(t *testing.T) {
	assert.True(t, Luhn("4111111111111111"))
	assert.True(t, Luhn("5588 4800 0000 0003"))
	assert.True(t, Luhn("378282246310005"))
	assert.False(t, Luhn("4111111111111112"))
	assert.False(t, Luhn("4111-1111-abcd-1111"))
	assert.False(t, Luhn("42"))
}

func TestInvalidLuhnIsValidationError(t *testing.T) {
	req := cardRequest()
	req.PaymentData.Card.Number = "4111111111111112"
	res := validate(t, req)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{"card.number"}, fields(res))
	assert.Equal(t, payerr.ValidationError, payerr.CodeOf(res.Err()))
}

func TestExpiry(t *testing.T) {
	req := cardRequest()
	req.PaymentData.Card.ExpiryMonth = "02"
	assert.Equal(t, []string{"card.expiry"}, fields(validate(t, req)))

	req.PaymentData.Card.ExpiryMonth = "13"
	assert.Equal(t, []string{"card.expiry"}, fields(validate(t, req)))

	req.PaymentData.Card.ExpiryMonth = "01"
	req.PaymentData.Card.ExpiryYear = "2027"
	assert.True(t, validate(t, req).Valid)
}

func TestCVVLength(t *testing.T) {
	req := cardRequest()
	req.PaymentData.Card.CVV = "1234"
	assert.Equal(t, []string{"card.cvv"}, fields(validate(t, req)))

	req.PaymentData.Card.Number = "378282246310005"
	assert.True(t, validate(t, req).Valid)

	req.PaymentData.Card.CVV = "123"
	assert.Equal(t, []string{"card.cvv"}, fields(validate(t, req)))
}

func TestChecksRunInOrder(t *testing.T) {
	req := cardRequest()
	req.InvoiceID = ""
	req.Amount = decimal.Zero
	req.Customer.Name = ""
	req.Customer.Email = "not-an-email"
	req.PaymentData.Card.HolderName = ""
	res := validate(t, req)
	assert.Equal(t, []string{"invoice_id", "amount", "customer.name", "customer.email", "card.holder_name"}, fields(res))

	pe := payerr.From(res.Err())
	assert.Contains(t, pe.Message, "Invoice ID is required")
	assert.Contains(t, pe.MessageAr, "رقم الفاتورة مطلوب")
}

func TestCurrencyMustMatchResolvedGateway(t *testing.T) {
	req := cardRequest()
	req.Currency = "USD"
	assert.Equal(t, []string{"currency"}, fields(validate(t, req)))

	req.PaymentMethod = models.MethodVisa
	assert.True(t, validate(t, req).Valid)

	req.Currency = "XYZ"
	assert.Equal(t, []string{"currency"}, fields(validate(t, req)))
}

func TestWalletPhoneFormat(t *testing.T) {
	req := cardRequest()
	req.PaymentMethod = models.MethodSTCPay
	req.PaymentData = models.PaymentData{Wallet: &models.WalletData{Phone: "+966551234567"}}
	assert.True(t, validate(t, req).Valid)

	req.PaymentData.Wallet.Phone = "0201234567"
	assert.Equal(t, []string{"phone"}, fields(validate(t, req)))
}

func TestBankTransferRequiresPhone(t *testing.T) {
	req := cardRequest()
	req.PaymentMethod = models.MethodBankTransfer
	req.PaymentData = models.PaymentData{}
	assert.True(t, validate(t, req).Valid)

	req.Customer.Phone = ""
	assert.Equal(t, []string{"customer.phone"}, fields(validate(t, req)))
}

func TestHostedPageAndTokensSkipCardChecks(t *testing.T) {
	req := cardRequest()
	req.PaymentMethod = models.MethodPayTabs
	req.PaymentData = models.PaymentData{}
	assert.True(t, validate(t, req).Valid)

	req = cardRequest()
	req.PaymentMethod = models.MethodStripe
	req.PaymentData = models.PaymentData{Token: "pm_card_visa"}
	assert.True(t, validate(t, req).Valid)
}

func TestMissingCard(t *testing.T) {
	req := cardRequest()
	req.PaymentData.Card = nil
	assert.Equal(t, []string{"payment_data.card"}, fields(validate(t, req)))
}

func TestNilRequestIsMisuse(t *testing.T) {
	_, err := New().Validate(nil)
	assert.ErrorIs(t, err, ErrNilRequest)
	_, err = New().ValidateRefund(nil)
	assert.ErrorIs(t, err, ErrNilRequest)
}

func TestValidateRefund(t *testing.T) {
	res, err := New().ValidateRefund(&models.RefundRequest{Amount: decimal.NewFromInt(-1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"original_transaction_id", "amount"}, fields(res))
}
