package paytabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-gateway-service/gateways"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

var cred = models.GatewayCredential{GatewayID: "paytabs", MerchantID: "87654", SecretKey: "SJN9-server-key"}

func request() *models.PaymentRequest {
	return &models.PaymentRequest{
		InvoiceID:     "INV-300",
		Amount:        decimal.RequireFromString("450"),
		Currency:      "sar",
		PaymentMethod: models.MethodPayTabs,
		Customer:      models.Customer{Name: "Noura", Email: "noura@example.com", Phone: "0501234567"},
		ReturnURL:     "https://clinic.example.com/pay/return",
		CallbackURL:   "https://clinic.example.com/pay/callback",
	}
}

func newAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: time.Second})
}

func TestChargeReturnsHostedPage(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payment/request", r.URL.Path)
		assert.Equal(t, "SJN9-server-key", r.Header.Get("authorization"))

		var body paymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 87654, body.ProfileID)
		assert.Equal(t, "sale", body.TranType)
		assert.Equal(t, "ecom", body.TranClass)
		assert.Equal(t, "INV-300", body.CartID)
		assert.Equal(t, "SAR", body.CartCurrency)
		assert.Equal(t, 450.0, body.CartAmount)
		assert.Equal(t, "noura@example.com", body.CustomerDetails.Email)
		assert.Equal(t, "https://clinic.example.com/pay/callback", body.Callback)
		assert.Equal(t, "https://clinic.example.com/pay/return", body.Return)

		w.Write([]byte(`{"tran_ref":"TST2112600123","cart_id":"INV-300","cart_currency":"SAR","cart_amount":"450.00","redirect_url":"https://secure.paytabs.sa/payment/page/ABC"}`))
	})

	resp, err := a.Charge(context.Background(), request(), cred)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequiresAction, resp.Status)
	assert.Equal(t, "TST2112600123", resp.TransactionID)
	require.NotNil(t, resp.ActionRequired)
	assert.Equal(t, "https://secure.paytabs.sa/payment/page/ABC", resp.ActionRequired.URL)
}

func TestResponseStatuses(t *testing.T) {
	cases := []struct {
		status string
		want   models.PaymentStatus
		code   payerr.Code
	}{
		{"A", models.StatusCompleted, ""},
		{"H", models.StatusPending, ""},
		{"P", models.StatusPending, ""},
		{"D", "", payerr.CardDeclined},
		{"E", "", payerr.ProcessingError},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/payment/query", r.URL.Path)
				w.Write([]byte(`{"tran_ref":"TST1","cart_amount":"450.00","cart_currency":"SAR","payment_result":{"response_status":"` + tc.status + `","response_message":"Issuer said so"}}`))
			})
			resp, err := a.QueryStatus(context.Background(), "TST1", cred)
			if tc.code != "" {
				assert.Equal(t, tc.code, payerr.CodeOf(err))
				assert.False(t, payerr.IsRetryable(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.Status)
		})
	}
}

func TestRefund(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body paymentRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refund", body.TranType)
		assert.Equal(t, "TST1", body.TranRef)
		assert.Equal(t, 100.0, body.CartAmount)
		assert.Equal(t, "Session cancelled", body.CartDescription)
		w.Write([]byte(`{"tran_ref":"TST-R-9","cart_amount":"100.00","cart_currency":"SAR","payment_result":{"response_status":"A","response_message":"Approved"}}`))
	})

	resp, err := a.Refund(context.Background(), gateways.RefundCall{
		TransactionID: "TST1", Amount: decimal.NewFromInt(100), Currency: "SAR", Reason: "Session cancelled",
	}, cred)
	require.NoError(t, err)
	assert.Equal(t, "TST-R-9", resp.RefundID)
	assert.Equal(t, "TST1", resp.TransactionID)
}

func TestErrorBodies(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":206,"message":"Currency not available","trace":"PMNT0403"}`))
	})
	_, err := a.Charge(context.Background(), request(), cred)
	pe := payerr.From(err)
	assert.Equal(t, payerr.ValidationError, pe.Code)
	assert.Equal(t, "Currency not available", pe.Message)
}

func TestMissingProfileID(t *testing.T) {
	a := New(Config{})
	_, err := a.Charge(context.Background(), request(), models.GatewayCredential{GatewayID: "paytabs"})
	assert.Equal(t, payerr.GatewayNotSupported, payerr.CodeOf(err))
}
