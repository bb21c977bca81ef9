package stcpay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"payment-gateway-service/gateways"
	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

var cred = models.GatewayCredential{GatewayID: "stc_pay", MerchantID: "61240001", APIKey: "stc-key"}

func walletRequest(wallet *models.WalletData) *models.PaymentRequest {
	return &models.PaymentRequest{
		InvoiceID:     "INV-42",
		Amount:        decimal.RequireFromString("150.00"),
		Currency:      "SAR",
		PaymentMethod: models.MethodSTCPay,
		Customer:      models.Customer{Name: "Omar", Email: "omar@example.com", Phone: "0551234567"},
		PaymentData:   models.PaymentData{Wallet: wallet},
	}
}

func newAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Timeout: time.Second})
}

func TestChargeWithoutOTPRequestsVerification(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/DirectPaymentAuthorize", r.URL.Path)
		assert.Equal(t, "61240001", r.Header.Get("X-ClientCode"))

		var body authorizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "966551234567", body.Message.MobileNo)
		assert.Equal(t, 150.0, body.Message.Amount)
		assert.Equal(t, "INV-42", body.Message.RefNum)

		w.Write([]byte(`{"DirectPaymentAuthorizeV4ResponseMessage":{"OtpReference":"otp-ref-1","STCPayPmtReference":"pmt-ref-1","ExpiryDuration":600}}`))
	})

	resp, err := a.Charge(context.Background(), walletRequest(nil), cred)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRequiresAction, resp.Status)
	assert.Equal(t, "pmt-ref-1", resp.TransactionID)
	require.NotNil(t, resp.ActionRequired)
	assert.Equal(t, models.ActionOTPVerification, resp.ActionRequired.Type)
	assert.Equal(t, "otp-ref-1", resp.ActionRequired.Reference)
}

func TestChargeWithOTPConfirms(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/DirectPaymentConfirm", r.URL.Path)
		var body confirmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "1234", body.Message.OtpValue)
		assert.Equal(t, "otp-ref-1", body.Message.OtpReference)
		assert.Equal(t, "pmt-ref-1", body.Message.STCPayPmtReference)

		w.Write([]byte(`{"DirectPaymentConfirmV4ResponseMessage":{"RefNum":"INV-42","STCPayRefNum":"STC-998","Amount":150.00,"PaymentStatus":2,"PaymentStatusDesc":"Paid"}}`))
	})

	resp, err := a.Charge(context.Background(), walletRequest(&models.WalletData{
		OTP: "1234", OTPReference: "otp-ref-1", PaymentReference: "pmt-ref-1",
	}), cred)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, resp.Status)
	assert.Equal(t, "STC-998", resp.TransactionID)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(150)))
}

func TestConfirmWithoutReferencesIsInvalid(t *testing.T) {
	a := New(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := a.Charge(context.Background(), walletRequest(&models.WalletData{OTP: "1234"}), cred)
	assert.Equal(t, payerr.ValidationError, payerr.CodeOf(err))
}

func TestBusinessErrors(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"Code":2003,"Text":"Insufficient balance","Type":0}`))
	})
	_, err := a.Charge(context.Background(), walletRequest(nil), cred)
	pe := payerr.From(err)
	assert.Equal(t, payerr.CardDeclined, pe.Code)
	assert.Equal(t, "Insufficient balance", pe.Message)
}

func TestExpiredPaymentIsDeclined(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"DirectPaymentConfirmV4ResponseMessage":{"STCPayRefNum":"STC-1","Amount":150,"PaymentStatus":5,"PaymentStatusDesc":"Expired"}}`))
	})
	_, err := a.Charge(context.Background(), walletRequest(&models.WalletData{
		OTP: "1234", OTPReference: "o", PaymentReference: "p",
	}), cred)
	assert.Equal(t, payerr.CardDeclined, payerr.CodeOf(err))
	assert.False(t, payerr.IsRetryable(err))
}

func TestRefundAndInquiry(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/RefundPayment":
			var body refundRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "STC-998", body.Message.STCPayRefNum)
			assert.Equal(t, 50.5, body.Message.Amount)
			w.Write([]byte(`{"RefundPaymentResponseMessage":{"STCPayRefNum":"STC-R-1","Amount":50.50}}`))
		case "/PaymentInquiry":
			w.Write([]byte(`{"PaymentInquiryV4ResponseMessage":{"TransactionList":[{"STCPayRefNum":"STC-998","Amount":150,"PaymentStatus":1}]}}`))
		}
	})

	refund, err := a.Refund(context.Background(), gateways.RefundCall{
		TransactionID: "STC-998", Amount: decimal.RequireFromString("50.50"), Currency: "SAR",
	}, cred)
	require.NoError(t, err)
	assert.Equal(t, "STC-R-1", refund.RefundID)
	assert.True(t, refund.Amount.Equal(decimal.RequireFromString("50.5")))

	status, err := a.QueryStatus(context.Background(), "STC-998", cred)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, status.Status)
}

func TestInternationalMobile(t *testing.T) {
	assert.Equal(t, "966551234567", InternationalMobile("0551234567"))
	assert.Equal(t, "966551234567", InternationalMobile("+966551234567"))
	assert.Equal(t, "966551234567", InternationalMobile("966551234567"))
}

func TestEndpointSelection(t *testing.T) {
	assert.Equal(t, defaultBaseURL, New(Config{}).baseURL)
	assert.Equal(t, sandboxBaseURL, New(Config{Sandbox: true}).baseURL)
	assert.Equal(t, "http://stc.local", New(Config{BaseURL: "http://stc.local/", Sandbox: true}).baseURL)
}

func TestOTPStaysOutOfLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	confirms := 0
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/DirectPaymentAuthorize":
			w.Write([]byte(`{"DirectPaymentAuthorizeV4ResponseMessage":{"OtpReference":"otp-ref-7","STCPayPmtReference":"pmt-ref-7","ExpiryDuration":600}}`))
		case "/DirectPaymentConfirm":
			confirms++
			if confirms == 1 {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"Code":2012,"Text":"Invalid OTP","Type":0}`))
				return
			}
			w.Write([]byte(`{"DirectPaymentConfirmV4ResponseMessage":{"STCPayRefNum":"STC-7","Amount":150,"PaymentStatus":2}}`))
		}
	})

	_, err := a.Charge(context.Background(), walletRequest(nil), cred)
	require.NoError(t, err)
	wallet := &models.WalletData{OTP: "482913", OTPReference: "otp-ref-7", PaymentReference: "pmt-ref-7"}
	_, err = a.Charge(context.Background(), walletRequest(wallet), cred)
	require.Error(t, err)
	_, err = a.Charge(context.Background(), walletRequest(wallet), cred)
	require.NoError(t, err)

	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		text := entry.Message + " " + fmt.Sprint(entry.ContextMap())
		assert.False(t, strings.Contains(text, "482913"), "OTP logged in %q", entry.Message)
	}
}
