package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"payment-gateway-service/credentials"
	"payment-gateway-service/gateways"
	"payment-gateway-service/gateways/mada"
	"payment-gateway-service/gateways/stcpay"
	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/retry"
)

func gatewayServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestCardholderSecretsStayOutOfLogs(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	t.Cleanup(func() { logging.SetLogger(nil) })

	madaCalls := 0
	madaURL := gatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		madaCalls++
		switch madaCalls {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"pay_declined","status":"failed","amount":100000,"currency":"SAR","source":{"message":"Insufficient funds"}}`))
		default:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":"pay_ok","status":"paid","amount":100000,"currency":"SAR"}`))
		}
	})
	stcURL := gatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/DirectPaymentAuthorize":
			w.Write([]byte(`{"DirectPaymentAuthorizeV4ResponseMessage":{"OtpReference":"otp-ref-5","STCPayPmtReference":"pmt-ref-5","ExpiryDuration":600}}`))
		case "/DirectPaymentConfirm":
			w.Write([]byte(`{"DirectPaymentConfirmV4ResponseMessage":{"STCPayRefNum":"STC-5","Amount":150,"PaymentStatus":2}}`))
		}
	})

	svc := NewPaymentService(Dependencies{
		Adapters: gateways.NewRegistry(
			mada.New(mada.Config{BaseURL: madaURL, Timeout: time.Second}),
			stcpay.New(stcpay.Config{BaseURL: stcURL, Timeout: time.Second}),
		),
		Credentials: credentials.NewRegistry(credentials.NewStaticStore(
			models.GatewayCredential{GatewayID: "mada", APIKey: "sk_test_mada", Active: true},
			models.GatewayCredential{GatewayID: "stc_pay", MerchantID: "61240001", APIKey: "stc-key", Active: true},
		), "sandbox", []string{"mada", "stc_pay"}),
		Retry: retry.New(retry.Config{MaxAttempts: 2, DisableFallback: true},
			retry.WithSleeper(retry.SleeperFunc(func(context.Context, time.Duration) error { return nil }))),
	})
	ctx := context.Background()

	card := madaRequest("1000")
	card.PaymentData.Card.CVV = "739"
	result, err := svc.ProcessPayment(ctx, card)
	require.NoError(t, err)
	assert.False(t, result.Success)
	result, err = svc.ProcessPayment(ctx, card)
	require.NoError(t, err)
	assert.True(t, result.Success)

	wallet := madaRequest("150")
	wallet.PaymentMethod = models.MethodSTCPay
	wallet.PaymentData = models.PaymentData{Wallet: &models.WalletData{Phone: "0551234567"}}
	result, err = svc.ProcessPayment(ctx, wallet)
	require.NoError(t, err)
	require.Equal(t, models.StatusRequiresAction, result.Status)

	wallet.PaymentData.Wallet.OTP = "482913"
	wallet.PaymentData.Wallet.OTPReference = result.ActionRequired.Reference
	wallet.PaymentData.Wallet.PaymentReference = result.TransactionID
	result, err = svc.ProcessPayment(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.NotZero(t, logs.Len())
	assert.NotEmpty(t, logs.FilterMessage("Retrying gateway call").All())
	for _, entry := range logs.All() {
		text := entry.Message + " " + fmt.Sprint(entry.ContextMap())
		for _, secret := range []string{"4111 1111 1111 1111", "4111111111111111", "739", "482913"} {
			assert.False(t, strings.Contains(text, secret), "%q logged in %q", secret, entry.Message)
		}
	}
}
