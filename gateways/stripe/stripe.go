// Package stripe implements the gateways.Adapter interface for Stripe PaymentIntents.
// Requests are form encoded and amounts travel in the currency's minor unit.
package stripe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"payment-gateway-service/catalog"
	"payment-gateway-service/gateways"
	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

const defaultBaseURL = "https://api.stripe.com"

// Config holds the endpoint settings of Stripe
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Adapter implements gateways.Adapter for Stripe
type Adapter struct {
	baseURL string
	client  *gateways.Client
}

// New creates a new Stripe adapter
func New(cfg Config) *Adapter {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Adapter{
		baseURL: strings.TrimRight(base, "/"),
		client:  gateways.NewClient(catalog.Stripe, cfg.Timeout),
	}
}

// ID returns the gateway identifier
func (a *Adapter) ID() string { return catalog.Stripe }

type paymentIntent struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	NextAction *struct {
		Type          string `json:"type"`
		RedirectToURL struct {
			URL string `json:"url"`
		} `json:"redirect_to_url"`
	} `json:"next_action"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type refund struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentIntent string `json:"payment_intent"`
}

type apiError struct {
	Error struct {
		Type        string `json:"type"`
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"error"`
}

// Charge creates and confirms a PaymentIntent in one call
func (a *Adapter) Charge(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*gateways.Response, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(gateways.ToMinor(req.Amount, req.Currency), 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("confirm", "true")
	form.Set("description", "Invoice "+req.InvoiceID)
	form.Set("receipt_email", req.Customer.Email)
	form.Set("metadata[invoice_id]", req.InvoiceID)
	if req.ReturnURL != "" {
		form.Set("return_url", req.ReturnURL)
	}

	logger := logging.FromContext(ctx)
	switch {
	case req.PaymentData.Token != "":
		form.Set("payment_method", req.PaymentData.Token)
	case req.PaymentData.Card != nil:
		card := req.PaymentData.Card
		form.Set("payment_method_data[type]", "card")
		form.Set("payment_method_data[card][number]", strings.NewReplacer(" ", "", "-", "").Replace(card.Number))
		form.Set("payment_method_data[card][exp_month]", card.ExpiryMonth)
		form.Set("payment_method_data[card][exp_year]", card.ExpiryYear)
		form.Set("payment_method_data[card][cvc]", card.CVV)
		form.Set("payment_method_data[billing_details][name]", card.HolderName)
		logger = logger.With(zap.String("card", gateways.MaskCard(card.Number)))
	default:
		return nil, payerr.Validation("Card details or a payment method token are required",
			"بيانات البطاقة أو رمز طريقة الدفع مطلوبة")
	}

	logger.Info("Creating Stripe payment intent",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("currency", req.Currency),
	)

	var pi paymentIntent
	raw, err := a.do(ctx, "charge", http.MethodPost, "/v1/payment_intents", form, IdempotencyKey(req), cred, &pi)
	if err != nil {
		return nil, err
	}
	return toResponse(&pi, raw)
}

// Refund refunds all or part of a PaymentIntent
func (a *Adapter) Refund(ctx context.Context, call gateways.RefundCall, cred models.GatewayCredential) (*gateways.Response, error) {
	form := url.Values{}
	form.Set("payment_intent", call.TransactionID)
	form.Set("amount", strconv.FormatInt(gateways.ToMinor(call.Amount, call.Currency), 10))
	form.Set("reason", "requested_by_customer")
	if call.Reason != "" {
		form.Set("metadata[reason]", call.Reason)
	}

	var r refund
	raw, err := a.do(ctx, "refund", http.MethodPost, "/v1/refunds", form, call.IdempotencyKey, cred, &r)
	if err != nil {
		return nil, err
	}
	resp := &gateways.Response{
		TransactionID: call.TransactionID,
		RefundID:      r.ID,
		Amount:        gateways.FromMinor(r.Amount, call.Currency),
		Raw:           raw,
	}
	switch r.Status {
	case "succeeded":
		resp.Status = models.StatusCompleted
	case "pending", "requires_action":
		resp.Status = models.StatusPending
	default:
		return nil, payerr.New(payerr.ProcessingError, "Stripe refund "+r.Status, "")
	}
	return resp, nil
}

// QueryStatus retrieves a PaymentIntent
func (a *Adapter) QueryStatus(ctx context.Context, transactionID string, cred models.GatewayCredential) (*gateways.Response, error) {
	var pi paymentIntent
	raw, err := a.do(ctx, "status", http.MethodGet, "/v1/payment_intents/"+url.PathEscape(transactionID), nil, "", cred, &pi)
	if err != nil {
		return nil, err
	}
	return toResponse(&pi, raw)
}

func toResponse(pi *paymentIntent, raw map[string]interface{}) (*gateways.Response, error) {
	resp := &gateways.Response{
		TransactionID: pi.ID,
		Amount:        gateways.FromMinor(pi.Amount, pi.Currency),
		Raw:           raw,
	}
	switch pi.Status {
	case "succeeded", "requires_capture":
		resp.Status = models.StatusCompleted
	case "processing":
		resp.Status = models.StatusPending
	case "requires_action", "requires_confirmation":
		resp.Status = models.StatusRequiresAction
		action := &models.ActionRequired{Type: models.Action3DSecure}
		if pi.NextAction != nil {
			action.URL = pi.NextAction.RedirectToURL.URL
		}
		resp.ActionRequired = action
	case "requires_payment_method", "canceled":
		msg := ""
		if pi.LastPaymentError != nil {
			msg = pi.LastPaymentError.Message
		}
		return nil, payerr.New(payerr.CardDeclined, msg, "")
	default:
		return nil, payerr.New(payerr.ProcessingError, "unexpected Stripe payment intent status "+pi.Status, "")
	}
	return resp, nil
}

// IdempotencyKey returns the Stripe idempotency key of a charge. A caller supplied key
// wins. Otherwise the key covers the invoice together with the amount, currency and
// payment instrument, so retries of one submission collapse while a second attempt
// with another card is a new charge.
func IdempotencyKey(req *models.PaymentRequest) string {
	if req.IdempotencyKey != "" {
		return req.IdempotencyKey
	}

	h := sha256.New()
	parts := []string{req.InvoiceID, req.Amount.String(), strings.ToUpper(req.Currency), string(req.PaymentMethod), req.PaymentData.Token}
	if card := req.PaymentData.Card; card != nil {
		number := strings.NewReplacer(" ", "", "-", "").Replace(card.Number)
		if len(number) > 4 {
			number = number[len(number)-4:]
		}
		parts = append(parts, number, card.ExpiryMonth, card.ExpiryYear, card.HolderName)
	}
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "pay-" + req.InvoiceID + "-" + hex.EncodeToString(h.Sum(nil))[:16]
}

func (a *Adapter) do(ctx context.Context, operation, method, path string, form url.Values, idempotencyKey string, cred models.GatewayCredential, out interface{}) (map[string]interface{}, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("stripe: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+orDefault(cred.SecretKey, cred.APIKey))
	if form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if idempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", idempotencyKey)
	}

	status, respBody, err := a.client.Do(ctx, operation, httpReq)
	if err != nil {
		return nil, err
	}
	raw := gateways.DecodeRaw(respBody)

	if status < 200 || status > 299 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		return raw, gateways.StatusError(status, errorCode(apiErr), apiErr.Error.Message, "")
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return raw, fmt.Errorf("stripe: decode %s response: %w", operation, err)
	}
	return raw, nil
}

func errorCode(e apiError) payerr.Code {
	switch {
	case e.Error.Type == "card_error":
		return payerr.CardDeclined
	case e.Error.Type == "idempotency_error":
		return payerr.DuplicateTransaction
	case e.Error.Code == "resource_missing":
		return payerr.TransactionNotFound
	case e.Error.Type == "invalid_request_error":
		return payerr.ValidationError
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
