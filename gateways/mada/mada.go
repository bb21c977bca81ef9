// Package mada implements the gateways.Adapter interface for the domestic mada card
// scheme, acquired through a Moyasar-style payments API. Amounts travel in halalas.
package mada

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

const defaultBaseURL = "https://api.moyasar.com"

// Config holds the endpoint settings of the mada acquirer
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Adapter implements gateways.Adapter for mada
type Adapter struct {
	baseURL string
	client  *gateways.Client
}

// New creates a new mada adapter
func New(cfg Config) *Adapter {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Adapter{
		baseURL: strings.TrimRight(base, "/"),
		client:  gateways.NewClient(catalog.Mada, cfg.Timeout),
	}
}

// ID returns the gateway identifier
func (a *Adapter) ID() string { return catalog.Mada }

type source struct {
	Type   string `json:"type"`
	Name   string `json:"name,omitempty"`
	Number string `json:"number,omitempty"`
	CVC    string `json:"cvc,omitempty"`
	Month  int    `json:"month,omitempty"`
	Year   int    `json:"year,omitempty"`
	Token  string `json:"token,omitempty"`
}

type paymentRequest struct {
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Source      source            `json:"source"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type payment struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Refunded int64  `json:"refunded"`
	Currency string `json:"currency"`
	Source   struct {
		Type           string `json:"type"`
		Company        string `json:"company"`
		Message        string `json:"message"`
		TransactionURL string `json:"transaction_url"`
	} `json:"source"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Charge creates a mada payment. Initiated payments that carry a transaction URL need
// a 3-D Secure redirect before they complete.
func (a *Adapter) Charge(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*gateways.Response, error) {
	src := source{Type: "creditcard"}
	switch {
	case req.PaymentData.Token != "":
		src = source{Type: "token", Token: req.PaymentData.Token}
	case req.PaymentData.Card != nil:
		card := req.PaymentData.Card
		month, _ := strconv.Atoi(card.ExpiryMonth)
		year, _ := strconv.Atoi(card.ExpiryYear)
		if year < 100 {
			year += 2000
		}
		src.Name = card.HolderName
		src.Number = strings.NewReplacer(" ", "", "-", "").Replace(card.Number)
		src.CVC = card.CVV
		src.Month = month
		src.Year = year
	default:
		return nil, payerr.Validation("Card details are required", "بيانات البطاقة مطلوبة")
	}

	callback := req.CallbackURL
	if callback == "" {
		callback = req.ReturnURL
	}
	body := paymentRequest{
		Amount:      gateways.ToMinor(req.Amount, req.Currency),
		Currency:    strings.ToUpper(req.Currency),
		Description: "Invoice " + req.InvoiceID,
		CallbackURL: callback,
		Source:      src,
		Metadata:    map[string]string{"invoice_id": req.InvoiceID},
	}

	logger := logging.FromContext(ctx)
	if req.PaymentData.Card != nil {
		logger = logger.With(zap.String("card", gateways.MaskCard(req.PaymentData.Card.Number)))
	}
	logger.Info("Submitting mada payment",
		zap.String("invoice_id", req.InvoiceID),
		zap.Int64("amount_halalas", body.Amount),
	)

	p, raw, err := a.do(ctx, "charge", http.MethodPost, "/v1/payments", body, cred)
	if err != nil {
		return nil, err
	}
	return a.toResponse(p, raw)
}

// Refund refunds all or part of a paid mada payment
func (a *Adapter) Refund(ctx context.Context, call gateways.RefundCall, cred models.GatewayCredential) (*gateways.Response, error) {
	body := map[string]int64{"amount": gateways.ToMinor(call.Amount, call.Currency)}
	p, raw, err := a.do(ctx, "refund", http.MethodPost, "/v1/payments/"+call.TransactionID+"/refund", body, cred)
	if err != nil {
		return nil, err
	}
	if p.Status != "refunded" && p.Status != "paid" {
		return nil, payerr.New(payerr.ProcessingError, "mada refund rejected with status "+p.Status, "")
	}
	return &gateways.Response{
		Status:        models.StatusCompleted,
		TransactionID: p.ID,
		RefundID:      fmt.Sprintf("%s-refund-%d", p.ID, p.Refunded),
		Amount:        call.Amount,
		Raw:           raw,
	}, nil
}

// QueryStatus fetches a mada payment
func (a *Adapter) QueryStatus(ctx context.Context, transactionID string, cred models.GatewayCredential) (*gateways.Response, error) {
	p, raw, err := a.do(ctx, "status", http.MethodGet, "/v1/payments/"+transactionID, nil, cred)
	if err != nil {
		return nil, err
	}
	return a.toResponse(p, raw)
}

func (a *Adapter) toResponse(p *payment, raw map[string]interface{}) (*gateways.Response, error) {
	resp := &gateways.Response{
		TransactionID: p.ID,
		Amount:        gateways.FromMinor(p.Amount, p.Currency),
		Raw:           raw,
	}
	switch p.Status {
	case "paid", "captured", "authorized", "refunded":
		resp.Status = models.StatusCompleted
	case "initiated":
		if p.Source.TransactionURL != "" {
			resp.Status = models.StatusRequiresAction
			resp.ActionRequired = &models.ActionRequired{Type: models.Action3DSecure, URL: p.Source.TransactionURL}
		} else {
			resp.Status = models.StatusPending
		}
	case "failed", "voided":
		return nil, payerr.New(payerr.CardDeclined, p.Source.Message, "")
	default:
		return nil, payerr.New(payerr.ProcessingError, "unexpected mada payment status "+p.Status, "")
	}
	return resp, nil
}

func (a *Adapter) do(ctx context.Context, operation, method, path string, body interface{}, cred models.GatewayCredential) (*payment, map[string]interface{}, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("mada: marshal %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("mada: create request: %w", err)
	}
	httpReq.SetBasicAuth(cred.APIKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	status, respBody, err := a.client.Do(ctx, operation, httpReq)
	if err != nil {
		return nil, nil, err
	}
	raw := gateways.DecodeRaw(respBody)

	if status < 200 || status > 299 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		var code payerr.Code
		switch apiErr.Type {
		case "card_error", "payment_declined":
			code = payerr.CardDeclined
		case "duplicate_transaction":
			code = payerr.DuplicateTransaction
		case "invalid_request_error":
			if status != http.StatusNotFound {
				code = payerr.ValidationError
			}
		}
		return nil, raw, gateways.StatusError(status, code, apiErr.Message, "")
	}

	var p payment
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, raw, fmt.Errorf("mada: decode %s response: %w", operation, err)
	}
	return &p, raw, nil
}
