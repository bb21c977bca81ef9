// Package paytabs implements the gateways.Adapter interface for the PayTabs hosted payment
// page. Card entry happens on the PayTabs page, so a successful charge request usually
// returns a redirect URL rather than a final status.
package paytabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payment-gateway-service/catalog"
	"payment-gateway-service/gateways"
	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

const defaultBaseURL = "https://secure.paytabs.sa"

// Config holds the endpoint settings of PayTabs
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Adapter implements gateways.Adapter for PayTabs
type Adapter struct {
	baseURL string
	client  *gateways.Client
}

// New creates a new PayTabs adapter
func New(cfg Config) *Adapter {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Adapter{
		baseURL: strings.TrimRight(base, "/"),
		client:  gateways.NewClient(catalog.PayTabs, cfg.Timeout),
	}
}

// ID returns the gateway identifier
func (a *Adapter) ID() string { return catalog.PayTabs }

type customerDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Street1 string `json:"street1,omitempty"`
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
	IP      string `json:"ip,omitempty"`
}

type paymentRequest struct {
	ProfileID       int              `json:"profile_id"`
	TranType        string           `json:"tran_type"`
	TranClass       string           `json:"tran_class"`
	TranRef         string           `json:"tran_ref,omitempty"`
	CartID          string           `json:"cart_id"`
	CartCurrency    string           `json:"cart_currency"`
	CartAmount      float64          `json:"cart_amount"`
	CartDescription string           `json:"cart_description"`
	CustomerDetails *customerDetails `json:"customer_details,omitempty"`
	Callback        string           `json:"callback,omitempty"`
	Return          string           `json:"return,omitempty"`
	HideShipping    bool             `json:"hide_shipping,omitempty"`
	PaymentToken    string           `json:"payment_token,omitempty"`
}

type queryRequest struct {
	ProfileID int    `json:"profile_id"`
	TranRef   string `json:"tran_ref"`
}

type paymentResponse struct {
	TranRef       string          `json:"tran_ref"`
	CartID        string          `json:"cart_id"`
	CartCurrency  string          `json:"cart_currency"`
	CartAmount    decimal.Decimal `json:"cart_amount"`
	RedirectURL   string          `json:"redirect_url"`
	PaymentResult *struct {
		ResponseStatus  string `json:"response_status"`
		ResponseCode    string `json:"response_code"`
		ResponseMessage string `json:"response_message"`
	} `json:"payment_result"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Charge creates a hosted-page sale. The response carries the page URL the customer
// must be redirected to; token charges may complete immediately.
func (a *Adapter) Charge(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*gateways.Response, error) {
	profileID, err := profile(cred)
	if err != nil {
		return nil, err
	}

	body := paymentRequest{
		ProfileID:       profileID,
		TranType:        "sale",
		TranClass:       "ecom",
		CartID:          req.InvoiceID,
		CartCurrency:    strings.ToUpper(req.Currency),
		CartAmount:      req.Amount.Round(gateways.Exponent(req.Currency)).InexactFloat64(),
		CartDescription: "Invoice " + req.InvoiceID,
		CustomerDetails: &customerDetails{
			Name:    req.Customer.Name,
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Street1: "N/A",
			City:    "Riyadh",
			Country: "SA",
		},
		Callback:     req.CallbackURL,
		Return:       req.ReturnURL,
		HideShipping: true,
		PaymentToken: req.PaymentData.Token,
	}
	if req.Metadata != nil {
		body.CustomerDetails.IP = req.Metadata.IPAddress
	}

	logging.FromContext(ctx).Info("Creating PayTabs payment page",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("currency", body.CartCurrency),
	)

	p, raw, err := a.do(ctx, "charge", "/payment/request", body, cred)
	if err != nil {
		return nil, err
	}
	if p.RedirectURL != "" {
		return &gateways.Response{
			Status:         models.StatusRequiresAction,
			TransactionID:  p.TranRef,
			Amount:         req.Amount,
			ActionRequired: &models.ActionRequired{Type: models.Action3DSecure, URL: p.RedirectURL},
			Raw:            raw,
		}, nil
	}
	return toResponse(p, raw)
}

// Refund issues a refund against the original transaction reference
func (a *Adapter) Refund(ctx context.Context, call gateways.RefundCall, cred models.GatewayCredential) (*gateways.Response, error) {
	profileID, err := profile(cred)
	if err != nil {
		return nil, err
	}
	reason := call.Reason
	if reason == "" {
		reason = "Refund " + call.TransactionID
	}
	body := paymentRequest{
		ProfileID:       profileID,
		TranType:        "refund",
		TranClass:       "ecom",
		TranRef:         call.TransactionID,
		CartID:          call.TransactionID + "-refund",
		CartCurrency:    strings.ToUpper(call.Currency),
		CartAmount:      call.Amount.Round(gateways.Exponent(call.Currency)).InexactFloat64(),
		CartDescription: reason,
	}

	p, raw, err := a.do(ctx, "refund", "/payment/request", body, cred)
	if err != nil {
		return nil, err
	}
	resp, err := toResponse(p, raw)
	if err != nil {
		return nil, err
	}
	resp.TransactionID = call.TransactionID
	resp.RefundID = p.TranRef
	resp.Amount = call.Amount
	return resp, nil
}

// QueryStatus looks up a transaction by tran_ref
func (a *Adapter) QueryStatus(ctx context.Context, transactionID string, cred models.GatewayCredential) (*gateways.Response, error) {
	profileID, err := profile(cred)
	if err != nil {
		return nil, err
	}
	p, raw, err := a.do(ctx, "status", "/payment/query", queryRequest{ProfileID: profileID, TranRef: transactionID}, cred)
	if err != nil {
		return nil, err
	}
	return toResponse(p, raw)
}

// toResponse maps payment_result.response_status: A authorized, H on hold, P pending,
// D declined, V voided, E error.
func toResponse(p *paymentResponse, raw map[string]interface{}) (*gateways.Response, error) {
	resp := &gateways.Response{
		TransactionID: p.TranRef,
		Amount:        p.CartAmount,
		Raw:           raw,
	}
	if p.PaymentResult == nil {
		resp.Status = models.StatusPending
		return resp, nil
	}
	msg := p.PaymentResult.ResponseMessage
	switch p.PaymentResult.ResponseStatus {
	case "A":
		resp.Status = models.StatusCompleted
	case "H", "P":
		resp.Status = models.StatusPending
	case "D", "V":
		return nil, payerr.New(payerr.CardDeclined, msg, "")
	case "E":
		return nil, payerr.New(payerr.ProcessingError, msg, "")
	default:
		return nil, payerr.New(payerr.ProcessingError, "unexpected PayTabs response status "+p.PaymentResult.ResponseStatus, "")
	}
	return resp, nil
}

func profile(cred models.GatewayCredential) (int, error) {
	id, err := strconv.Atoi(orDefault(cred.ExtraValue("profile_id"), cred.MerchantID))
	if err != nil {
		return 0, payerr.New(payerr.GatewayNotSupported, "PayTabs profile id is not configured", "")
	}
	return id, nil
}

func (a *Adapter) do(ctx context.Context, operation, path string, body interface{}, cred models.GatewayCredential) (*paymentResponse, map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("paytabs: marshal %s request: %w", operation, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("paytabs: create request: %w", err)
	}
	httpReq.Header.Set("authorization", orDefault(cred.ExtraValue("server_key"), orDefault(cred.SecretKey, cred.APIKey)))
	httpReq.Header.Set("Content-Type", "application/json")

	status, respBody, err := a.client.Do(ctx, operation, httpReq)
	if err != nil {
		return nil, nil, err
	}
	raw := gateways.DecodeRaw(respBody)

	if status < 200 || status > 299 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		return nil, raw, gateways.StatusError(status, errorCode(apiErr.Code), apiErr.Message, "")
	}

	var p paymentResponse
	if err := json.Unmarshal(respBody, &p); err != nil {
		return nil, raw, fmt.Errorf("paytabs: decode %s response: %w", operation, err)
	}
	return &p, raw, nil
}

func errorCode(code int) payerr.Code {
	switch code {
	case 201, 206, 210: // invalid field values
		return payerr.ValidationError
	case 212, 217: // duplicate cart or transaction
		return payerr.DuplicateTransaction
	case 113, 400: // transaction reference not found
		return payerr.TransactionNotFound
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
