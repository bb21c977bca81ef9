// Package stcpay implements the gateways.Adapter interface for the STC Pay mobile wallet.
//
// A charge is two calls: DirectPaymentAuthorize sends an OTP to the customer's phone and
// returns references; DirectPaymentConfirm completes the payment once the customer
// supplies the OTP. Amounts travel in major units.
package stcpay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
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

const (
	defaultBaseURL = "https://b2b.stcpay.com.sa/B2B.DirectPayment.WebApi/DirectPayment/V4"
	sandboxBaseURL = "https://b2btest.stcpay.com.sa/B2B.DirectPayment.WebApi/DirectPayment/V4"

	// PaymentStatus values reported by STC Pay
	statusPending   = 1
	statusPaid      = 2
	statusCancelled = 4
	statusExpired   = 5
)

// Config holds the endpoint settings of STC Pay. Unlike the key-scoped gateways, STC Pay
// runs its test merchants on a separate host, picked by Sandbox when BaseURL is empty.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Sandbox bool
}

// Adapter implements gateways.Adapter for STC Pay
type Adapter struct {
	baseURL string
	client  *gateways.Client
}

// New creates a new STC Pay adapter
func New(cfg Config) *Adapter {
	base := cfg.BaseURL
	switch {
	case base != "":
	case cfg.Sandbox:
		base = sandboxBaseURL
	default:
		base = defaultBaseURL
	}
	return &Adapter{
		baseURL: strings.TrimRight(base, "/"),
		client:  gateways.NewClient(catalog.STCPay, cfg.Timeout),
	}
}

// ID returns the gateway identifier
func (a *Adapter) ID() string { return catalog.STCPay }

type authorizeRequest struct {
	Message struct {
		BranchID         string  `json:"BranchID"`
		TellerID         string  `json:"TellerID"`
		DeviceID         string  `json:"DeviceID"`
		RefNum           string  `json:"RefNum"`
		BillNumber       string  `json:"BillNumber"`
		MobileNo         string  `json:"MobileNo"`
		Amount           float64 `json:"Amount"`
		MerchantNote     string  `json:"MerchantNote"`
		ExpiryPeriodType int     `json:"ExpiryPeriodType"`
		ExpiryPeriod     int     `json:"ExpiryPeriod"`
	} `json:"DirectPaymentAuthorizeV4RequestMessage"`
}

type authorizeResponse struct {
	Message struct {
		OtpReference       string `json:"OtpReference"`
		STCPayPmtReference string `json:"STCPayPmtReference"`
		ExpiryDuration     int    `json:"ExpiryDuration"`
	} `json:"DirectPaymentAuthorizeV4ResponseMessage"`
}

type confirmRequest struct {
	Message struct {
		OtpReference       string `json:"OtpReference"`
		OtpValue           string `json:"OtpValue"`
		STCPayPmtReference string `json:"STCPayPmtReference"`
		TokenReference     string `json:"TokenReference"`
		TokenizeYn         bool   `json:"TokenizeYn"`
	} `json:"DirectPaymentConfirmV4RequestMessage"`
}

type transaction struct {
	RefNum            string          `json:"RefNum"`
	STCPayRefNum      string          `json:"STCPayRefNum"`
	Amount            decimal.Decimal `json:"Amount"`
	PaymentDate       string          `json:"PaymentDate"`
	PaymentStatus     int             `json:"PaymentStatus"`
	PaymentStatusDesc string          `json:"PaymentStatusDesc"`
}

type confirmResponse struct {
	Message transaction `json:"DirectPaymentConfirmV4ResponseMessage"`
}

type refundRequest struct {
	Message struct {
		STCPayRefNum string  `json:"STCPayRefNum"`
		Amount       float64 `json:"Amount"`
	} `json:"RefundPaymentRequestMessage"`
}

type refundResponse struct {
	Message struct {
		STCPayRefNum string          `json:"STCPayRefNum"`
		Amount       decimal.Decimal `json:"Amount"`
	} `json:"RefundPaymentResponseMessage"`
}

type inquiryRequest struct {
	Message struct {
		STCPayRefNum string `json:"STCPayRefNum"`
	} `json:"PaymentInquiryV4RequestMessage"`
}

type inquiryResponse struct {
	Message struct {
		TransactionList []transaction `json:"TransactionList"`
	} `json:"PaymentInquiryV4ResponseMessage"`
}

type apiError struct {
	Code int    `json:"Code"`
	Text string `json:"Text"`
}

// Charge starts the OTP flow when no OTP is present, otherwise confirms the payment
func (a *Adapter) Charge(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*gateways.Response, error) {
	wallet := req.PaymentData.Wallet
	if wallet != nil && wallet.OTP != "" {
		if wallet.OTPReference == "" || wallet.PaymentReference == "" {
			return nil, payerr.Validation("OTP reference and payment reference are required to confirm",
				"مرجع رمز التحقق ومرجع الدفع مطلوبان لتأكيد العملية")
		}
		return a.confirm(ctx, req, cred)
	}
	return a.authorize(ctx, req, cred)
}

func (a *Adapter) authorize(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*gateways.Response, error) {
	phone := req.Customer.Phone
	if req.PaymentData.Wallet != nil && req.PaymentData.Wallet.Phone != "" {
		phone = req.PaymentData.Wallet.Phone
	}

	var body authorizeRequest
	body.Message.BranchID = orDefault(cred.ExtraValue("branch_id"), "1")
	body.Message.TellerID = orDefault(cred.ExtraValue("teller_id"), "1")
	body.Message.DeviceID = orDefault(cred.ExtraValue("device_id"), "1")
	body.Message.RefNum = req.InvoiceID
	body.Message.BillNumber = req.InvoiceID
	body.Message.MobileNo = InternationalMobile(phone)
	body.Message.Amount = req.Amount.Round(2).InexactFloat64()
	body.Message.MerchantNote = "Invoice " + req.InvoiceID
	body.Message.ExpiryPeriodType = 1 // minutes
	body.Message.ExpiryPeriod = 10

	logging.FromContext(ctx).Info("Requesting STC Pay OTP",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("phone", gateways.MaskPhone(phone)),
	)

	var out authorizeResponse
	raw, err := a.do(ctx, "authorize", "/DirectPaymentAuthorize", body, cred, &out)
	if err != nil {
		return nil, err
	}
	return &gateways.Response{
		Status:        models.StatusRequiresAction,
		TransactionID: out.Message.STCPayPmtReference,
		Amount:        req.Amount,
		ActionRequired: &models.ActionRequired{
			Type:      models.ActionOTPVerification,
			Reference: out.Message.OtpReference,
		},
		Raw: raw,
	}, nil
}

func (a *Adapter) confirm(ctx context.Context, req *models.PaymentRequest, cred models.GatewayCredential) (*gateways.Response, error) {
	wallet := req.PaymentData.Wallet
	var body confirmRequest
	body.Message.OtpReference = wallet.OTPReference
	body.Message.OtpValue = wallet.OTP
	body.Message.STCPayPmtReference = wallet.PaymentReference

	logging.FromContext(ctx).Info("Confirming STC Pay payment",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("otp_reference", wallet.OTPReference),
	)

	var out confirmResponse
	raw, err := a.do(ctx, "confirm", "/DirectPaymentConfirm", body, cred, &out)
	if err != nil {
		return nil, err
	}
	return toResponse(out.Message, raw)
}

// Refund refunds all or part of a paid STC Pay transaction
func (a *Adapter) Refund(ctx context.Context, call gateways.RefundCall, cred models.GatewayCredential) (*gateways.Response, error) {
	var body refundRequest
	body.Message.STCPayRefNum = call.TransactionID
	body.Message.Amount = call.Amount.Round(2).InexactFloat64()

	var out refundResponse
	raw, err := a.do(ctx, "refund", "/RefundPayment", body, cred, &out)
	if err != nil {
		return nil, err
	}
	return &gateways.Response{
		Status:        models.StatusCompleted,
		TransactionID: call.TransactionID,
		RefundID:      out.Message.STCPayRefNum,
		Amount:        out.Message.Amount,
		Raw:           raw,
	}, nil
}

// QueryStatus looks up a transaction by its STC Pay reference
func (a *Adapter) QueryStatus(ctx context.Context, transactionID string, cred models.GatewayCredential) (*gateways.Response, error) {
	var body inquiryRequest
	body.Message.STCPayRefNum = transactionID

	var out inquiryResponse
	raw, err := a.do(ctx, "status", "/PaymentInquiry", body, cred, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Message.TransactionList) == 0 {
		return nil, payerr.New(payerr.TransactionNotFound, "", "")
	}
	return toResponse(out.Message.TransactionList[0], raw)
}

func toResponse(t transaction, raw map[string]interface{}) (*gateways.Response, error) {
	resp := &gateways.Response{
		TransactionID: t.STCPayRefNum,
		Amount:        t.Amount,
		Raw:           raw,
	}
	switch t.PaymentStatus {
	case statusPaid:
		resp.Status = models.StatusCompleted
	case statusPending:
		resp.Status = models.StatusPending
	case statusCancelled, statusExpired:
		return nil, payerr.New(payerr.CardDeclined, orDefault(t.PaymentStatusDesc, "STC Pay payment was not completed"),
			"لم تكتمل عملية الدفع عبر إس تي سي باي")
	default:
		return nil, payerr.New(payerr.ProcessingError, fmt.Sprintf("unexpected STC Pay payment status %d", t.PaymentStatus), "")
	}
	return resp, nil
}

func (a *Adapter) do(ctx context.Context, operation, path string, body interface{}, cred models.GatewayCredential, out interface{}) (map[string]interface{}, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("stcpay: marshal %s request: %w", operation, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("stcpay: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-ClientCode", cred.MerchantID)
	if cred.APIKey != "" {
		httpReq.Header.Set("X-ApiKey", cred.APIKey)
	}

	status, respBody, err := a.client.Do(ctx, operation, httpReq)
	if err != nil {
		return nil, err
	}
	raw := gateways.DecodeRaw(respBody)

	if status < 200 || status > 299 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)
		return raw, gateways.StatusError(status, errorCode(apiErr.Code), apiErr.Text, "")
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return raw, fmt.Errorf("stcpay: decode %s response: %w", operation, err)
	}
	return raw, nil
}

// errorCode maps STC Pay business error codes. Unknown codes fall back to the HTTP status.
func errorCode(code int) payerr.Code {
	switch code {
	case 2003, 2005, 2007: // insufficient balance, wallet limit, customer rejected
		return payerr.CardDeclined
	case 2010, 2012: // invalid or expired OTP
		return payerr.ValidationError
	case 2020: // duplicate RefNum
		return payerr.DuplicateTransaction
	case 2030: // payment reference not found
		return payerr.TransactionNotFound
	}
	return ""
}

// InternationalMobile converts a local Saudi mobile number (05XXXXXXXX) into the
// 9665XXXXXXXX form STC Pay expects.
func InternationalMobile(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), "+")
	if strings.HasPrefix(phone, "05") {
		return "966" + phone[1:]
	}
	return phone
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
