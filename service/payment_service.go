package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payment-gateway-service/catalog"
	"payment-gateway-service/credentials"
	"payment-gateway-service/fees"
	"payment-gateway-service/gateways"
	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/monitoring"
	"payment-gateway-service/payerr"
	"payment-gateway-service/ratelimit"
	"payment-gateway-service/retry"
	"payment-gateway-service/routing"
	"payment-gateway-service/transactions"
	"payment-gateway-service/validation"
)

// Stages of a payment, recorded as span events
const (
	StageValidating      = "VALIDATING"
	StageGatewaySelected = "GATEWAY_SELECTED"
	StageFeeCalculated   = "FEE_CALCULATED"
	StageCharging        = "CHARGING"
)

// CredentialSource resolves the credential of a gateway
type CredentialSource interface {
	Get(ctx context.Context, gatewayID string) (models.GatewayCredential, error)
	Configured(ctx context.Context, gatewayID string) bool
}

// Dependencies are the collaborators of PaymentService
type Dependencies struct {
	Tracer       trace.Tracer
	Validator    *validation.Validator
	Selector     *routing.Selector
	Adapters     gateways.Registry
	Credentials  CredentialSource
	Retry        *retry.Controller
	Limiter      ratelimit.Limiter
	Transactions transactions.Store
}

// PaymentService orchestrates validation, routing, charging and recording of payments
type PaymentService struct {
	tracer       trace.Tracer
	validator    *validation.Validator
	selector     *routing.Selector
	adapters     gateways.Registry
	credentials  CredentialSource
	retry        *retry.Controller
	limiter      ratelimit.Limiter
	transactions transactions.Store
}

// NewPaymentService creates a new payment service. Nil optional collaborators get
// in-memory defaults.
func NewPaymentService(deps Dependencies) *PaymentService {
	s := &PaymentService{
		tracer:       deps.Tracer,
		validator:    deps.Validator,
		selector:     deps.Selector,
		adapters:     deps.Adapters,
		credentials:  deps.Credentials,
		retry:        deps.Retry,
		limiter:      deps.Limiter,
		transactions: deps.Transactions,
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("payment-gateway-service")
	}
	if s.validator == nil {
		s.validator = validation.New()
	}
	if s.selector == nil {
		s.selector = routing.NewSelector(routing.DefaultPolicy())
	}
	if s.retry == nil {
		s.retry = retry.New(retry.Config{})
	}
	if s.transactions == nil {
		s.transactions = transactions.NewMemoryStore()
	}
	if s.adapters == nil {
		s.adapters = gateways.Registry{}
	}
	if s.credentials == nil {
		s.credentials = credentials.NewRegistry(credentials.NewStaticStore(), "", nil)
	}
	return s
}

// ProcessPayment validates, routes and charges req. Failures are reported in the
// result; the error is only set for a nil request.
func (s *PaymentService) ProcessPayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "process_payment")
	defer span.End()

	if req == nil {
		return nil, validation.ErrNilRequest
	}

	span.SetAttributes(
		attribute.String("payment.invoice_id", req.InvoiceID),
		attribute.String("payment.method", string(req.PaymentMethod)),
		attribute.String("payment.currency", strings.ToUpper(req.Currency)),
		attribute.String("payment.amount", req.Amount.String()),
	)

	logger := logging.WithTraceContext(span)
	logger.Info("Processing payment",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("amount", req.Amount.String()),
		zap.String("currency", req.Currency),
		zap.String("payment_method", string(req.PaymentMethod)),
	)

	span.AddEvent(StageValidating)
	res, err := s.validator.Validate(req)
	if err != nil {
		return nil, err
	}
	if !res.Valid {
		logger.Warn("Payment request rejected", zap.Int("errors", len(res.Errors)), zap.Error(res.Err()))
		return s.failPayment(ctx, span, req, "", res.Err()), nil
	}

	if s.limiter != nil {
		allowed, err := s.limiter.TryAcquire(ctx, ratelimit.Key(req.Customer))
		if err != nil {
			logger.Warn("Rate limiter unavailable, allowing payment", zap.Error(err))
		} else if !allowed {
			monitoring.RateLimitRejections.Add(ctx, 1,
				metric.WithAttributes(attribute.String("payment_method", string(req.PaymentMethod))),
			)
			return s.failPayment(ctx, span, req, "", payerr.New(payerr.RateLimitExceeded, "", "")), nil
		}
	}

	// estimated on the method's own gateway; routing may replace it below
	fee := decimal.Zero
	feeGateway, bound := catalog.GatewayForMethod(req.PaymentMethod)
	if bound {
		fee, _ = fees.CalculateFee(feeGateway, req.Amount)
	}
	span.AddEvent(StageFeeCalculated, trace.WithAttributes(attribute.String("fee", fee.String())))

	usable := s.usable(ctx)
	gatewayID, err := s.selector.SelectOptimalGateway(req.Currency, req.Amount, req.PaymentMethod, usable)
	if err != nil {
		return s.failPayment(ctx, span, req, "", err), nil
	}
	span.AddEvent(StageGatewaySelected, trace.WithAttributes(attribute.String("gateway", gatewayID)))

	span.AddEvent(StageCharging)
	fallback := func(exhausted string) (string, bool) {
		return s.selector.Fallback(req.Currency, req.Amount, req.PaymentMethod, usable, exhausted)
	}
	outcome, err := s.retry.Execute(ctx, gatewayID, fallback, func(ctx context.Context, id string) (*gateways.Response, error) {
		adapter, _ := s.adapters.Get(id)
		cred, err := s.credentials.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return adapter.Charge(ctx, req, cred)
	})
	if err != nil {
		return s.failPayment(ctx, span, req, outcome.GatewayID, err), nil
	}

	resp := outcome.Response
	if !bound || outcome.GatewayID != feeGateway {
		fee, _ = fees.CalculateFee(outcome.GatewayID, req.Amount)
	}

	result := &models.PaymentResult{
		Success:         resp.Status.Successful(),
		Status:          resp.Status,
		TransactionID:   resp.TransactionID,
		GatewayID:       outcome.GatewayID,
		ProcessingFee:   fee,
		GatewayResponse: resp.Raw,
		ActionRequired:  resp.ActionRequired,
	}

	// the OTP step of a wallet payment is confirmed under a new reference; only the
	// confirmation is recorded
	otpStep := resp.ActionRequired != nil && resp.ActionRequired.Type == models.ActionOTPVerification
	if resp.TransactionID != "" && !otpStep {
		err := s.transactions.Save(ctx, transactions.Record{
			TransactionID: resp.TransactionID,
			GatewayID:     outcome.GatewayID,
			InvoiceID:     req.InvoiceID,
			Amount:        req.Amount,
			Currency:      strings.ToUpper(req.Currency),
			Status:        resp.Status,
			ProcessingFee: fee,
		})
		if err != nil {
			logger.Error("Failed to record transaction", zap.String("transaction_id", resp.TransactionID), zap.Error(err))
		}
	}

	attrs := metric.WithAttributes(
		attribute.String("gateway", outcome.GatewayID),
		attribute.String("payment_method", string(req.PaymentMethod)),
		attribute.String("status", string(resp.Status)),
	)
	monitoring.PaymentCounter.Add(ctx, 1, attrs)
	monitoring.PaymentAmount.Record(ctx, req.Amount.InexactFloat64(),
		metric.WithAttributes(
			attribute.String("gateway", outcome.GatewayID),
			attribute.String("currency", strings.ToUpper(req.Currency)),
		),
	)

	span.SetAttributes(
		attribute.String("payment.gateway", outcome.GatewayID),
		attribute.String("payment.transaction_id", resp.TransactionID),
		attribute.String("payment.status", string(resp.Status)),
		attribute.Int("payment.attempts", len(outcome.Attempts)),
	)
	logger.Info("Payment submitted",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("gateway", outcome.GatewayID),
		zap.String("transaction_id", resp.TransactionID),
		zap.String("status", string(resp.Status)),
		zap.Int("attempts", len(outcome.Attempts)),
		zap.Bool("fallback", outcome.UsedFallback),
	)
	return result, nil
}

// usable accepts gateways that have both an adapter and a credential
func (s *PaymentService) usable(ctx context.Context) routing.Usable {
	return func(id string) bool {
		if _, ok := s.adapters.Get(id); !ok {
			return false
		}
		return s.credentials.Configured(ctx, id)
	}
}

func (s *PaymentService) failPayment(ctx context.Context, span trace.Span, req *models.PaymentRequest, gatewayID string, err error) *models.PaymentResult {
	pe := payerr.From(err)
	result := models.FailedResult(pe)
	result.GatewayID = gatewayID

	monitoring.PaymentCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gateway", gatewayID),
			attribute.String("payment_method", string(req.PaymentMethod)),
			attribute.String("status", string(models.StatusFailed)),
			attribute.String("error_code", string(pe.Code)),
		),
	)
	span.SetStatus(codes.Error, string(pe.Code))
	span.SetAttributes(
		attribute.String("payment.status", string(models.StatusFailed)),
		attribute.String("payment.error_code", string(pe.Code)),
	)
	logging.WithTraceContext(span).Warn("Payment failed",
		zap.String("invoice_id", req.InvoiceID),
		zap.String("gateway", gatewayID),
		zap.String("error_code", string(pe.Code)),
		zap.Error(err),
	)
	return result
}

// ProcessRefund refunds all or part of a recorded transaction. The refunded total is
// reserved before the gateway call and released if the gateway refuses, so concurrent
// refunds can never exceed the charged amount. Every attempt of one refund carries the
// same idempotency key; on gateways that cannot deduplicate by key a transient failure
// is not retried and the reservation is kept, since the refund may have gone through.
func (s *PaymentService) ProcessRefund(ctx context.Context, req *models.RefundRequest) (*models.RefundResult, error) {
	ctx, span := s.tracer.Start(ctx, "process_refund")
	defer span.End()

	res, err := s.validator.ValidateRefund(req)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("refund.transaction_id", req.OriginalTransactionID),
		attribute.String("refund.amount", req.Amount.String()),
	)
	logger := logging.WithTraceContext(span)

	if !res.Valid {
		return s.failRefund(ctx, span, "", res.Err()), nil
	}

	rec, err := s.transactions.Get(ctx, req.OriginalTransactionID)
	if err != nil {
		return s.failRefund(ctx, span, "", storeError(err)), nil
	}

	cfg, ok := catalog.Get(rec.GatewayID)
	if !ok || !cfg.SupportsRefund {
		return s.failRefund(ctx, span, rec.GatewayID, payerr.New(payerr.RefundNotSupported, "", "")), nil
	}
	if rec.Status != models.StatusCompleted {
		return s.failRefund(ctx, span, rec.GatewayID, payerr.Validation(
			"Only completed payments can be refunded",
			"يمكن استرداد المدفوعات المكتملة فقط")), nil
	}
	if req.Amount.GreaterThan(rec.Refundable()) {
		return s.failRefund(ctx, span, rec.GatewayID, payerr.Validation(
			"Refund amount exceeds the remaining refundable amount of "+rec.Refundable().StringFixed(2),
			"مبلغ الاسترداد يتجاوز المبلغ المتبقي القابل للاسترداد")), nil
	}
	adapter, ok := s.adapters.Get(rec.GatewayID)
	if !ok {
		return s.failRefund(ctx, span, rec.GatewayID, payerr.New(payerr.GatewayNotSupported, "", "")), nil
	}

	reserved, err := s.transactions.RecordRefund(ctx, rec.TransactionID, req.Amount)
	if err != nil {
		return s.failRefund(ctx, span, rec.GatewayID, storeError(err)), nil
	}

	call := gateways.RefundCall{
		TransactionID:  rec.TransactionID,
		Amount:         req.Amount,
		Currency:       rec.Currency,
		Reason:         req.Reason,
		ReasonAr:       req.ReasonAr,
		IdempotencyKey: "refund-" + uuid.NewString(),
	}
	span.SetAttributes(attribute.String("refund.idempotency_key", call.IdempotencyKey))

	// set when the last gateway failure leaves the refund's fate unknown
	ambiguous := false
	outcome, err := s.retry.WithRetry(ctx, rec.GatewayID, func(ctx context.Context, id string) (*gateways.Response, error) {
		cred, err := s.credentials.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		resp, err := adapter.Refund(ctx, call, cred)
		ambiguous = payerr.IsRetryable(err)
		if ambiguous && !cfg.IdempotentRefunds {
			return nil, payerr.Wrap(payerr.ProcessingError, err)
		}
		return resp, err
	})
	if err != nil && ambiguous {
		logger.Warn("Refund outcome unknown, keeping reservation",
			zap.String("transaction_id", rec.TransactionID),
			zap.String("idempotency_key", call.IdempotencyKey),
			zap.String("amount", req.Amount.String()),
			zap.Error(err),
		)
		return s.failRefund(ctx, span, rec.GatewayID, err), nil
	}
	if err != nil {
		if _, rerr := s.transactions.RecordRefund(ctx, rec.TransactionID, req.Amount.Neg()); rerr != nil {
			logger.Error("Failed to release refund reservation",
				zap.String("transaction_id", rec.TransactionID),
				zap.Error(rerr),
			)
		}
		return s.failRefund(ctx, span, rec.GatewayID, err), nil
	}

	monitoring.RefundCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gateway", rec.GatewayID),
			attribute.String("status", string(outcome.Response.Status)),
		),
	)
	logger.Info("Refund processed",
		zap.String("transaction_id", rec.TransactionID),
		zap.String("refund_id", outcome.Response.RefundID),
		zap.String("amount", req.Amount.String()),
	)
	return &models.RefundResult{
		Success:                   true,
		RefundID:                  outcome.Response.RefundID,
		Status:                    outcome.Response.Status,
		Amount:                    req.Amount,
		RemainingRefundableAmount: reserved.Refundable(),
	}, nil
}

func (s *PaymentService) failRefund(ctx context.Context, span trace.Span, gatewayID string, err error) *models.RefundResult {
	pe := payerr.From(err)
	monitoring.RefundCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("gateway", gatewayID),
			attribute.String("status", string(models.StatusFailed)),
			attribute.String("error_code", string(pe.Code)),
		),
	)
	span.SetStatus(codes.Error, string(pe.Code))
	logging.WithTraceContext(span).Warn("Refund failed",
		zap.String("gateway", gatewayID),
		zap.String("error_code", string(pe.Code)),
		zap.Error(err),
	)
	return models.FailedRefund(pe)
}

// GetPaymentStatus queries the gateway that carried transactionID
func (s *PaymentService) GetPaymentStatus(ctx context.Context, transactionID string) (*models.PaymentResult, error) {
	ctx, span := s.tracer.Start(ctx, "get_payment_status")
	defer span.End()
	span.SetAttributes(attribute.String("payment.transaction_id", transactionID))
	logger := logging.WithTraceContext(span)

	if strings.TrimSpace(transactionID) == "" {
		return models.FailedResult(payerr.Validation("Transaction ID is required", "رقم العملية مطلوب")), nil
	}

	rec, err := s.transactions.Get(ctx, transactionID)
	if err != nil {
		return models.FailedResult(storeError(err)), nil
	}
	adapter, ok := s.adapters.Get(rec.GatewayID)
	if !ok {
		return models.FailedResult(payerr.New(payerr.GatewayNotSupported, "", "")), nil
	}

	outcome, err := s.retry.WithRetry(ctx, rec.GatewayID, func(ctx context.Context, id string) (*gateways.Response, error) {
		cred, err := s.credentials.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return adapter.QueryStatus(ctx, transactionID, cred)
	})
	if err != nil {
		result := models.FailedResult(err)
		result.TransactionID = transactionID
		result.GatewayID = rec.GatewayID
		result.ProcessingFee = rec.ProcessingFee
		if payerr.CodeOf(err) == payerr.CardDeclined {
			s.updateStatus(ctx, logger, transactionID, rec.Status, models.StatusFailed)
		}
		return result, nil
	}

	resp := outcome.Response
	s.updateStatus(ctx, logger, transactionID, rec.Status, resp.Status)
	return &models.PaymentResult{
		Success:         resp.Status.Successful(),
		Status:          resp.Status,
		TransactionID:   transactionID,
		GatewayID:       rec.GatewayID,
		ProcessingFee:   rec.ProcessingFee,
		GatewayResponse: resp.Raw,
		ActionRequired:  resp.ActionRequired,
	}, nil
}

func (s *PaymentService) updateStatus(ctx context.Context, logger *zap.Logger, transactionID string, from, to models.PaymentStatus) {
	if from == to {
		return
	}
	if err := s.transactions.UpdateStatus(ctx, transactionID, to); err != nil {
		logger.Error("Failed to update transaction status", zap.String("transaction_id", transactionID), zap.Error(err))
	}
}

// GetSupportedPaymentMethods lists the gateways that accept currency
func (s *PaymentService) GetSupportedPaymentMethods(currency string) []string {
	return s.selector.SupportedMethods(currency)
}

// GetGatewayConfig returns the static configuration of gatewayID
func (s *PaymentService) GetGatewayConfig(gatewayID string) (models.GatewayConfig, bool) {
	return catalog.Get(gatewayID)
}

// IsAmountValid reports whether amount is within gatewayID's bounds
func (s *PaymentService) IsAmountValid(gatewayID string, amount decimal.Decimal) bool {
	return catalog.IsAmountValid(gatewayID, amount)
}

// CalculateProcessingFee returns the fee gatewayID charges for amount
func (s *PaymentService) CalculateProcessingFee(gatewayID string, amount decimal.Decimal) (decimal.Decimal, error) {
	fee, err := fees.CalculateFee(gatewayID, amount)
	if err != nil {
		return decimal.Zero, payerr.New(payerr.GatewayNotSupported, err.Error(), "")
	}
	return fee, nil
}

func storeError(err error) error {
	switch {
	case errors.Is(err, transactions.ErrNotFound):
		return payerr.New(payerr.TransactionNotFound, "", "")
	case errors.Is(err, transactions.ErrRefundExceedsTotal):
		return payerr.Validation("Refund amount exceeds the remaining refundable amount",
			"مبلغ الاسترداد يتجاوز المبلغ المتبقي القابل للاسترداد")
	}
	return payerr.Wrap(payerr.ProcessingError, err)
}
