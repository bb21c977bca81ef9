package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"payment-gateway-service/logging"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
	"payment-gateway-service/service"
)

// PaymentHandler handles HTTP requests for payments
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// Register mounts the payment routes on r
func (h *PaymentHandler) Register(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/payments/process", h.ProcessPayment)
	api.POST("/payments/refund", h.ProcessRefund)
	api.GET("/payments/:id/status", h.PaymentStatus)
	api.GET("/payment-methods", h.PaymentMethods)
	api.GET("/gateways/:id", h.GatewayConfig)
	api.GET("/gateways/:id/amount-valid", h.AmountValid)
	api.GET("/gateways/:id/fee", h.ProcessingFee)
}

// ProcessPayment handles payment processing requests
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var req models.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err))
		return
	}

	result, err := h.paymentService.ProcessPayment(ctx, &req)
	if err != nil {
		logging.WithTraceContext(span).Error("Payment processing failed",
			zap.Error(err),
			zap.String("invoice_id", req.InvoiceID),
		)
		c.JSON(http.StatusBadRequest, badRequest(err))
		return
	}

	if result.Success {
		span.AddEvent("payment_processed_successfully")
	}
	c.JSON(statusOf(result.Error), result)
}

// ProcessRefund handles refund requests
func (h *PaymentHandler) ProcessRefund(c *gin.Context) {
	var req models.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err))
		return
	}

	result, err := h.paymentService.ProcessRefund(c.Request.Context(), &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err))
		return
	}
	c.JSON(statusOf(result.Error), result)
}

// PaymentStatus reports the gateway status of a transaction
func (h *PaymentHandler) PaymentStatus(c *gin.Context) {
	result, err := h.paymentService.GetPaymentStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest(err))
		return
	}
	c.JSON(statusOf(result.Error), result)
}

// PaymentMethods lists the gateways accepting the currency query parameter
func (h *PaymentHandler) PaymentMethods(c *gin.Context) {
	currency := strings.ToUpper(c.DefaultQuery("currency", "SAR"))
	methods := h.paymentService.GetSupportedPaymentMethods(currency)
	if methods == nil {
		methods = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"currency": currency, "methods": methods})
}

// GatewayConfig returns the static configuration of a gateway
func (h *PaymentHandler) GatewayConfig(c *gin.Context) {
	cfg, ok := h.paymentService.GetGatewayConfig(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, models.PaymentError{
			Code:      payerr.GatewayNotSupported,
			Message:   "Gateway not found",
			MessageAr: "بوابة الدفع غير موجودة",
		})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// AmountValid reports whether the amount query parameter is within the gateway's bounds
func (h *PaymentHandler) AmountValid(c *gin.Context) {
	amount, ok := amountParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, known := h.paymentService.GetGatewayConfig(id); !known {
		c.JSON(http.StatusNotFound, models.NewPaymentError(payerr.New(payerr.GatewayNotSupported, "", "")))
		return
	}
	c.JSON(http.StatusOK, gin.H{"gateway_id": id, "amount": amount, "valid": h.paymentService.IsAmountValid(id, amount)})
}

// ProcessingFee returns the fee a gateway charges for the amount query parameter
func (h *PaymentHandler) ProcessingFee(c *gin.Context) {
	amount, ok := amountParam(c)
	if !ok {
		return
	}
	id := c.Param("id")
	fee, err := h.paymentService.CalculateProcessingFee(id, amount)
	if err != nil {
		c.JSON(http.StatusNotFound, models.NewPaymentError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"gateway_id": id, "amount": amount, "fee": fee})
}

// HealthCheck handles health check requests
func (h *PaymentHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func amountParam(c *gin.Context) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.PaymentError{
			Code:      payerr.ValidationError,
			Message:   "amount must be a decimal number",
			MessageAr: "يجب أن يكون المبلغ رقماً",
		})
		return decimal.Zero, false
	}
	return amount, true
}

func badRequest(err error) *models.PaymentError {
	return &models.PaymentError{
		Code:      payerr.ValidationError,
		Message:   err.Error(),
		MessageAr: "الطلب غير صالح",
	}
}

// statusOf maps a result error to the HTTP status returned with it
func statusOf(e *models.PaymentError) int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Code {
	case payerr.ValidationError:
		return http.StatusBadRequest
	case payerr.RateLimitExceeded:
		return http.StatusTooManyRequests
	case payerr.TransactionNotFound:
		return http.StatusNotFound
	case payerr.DuplicateTransaction:
		return http.StatusConflict
	case payerr.CardDeclined:
		return http.StatusPaymentRequired
	case payerr.RefundNotSupported, payerr.GatewayNotSupported:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
