package main

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"payment-gateway-service/catalog"
	"payment-gateway-service/config"
	"payment-gateway-service/credentials"
	"payment-gateway-service/gateways"
	"payment-gateway-service/gateways/banktransfer"
	"payment-gateway-service/gateways/mada"
	"payment-gateway-service/gateways/paytabs"
	"payment-gateway-service/gateways/stcpay"
	"payment-gateway-service/gateways/stripe"
	"payment-gateway-service/handlers"
	"payment-gateway-service/logging"
	"payment-gateway-service/monitoring"
	"payment-gateway-service/ratelimit"
	"payment-gateway-service/retry"
	"payment-gateway-service/routing"
	"payment-gateway-service/service"
	"payment-gateway-service/transactions"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize structured logging
	err = logging.InitLogger(logging.Options{
		ServiceName:  cfg.App.ServiceName,
		Environment:  cfg.App.Environment,
		OTLPEndpoint: cfg.OTELEndpoint,
		Development:  cfg.LogDevelopment,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logging.Sync()
	defer func() {
		if err := logging.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()

	ctx := context.Background()

	// Initialize OpenTelemetry
	res, err := monitoring.NewResource(ctx, cfg.App.ServiceName, cfg.App.Environment)
	if err != nil {
		logging.Fatal("Failed to build telemetry resource", zap.Error(err))
	}

	tp, tracer, err := monitoring.InitTracer(ctx, res, cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	mp, err := monitoring.InitMeter(ctx, res, cfg.OTELEndpoint)
	if err != nil {
		logging.Fatal("Failed to initialize meter", zap.Error(err))
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			logging.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	var db *mongo.Database
	if cfg.Storage.Backend == "mongo" || cfg.CredentialSource == "mongo" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Storage.MongoURI))
		if err != nil {
			logging.Fatal("Failed to connect to mongo", zap.Error(err))
		}
		defer func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logging.Error("Error disconnecting from mongo", zap.Error(err))
			}
		}()
		db = client.Database(cfg.Storage.Database)
	}

	// Credentials load in the background; requests wait for them
	var credStore credentials.Store = credentials.FromConfig(cfg)
	if cfg.CredentialSource == "mongo" {
		if credStore, err = credentials.NewMongoStore(ctx, db); err != nil {
			logging.Fatal("Failed to initialize credential store", zap.Error(err))
		}
	}
	creds := credentials.NewRegistry(credStore, cfg.App.Environment, catalog.IDs())

	var store transactions.Store = transactions.NewMemoryStore()
	if cfg.Storage.Backend == "mongo" {
		if store, err = transactions.NewMongoStore(ctx, db); err != nil {
			logging.Fatal("Failed to initialize transaction store", zap.Error(err))
		}
	}

	window := config.Duration(cfg.RateLimit.Window, 10*time.Minute)
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.MaxAttempts, window)
	if cfg.RateLimit.Backend == "redis" {
		rl, err := ratelimit.NewRedisLimiter(ratelimit.RedisOptions{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPass,
			DB:       cfg.RateLimit.RedisDB,
			Max:      cfg.RateLimit.MaxAttempts,
			Window:   window,
		})
		if err != nil {
			logging.Fatal("Failed to initialize rate limiter", zap.Error(err))
		}
		defer rl.Close()
		limiter = rl
	}

	policy, err := routing.LoadPolicy(cfg.RoutingPolicyFile)
	if err != nil {
		logging.Fatal("Failed to load routing policy", zap.Error(err))
	}

	// Initialize service layer
	paymentService := service.NewPaymentService(service.Dependencies{
		Tracer:      tracer,
		Selector:    routing.NewSelector(policy),
		Adapters:    buildAdapters(cfg),
		Credentials: creds,
		Retry: retry.New(retry.Config{
			MaxAttempts:     cfg.Retry.MaxAttempts,
			BaseDelay:       config.Duration(cfg.Retry.BaseDelay, retry.DefaultBaseDelay),
			MaxDelay:        config.Duration(cfg.Retry.MaxDelay, retry.DefaultMaxDelay),
			DisableFallback: cfg.Retry.DisableFallback,
		}),
		Limiter:      limiter,
		Transactions: store,
	})

	// Initialize handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// Setup Gin router
	r := gin.Default()

	// OpenTelemetry middleware
	r.Use(otelgin.Middleware(cfg.App.ServiceName))
	r.Use(httpMetricsMiddleware())

	// Routes
	paymentHandler.Register(r)
	r.GET("/metrics", gin.WrapH(monitoring.MetricsHandler()))

	// Start server
	logging.Info("Payment gateway service starting",
		zap.String("port", cfg.App.Port),
		zap.String("environment", cfg.App.Environment),
		zap.Strings("routing_sar", policy.Priority("SAR")),
	)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		logging.Fatal("Failed to start server", zap.Error(err))
	}
}

// buildAdapters creates one adapter per catalog gateway. Empty base URLs select each
// adapter's default endpoint; mada, PayTabs and Stripe tell test traffic apart by key,
// STC Pay needs its test host outside production.
func buildAdapters(cfg *config.Config) gateways.Registry {
	return gateways.NewRegistry(
		mada.New(mada.Config{
			BaseURL: cfg.Mada.BaseURL,
			Timeout: config.Duration(cfg.Mada.Timeout, 15*time.Second),
		}),
		stcpay.New(stcpay.Config{
			BaseURL: cfg.STCPay.BaseURL,
			Timeout: config.Duration(cfg.STCPay.Timeout, 15*time.Second),
			Sandbox: !cfg.Production(),
		}),
		paytabs.New(paytabs.Config{
			BaseURL: cfg.PayTabs.BaseURL,
			Timeout: config.Duration(cfg.PayTabs.Timeout, 20*time.Second),
		}),
		stripe.New(stripe.Config{
			BaseURL: cfg.Stripe.BaseURL,
			Timeout: config.Duration(cfg.Stripe.Timeout, 20*time.Second),
		}),
		banktransfer.New(banktransfer.Config{
			BankName:        cfg.BankTransfer.BankName,
			BankNameAr:      cfg.BankTransfer.BankNameAr,
			IBAN:            cfg.BankTransfer.IBAN,
			AccountHolder:   cfg.BankTransfer.AccountHolder,
			ProcessingHours: cfg.BankTransfer.ProcessingHours,
		}),
	)
}

// httpMetricsMiddleware records HTTP request metrics
func httpMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// Process request
		c.Next()

		// Record duration
		duration := float64(time.Since(start).Milliseconds())

		monitoring.HTTPServerDuration.Record(c.Request.Context(), duration,
			metric.WithAttributes(
				attribute.String("http_method", c.Request.Method),
				attribute.String("http_route", c.FullPath()),
				attribute.String("http_status_code", strconv.Itoa(c.Writer.Status())),
			),
		)
	}
}
