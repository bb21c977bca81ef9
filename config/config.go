package config

import (
	"os"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"payment-gateway-service/logging"
)

// Config holds application configuration
type Config struct {
	App struct {
		ServiceName string `env:"PAYMENT_SERVICE_NAME"`
		Port        string `env:"PORT"`
		Environment string `env:"PAYMENT_ENVIRONMENT"`
	}
	OTELEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogDevelopment bool   `env:"PAYMENT_LOG_DEVELOPMENT"`

	Retry struct {
		MaxAttempts     int    `env:"PAYMENT_RETRY_MAX_ATTEMPTS"`
		BaseDelay       string `env:"PAYMENT_RETRY_BASE_DELAY"`
		MaxDelay        string `env:"PAYMENT_RETRY_MAX_DELAY"`
		DisableFallback bool   `env:"PAYMENT_RETRY_DISABLE_FALLBACK"`
	}

	RateLimit struct {
		MaxAttempts int    `env:"PAYMENT_RATE_LIMIT_MAX_ATTEMPTS"`
		Window      string `env:"PAYMENT_RATE_LIMIT_WINDOW"`
		Backend     string `env:"PAYMENT_RATE_LIMIT_BACKEND"`
		RedisAddr   string `env:"PAYMENT_REDIS_ADDR"`
		RedisPass   string `env:"PAYMENT_REDIS_PASSWORD"`
		RedisDB     int    `env:"PAYMENT_REDIS_DB"`
	}

	Storage struct {
		Backend  string `env:"PAYMENT_STORAGE_BACKEND"`
		MongoURI string `env:"PAYMENT_MONGO_URI"`
		Database string `env:"PAYMENT_MONGO_DATABASE"`
	}

	CredentialSource  string `env:"PAYMENT_CREDENTIAL_SOURCE"`
	RoutingPolicyFile string `env:"PAYMENT_ROUTING_POLICY_FILE"`

	Mada struct {
		BaseURL string `env:"MADA_BASE_URL"`
		Timeout string `env:"MADA_TIMEOUT"`
		APIKey  string `env:"MADA_API_KEY"`
	}
	STCPay struct {
		BaseURL    string `env:"STCPAY_BASE_URL"`
		Timeout    string `env:"STCPAY_TIMEOUT"`
		MerchantID string `env:"STCPAY_MERCHANT_ID"`
		APIKey     string `env:"STCPAY_API_KEY"`
	}
	PayTabs struct {
		BaseURL   string `env:"PAYTABS_BASE_URL"`
		Timeout   string `env:"PAYTABS_TIMEOUT"`
		ProfileID string `env:"PAYTABS_PROFILE_ID"`
		ServerKey string `env:"PAYTABS_SERVER_KEY"`
	}
	Stripe struct {
		BaseURL        string `env:"STRIPE_BASE_URL"`
		Timeout        string `env:"STRIPE_TIMEOUT"`
		SecretKey      string `env:"STRIPE_SECRET_KEY"`
		PublishableKey string `env:"STRIPE_PUBLISHABLE_KEY"`
	}
	BankTransfer struct {
		BankName        string `env:"BANK_TRANSFER_BANK_NAME"`
		BankNameAr      string `env:"BANK_TRANSFER_BANK_NAME_AR"`
		IBAN            string `env:"BANK_TRANSFER_IBAN"`
		AccountHolder   string `env:"BANK_TRANSFER_ACCOUNT_HOLDER"`
		ProcessingHours int    `env:"BANK_TRANSFER_PROCESSING_HOURS"`
	}
}

// Load loads configuration from an optional .env file and the environment
func Load(path string) (*Config, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			logging.Warn("Error loading .env file", zap.String("path", path), zap.Error(err))
		}
	}

	cfg := &Config{}
	if _, err := env.UnmarshalFromEnviron(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	setString(&c.App.ServiceName, "payment-gateway-service")
	setString(&c.App.Port, "8081")
	setString(&c.App.Environment, "sandbox")
	setString(&c.OTELEndpoint, "localhost:4317")

	setInt(&c.Retry.MaxAttempts, 3)
	setString(&c.Retry.BaseDelay, "500ms")
	setString(&c.Retry.MaxDelay, "8s")

	setInt(&c.RateLimit.MaxAttempts, 5)
	setString(&c.RateLimit.Window, "10m")
	setString(&c.RateLimit.Backend, "memory")
	setString(&c.RateLimit.RedisAddr, "localhost:6379")

	setString(&c.Storage.Backend, "memory")
	setString(&c.Storage.MongoURI, "mongodb://localhost:27017")
	setString(&c.Storage.Database, "payments")

	setString(&c.CredentialSource, "env")

	setString(&c.Mada.Timeout, "15s")
	setString(&c.STCPay.Timeout, "15s")
	setString(&c.PayTabs.Timeout, "20s")
	setString(&c.Stripe.Timeout, "20s")
	setInt(&c.BankTransfer.ProcessingHours, 72)
}

// Duration parses a duration setting, falling back to def
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Production reports whether live gateway endpoints should be used
func (c *Config) Production() bool {
	return c.App.Environment == "production"
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
