package credentials

import (
	"context"

	"payment-gateway-service/catalog"
	"payment-gateway-service/config"
	"payment-gateway-service/models"
)

// StaticStore serves a fixed credential set
type StaticStore struct {
	byGateway map[string][]models.GatewayCredential
}

// NewStaticStore indexes creds by gateway
func NewStaticStore(creds ...models.GatewayCredential) *StaticStore {
	s := &StaticStore{byGateway: make(map[string][]models.GatewayCredential)}
	for _, c := range creds {
		s.byGateway[c.GatewayID] = append(s.byGateway[c.GatewayID], c)
	}
	return s
}

// Select returns the credentials of gatewayID
func (s *StaticStore) Select(ctx context.Context, gatewayID string) ([]models.GatewayCredential, error) {
	return s.byGateway[gatewayID], nil
}

// FromConfig builds the credential set from environment configuration. Gateways whose
// keys are absent are left out, except bank transfer which has no keys.
func FromConfig(cfg *config.Config) *StaticStore {
	env := cfg.App.Environment
	var creds []models.GatewayCredential

	if cfg.Mada.APIKey != "" {
		creds = append(creds, models.GatewayCredential{
			GatewayID: catalog.Mada, APIKey: cfg.Mada.APIKey, Environment: env, Active: true,
		})
	}
	if cfg.STCPay.MerchantID != "" {
		creds = append(creds, models.GatewayCredential{
			GatewayID: catalog.STCPay, APIKey: cfg.STCPay.APIKey, MerchantID: cfg.STCPay.MerchantID,
			Environment: env, Active: true,
		})
	}
	if cfg.PayTabs.ServerKey != "" {
		creds = append(creds, models.GatewayCredential{
			GatewayID: catalog.PayTabs, SecretKey: cfg.PayTabs.ServerKey, MerchantID: cfg.PayTabs.ProfileID,
			Environment: env, Active: true,
			Extra: map[string]string{"profile_id": cfg.PayTabs.ProfileID, "server_key": cfg.PayTabs.ServerKey},
		})
	}
	if cfg.Stripe.SecretKey != "" {
		creds = append(creds, models.GatewayCredential{
			GatewayID: catalog.Stripe, SecretKey: cfg.Stripe.SecretKey, APIKey: cfg.Stripe.PublishableKey,
			Environment: env, Active: true,
			Extra: map[string]string{"publishable_key": cfg.Stripe.PublishableKey},
		})
	}
	// bank transfers need no secret, only the beneficiary account
	creds = append(creds, models.GatewayCredential{
		GatewayID: catalog.BankTransfer, Environment: env, Active: true,
		Extra: map[string]string{
			"bank_name":      cfg.BankTransfer.BankName,
			"bank_name_ar":   cfg.BankTransfer.BankNameAr,
			"iban":           cfg.BankTransfer.IBAN,
			"account_holder": cfg.BankTransfer.AccountHolder,
		},
	})
	return NewStaticStore(creds...)
}
