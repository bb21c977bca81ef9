package models

import "github.com/shopspring/decimal"

// GatewayCredential is one credential set loaded from the credential store
type GatewayCredential struct {
	GatewayID   string            `json:"gateway_id" bson:"gatewayId"`
	APIKey      string            `json:"-" bson:"apiKey"`
	SecretKey   string            `json:"-" bson:"secretKey"`
	MerchantID  string            `json:"merchant_id" bson:"merchantId"`
	Environment string            `json:"environment" bson:"environment"`
	Active      bool              `json:"active" bson:"active"`
	Extra       map[string]string `json:"-" bson:"extra,omitempty"`
}

// ExtraValue returns a gateway-specific credential field
func (c GatewayCredential) ExtraValue(key string) string {
	if c.Extra == nil {
		return ""
	}
	return c.Extra[key]
}

// LocalizedName is a bilingual display name
type LocalizedName struct {
	En string `json:"en"`
	Ar string `json:"ar"`
}

// FeeType selects how a fee schedule is applied
type FeeType string

const (
	FeePercentage FeeType = "percentage"
	FeeFlat       FeeType = "flat"
)

// FeeSchedule is a gateway's processing fee rule. Percentage is expressed in percent
// (2.5 means 2.5%).
type FeeSchedule struct {
	Type       FeeType         `json:"type"`
	Percentage decimal.Decimal `json:"percentage,omitempty"`
	Min        decimal.Decimal `json:"min,omitempty"`
	Max        decimal.Decimal `json:"max,omitempty"`
	Flat       decimal.Decimal `json:"flat,omitempty"`
}

// DataKind groups gateways by the payment data they consume
type DataKind string

const (
	KindCard   DataKind = "card"
	KindWallet DataKind = "wallet"
	KindBank   DataKind = "bank"
)

// GatewayConfig is the static description of a gateway
type GatewayConfig struct {
	ID                  string          `json:"id"`
	DisplayName         LocalizedName   `json:"display_name"`
	SupportedCurrencies []string        `json:"supported_currencies"`
	MinAmount           decimal.Decimal `json:"min_amount"`
	MaxAmount           decimal.Decimal `json:"max_amount"`
	Fee                 FeeSchedule     `json:"fee"`
	PCICompliant        bool            `json:"pci_compliant"`
	Supports3DSecure    bool            `json:"supports_3d_secure"`
	SupportsRefund      bool            `json:"supports_refund"`
	// IdempotentRefunds marks gateways that deduplicate refund retries by key
	IdempotentRefunds   bool            `json:"idempotent_refunds"`
	HostedPage          bool            `json:"hosted_page"`
	Kind                DataKind        `json:"kind"`
}
