// Package catalog holds the static configuration of every supported gateway.
package catalog

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"payment-gateway-service/models"
)

// Gateway identifiers
const (
	Mada         = "mada"
	STCPay       = "stc_pay"
	PayTabs      = "paytabs"
	Stripe       = "stripe"
	BankTransfer = "bank_transfer"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

var gateways = map[string]models.GatewayConfig{
	Mada: {
		ID:                  Mada,
		DisplayName:         models.LocalizedName{En: "mada", Ar: "مدى"},
		SupportedCurrencies: []string{"SAR"},
		MinAmount:           d("5"),
		MaxAmount:           d("50000"),
		Fee:                 models.FeeSchedule{Type: models.FeePercentage, Percentage: d("2.5"), Min: d("2"), Max: d("50")},
		PCICompliant:        true,
		Supports3DSecure:    true,
		SupportsRefund:      true,
		Kind:                models.KindCard,
	},
	STCPay: {
		ID:                  STCPay,
		DisplayName:         models.LocalizedName{En: "STC Pay", Ar: "إس تي سي باي"},
		SupportedCurrencies: []string{"SAR"},
		MinAmount:           d("1"),
		MaxAmount:           d("10000"),
		Fee:                 models.FeeSchedule{Type: models.FeeFlat, Flat: d("2")},
		PCICompliant:        true,
		SupportsRefund:      true,
		Kind:                models.KindWallet,
	},
	PayTabs: {
		ID:                  PayTabs,
		DisplayName:         models.LocalizedName{En: "PayTabs", Ar: "باي تابس"},
		SupportedCurrencies: []string{"SAR", "AED", "KWD", "BHD", "OMR", "QAR", "EGP", "USD", "EUR"},
		MinAmount:           d("1"),
		MaxAmount:           d("100000"),
		Fee:                 models.FeeSchedule{Type: models.FeePercentage, Percentage: d("2.75"), Min: d("1"), Max: d("100")},
		PCICompliant:        true,
		Supports3DSecure:    true,
		SupportsRefund:      true,
		HostedPage:          true,
		Kind:                models.KindCard,
	},
	Stripe: {
		ID:                  Stripe,
		DisplayName:         models.LocalizedName{En: "Stripe", Ar: "سترايب"},
		SupportedCurrencies: []string{"SAR", "USD", "EUR", "GBP", "AED", "KWD", "BHD", "OMR", "QAR", "EGP", "JOD"},
		MinAmount:           d("1"),
		MaxAmount:           d("999999"),
		Fee:                 models.FeeSchedule{Type: models.FeePercentage, Percentage: d("2.9"), Min: d("1"), Max: d("200")},
		PCICompliant:        true,
		Supports3DSecure:    true,
		SupportsRefund:      true,
		IdempotentRefunds:   true,
		Kind:                models.KindCard,
	},
	BankTransfer: {
		ID:                  BankTransfer,
		DisplayName:         models.LocalizedName{En: "Bank Transfer", Ar: "تحويل بنكي"},
		SupportedCurrencies: []string{"SAR"},
		MinAmount:           d("100"),
		MaxAmount:           d("1000000"),
		Fee:                 models.FeeSchedule{Type: models.FeeFlat, Flat: d("5")},
		Kind:                models.KindBank,
	},
}

// Get returns the configuration of gatewayID
func Get(gatewayID string) (models.GatewayConfig, bool) {
	cfg, ok := gateways[gatewayID]
	if !ok {
		return models.GatewayConfig{}, false
	}
	cfg.SupportedCurrencies = append([]string(nil), cfg.SupportedCurrencies...)
	return cfg, true
}

// IDs returns every gateway identifier in a stable order
func IDs() []string {
	ids := make([]string, 0, len(gateways))
	for id := range gateways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SupportsCurrency reports whether gatewayID accepts currency
func SupportsCurrency(gatewayID, currency string) bool {
	cfg, ok := gateways[gatewayID]
	if !ok {
		return false
	}
	currency = strings.ToUpper(currency)
	for _, c := range cfg.SupportedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// IsAmountValid reports whether amount lies within the gateway's [min, max] bounds
func IsAmountValid(gatewayID string, amount decimal.Decimal) bool {
	cfg, ok := gateways[gatewayID]
	if !ok || !amount.IsPositive() {
		return false
	}
	return amount.GreaterThanOrEqual(cfg.MinAmount) && amount.LessThanOrEqual(cfg.MaxAmount)
}

// GatewayForMethod returns the gateway a method is bound to. Scheme methods (visa,
// mastercard) are not bound to a single gateway and return false.
func GatewayForMethod(method models.PaymentMethod) (string, bool) {
	switch method {
	case models.MethodMada:
		return Mada, true
	case models.MethodSTCPay:
		return STCPay, true
	case models.MethodPayTabs:
		return PayTabs, true
	case models.MethodStripe:
		return Stripe, true
	case models.MethodBankTransfer:
		return BankTransfer, true
	}
	return "", false
}

// KindForMethod returns the payment data kind a method consumes
func KindForMethod(method models.PaymentMethod) (models.DataKind, bool) {
	switch method {
	case models.MethodVisa, models.MethodMastercard:
		return models.KindCard, true
	}
	id, ok := GatewayForMethod(method)
	if !ok {
		return "", false
	}
	return gateways[id].Kind, true
}
