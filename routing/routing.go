// Package routing picks the gateway that should carry a payment. Selection is a pure
// function of the static gateway catalog, the routing policy and the request.
package routing

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"payment-gateway-service/catalog"
	"payment-gateway-service/models"
	"payment-gateway-service/payerr"
)

// Policy is the ordered list of gateways tried per currency. Currencies without an
// entry use Default.
type Policy struct {
	Currencies map[string][]string `yaml:"currencies"`
	Default    []string            `yaml:"default"`
}

// DefaultPolicy favors local schemes for SAR and sends every other currency to Stripe
func DefaultPolicy() Policy {
	return Policy{
		Currencies: map[string][]string{
			"SAR": {catalog.Mada, catalog.STCPay, catalog.PayTabs, catalog.Stripe, catalog.BankTransfer},
		},
		Default: []string{catalog.Stripe},
	}
}

// LoadPolicy reads a YAML policy file. An empty path yields DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("routing: read policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and checks a YAML policy
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("routing: parse policy: %w", err)
	}

	normalized := make(map[string][]string, len(p.Currencies))
	for cur, ids := range p.Currencies {
		if err := checkIDs(ids); err != nil {
			return Policy{}, err
		}
		normalized[strings.ToUpper(cur)] = ids
	}
	p.Currencies = normalized

	if len(p.Default) == 0 {
		p.Default = DefaultPolicy().Default
	}
	if err := checkIDs(p.Default); err != nil {
		return Policy{}, err
	}
	return p, nil
}

func checkIDs(ids []string) error {
	for _, id := range ids {
		if _, ok := catalog.Get(id); !ok {
			return fmt.Errorf("routing: unknown gateway %q in policy", id)
		}
	}
	return nil
}

// Priority returns the gateway order for currency
func (p Policy) Priority(currency string) []string {
	if ids, ok := p.Currencies[strings.ToUpper(currency)]; ok {
		return ids
	}
	return p.Default
}

// Selector chooses gateways according to a Policy
type Selector struct {
	policy Policy
}

// NewSelector creates a selector
func NewSelector(policy Policy) *Selector {
	return &Selector{policy: policy}
}

// Usable reports whether a gateway can carry traffic right now, typically whether it
// has an adapter and a credential. A nil Usable accepts every gateway.
type Usable func(gatewayID string) bool

func (u Usable) accepts(id string) bool {
	return u == nil || u(id)
}

// SelectOptimalGateway returns the gateway bound to method when it accepts currency and
// amount; otherwise the first gateway in the currency's priority list that consumes the
// same kind of payment data and accepts both. Gateways rejected by usable are skipped.
func (s *Selector) SelectOptimalGateway(currency string, amount decimal.Decimal, method models.PaymentMethod, usable Usable) (string, error) {
	kind, ok := catalog.KindForMethod(method)
	if !ok {
		return "", payerr.New(payerr.GatewayNotSupported,
			fmt.Sprintf("Payment method %q is not supported", method),
			"طريقة الدفع غير مدعومة")
	}

	if id, bound := catalog.GatewayForMethod(method); bound && eligible(id, kind, currency, amount) && usable.accepts(id) {
		return id, nil
	}
	if id, ok := s.Fallback(currency, amount, method, usable); ok {
		return id, nil
	}
	if _, ok := s.Fallback(currency, amount, method, nil); ok {
		return "", payerr.New(payerr.GatewayNotSupported,
			fmt.Sprintf("No configured gateway accepts %s %s for %s", amount.String(), strings.ToUpper(currency), method),
			"لا توجد بوابة دفع مهيأة لطريقة الدفع المختارة")
	}
	return "", payerr.Validation(
		fmt.Sprintf("No gateway accepts %s %s for %s", amount.String(), strings.ToUpper(currency), method),
		"لا توجد بوابة دفع تقبل هذا المبلغ أو العملة لطريقة الدفع المختارة")
}

// Fallback returns the next eligible and usable gateway for method, skipping exclude
func (s *Selector) Fallback(currency string, amount decimal.Decimal, method models.PaymentMethod, usable Usable, exclude ...string) (string, bool) {
	kind, ok := catalog.KindForMethod(method)
	if !ok {
		return "", false
	}
	skip := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		skip[id] = true
	}
	for _, id := range s.policy.Priority(currency) {
		if skip[id] {
			continue
		}
		if eligible(id, kind, currency, amount) && usable.accepts(id) {
			return id, true
		}
	}
	return "", false
}

// SupportedMethods lists the gateways accepting currency, in policy order followed by
// any remaining catalog gateways.
func (s *Selector) SupportedMethods(currency string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if !seen[id] && catalog.SupportsCurrency(id, currency) {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range s.policy.Priority(currency) {
		add(id)
	}
	for _, id := range catalog.IDs() {
		add(id)
	}
	return out
}

func eligible(id string, kind models.DataKind, currency string, amount decimal.Decimal) bool {
	cfg, ok := catalog.Get(id)
	if !ok || cfg.Kind != kind {
		return false
	}
	return catalog.SupportsCurrency(id, currency) && catalog.IsAmountValid(id, amount)
}
