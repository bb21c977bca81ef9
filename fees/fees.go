// Package fees computes gateway processing fees. Everything here is pure.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"payment-gateway-service/catalog"
	"payment-gateway-service/models"
)

var hundred = decimal.NewFromInt(100)

// Calculate applies schedule to amount. Percentage fees are clamped to [Min, Max];
// a zero Max means no ceiling.
func Calculate(schedule models.FeeSchedule, amount decimal.Decimal) decimal.Decimal {
	switch schedule.Type {
	case models.FeeFlat:
		return schedule.Flat.Round(2)
	case models.FeePercentage:
		fee := amount.Mul(schedule.Percentage).Div(hundred)
		if fee.LessThan(schedule.Min) {
			fee = schedule.Min
		}
		if schedule.Max.IsPositive() && fee.GreaterThan(schedule.Max) {
			fee = schedule.Max
		}
		return fee.Round(2)
	}
	return decimal.Zero
}

// CalculateFee returns the processing fee gatewayID charges for amount
func CalculateFee(gatewayID string, amount decimal.Decimal) (decimal.Decimal, error) {
	cfg, ok := catalog.Get(gatewayID)
	if !ok {
		return decimal.Zero, fmt.Errorf("fees: unknown gateway %q", gatewayID)
	}
	return Calculate(cfg.Fee, amount), nil
}
