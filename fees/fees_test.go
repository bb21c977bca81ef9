package fees

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payment-gateway-service/catalog"
	"payment-gateway-service/models"
)

func fee(t *testing.T, gatewayID string, amount int64) decimal.Decimal {
	t.Helper()
	f, err := CalculateFee(gatewayID, decimal.NewFromInt(amount))
	require.NoError(t, err)
	return f
}

func TestMadaPercentageFee(t *testing.T) {
	assert.True(t, fee(t, catalog.Mada, 1000).Equal(decimal.NewFromInt(25)))
}

func TestMadaFeeClampsToCeiling(t *testing.T) {
	assert.True(t, fee(t, catalog.Mada, 3000).Equal(decimal.NewFromInt(50)))
}

func TestMadaFeeClampsToFloor(t *testing.T) {
	assert.True(t, fee(t, catalog.Mada, 10).Equal(decimal.NewFromInt(2)))
}

func TestFlatFees(t *testing.T) {
	for _, amount := range []int64{1, 50, 999, 10000} {
		assert.True(t, fee(t, catalog.STCPay, amount).Equal(decimal.NewFromInt(2)), "amount %d", amount)
	}
	assert.True(t, fee(t, catalog.BankTransfer, 5000).Equal(decimal.NewFromInt(5)))
}

func TestFractionalFeeIsRounded(t *testing.T) {
	f := Calculate(models.FeeSchedule{
		Type:       models.FeePercentage,
		Percentage: decimal.RequireFromString("2.9"),
		Min:        decimal.NewFromInt(1),
	}, decimal.RequireFromString("123.45"))
	assert.Equal(t, "3.58", f.StringFixed(2))
}

func TestUnknownGateway(t *testing.T) {
	_, err := CalculateFee("cash", decimal.NewFromInt(10))
	assert.Error(t, err)
}
