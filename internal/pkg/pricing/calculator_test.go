package pricing

import (
	"errors"
	"testing"

	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "expected %s, got %s", want, got.String())
}

func TestCalculate(t *testing.T) {
	noTax := DefaultPolicy()
	noTax.TaxRate = decimal.Zero

	tests := []struct {
		name   string
		policy Policy
		rate   string
		hours  string
		base   string
		tax    string
		fee    string
		total  string
	}{
		{
			name:   "street two hours without tax",
			policy: noTax,
			rate:   "1.25", hours: "2",
			base: "2.50", tax: "0", fee: "0.37", total: "2.87",
		},
		{
			name:   "street two hours with default tax",
			policy: DefaultPolicy(),
			rate:   "1.25", hours: "2",
			base: "2.50", tax: "0.20", fee: "0.38", total: "3.08",
		},
		{
			name:   "half hour rounds base half up",
			policy: DefaultPolicy(),
			rate:   "1.25", hours: "0.5",
			base: "0.63", tax: "0.05", fee: "0.32", total: "1.00",
		},
		{
			name:   "garage full day",
			policy: DefaultPolicy(),
			rate:   "1.00", hours: "24",
			base: "24.00", tax: "1.92", fee: "1.05", total: "26.97",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc := NewCalculator(tt.policy, nil)

			cost, err := calc.Calculate(d(tt.rate), d(tt.hours))
			require.NoError(t, err)

			assertMoney(t, tt.base, cost.BaseCost)
			assertMoney(t, tt.tax, cost.TaxAmount)
			assertMoney(t, tt.fee, cost.ProcessingFee)
			assertMoney(t, tt.total, cost.TotalCost)
			assertMoney(t, cost.TotalCost.String(),
				cost.BaseCost.Add(cost.TaxAmount).Add(cost.ProcessingFee))
		})
	}
}

func TestCalculateTotalIsSumOfParts(t *testing.T) {
	calc := NewCalculator(DefaultPolicy(), nil)

	for _, rate := range []string{"0.01", "0.99", "1.00", "1.25", "3.33", "7.77"} {
		for _, hours := range []string{"0.1", "0.25", "0.5", "1", "1.5", "2.75", "3.3333", "12"} {
			cost, err := calc.Calculate(d(rate), d(hours))
			require.NoError(t, err)

			sum := cost.BaseCost.Add(cost.TaxAmount).Add(cost.ProcessingFee)
			assert.Truef(t, sum.Equal(cost.TotalCost), "rate %s hours %s: %s != %s", rate, hours, sum, cost.TotalCost)
			assert.True(t, cost.BaseCost.Equal(cost.BaseCost.Round(2)))
		}
	}
}

func TestCalculateRejectsNonPositiveInput(t *testing.T) {
	calc := NewCalculator(DefaultPolicy(), nil)

	tests := []struct {
		name  string
		rate  string
		hours string
	}{
		{"zero hours", "1.25", "0"},
		{"negative hours", "1.25", "-1"},
		{"zero rate", "0", "1"},
		{"negative rate", "-1.25", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := calc.Calculate(d(tt.rate), d(tt.hours))
			require.Error(t, err)
			assert.True(t, errors.Is(err, entity.ErrInvalidInput))
		})
	}
}

func TestRateFor(t *testing.T) {
	table := DefaultRateTable()

	assertMoney(t, "1.25", table.RateFor(entity.LocationStreet))
	assertMoney(t, "1.00", table.RateFor(entity.LocationGarage))
	assertMoney(t, "1.00", table.RateFor(entity.LocationLot))
	assertMoney(t, "1.25", table.RateFor(entity.LocationMeter))
	assertMoney(t, "1.25", table.RateFor(entity.LocationType("HELIPAD")))
}

func TestRateForZone(t *testing.T) {
	calc := NewCalculator(DefaultPolicy(), nil)

	withRate := &entity.ParkingZone{LocationType: entity.LocationGarage, HourlyRate: d("2.10")}
	assertMoney(t, "2.10", calc.RateForZone(withRate))

	withoutRate := &entity.ParkingZone{LocationType: entity.LocationGarage}
	assertMoney(t, "1.00", calc.RateForZone(withoutRate))
}

func TestRefund(t *testing.T) {
	calc := NewCalculator(DefaultPolicy(), nil)
	rate := d("1.25")

	paid, err := calc.Calculate(rate, d("2"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		timeUsed string
		want     string
	}{
		{"twenty minutes bills the half hour minimum", "0.3333", "2.02"},
		{"no time used bills the half hour minimum", "0", "2.02"},
		{"negative time is floored", "-0.25", "2.02"},
		{"one hour", "1", "1.35"},
		{"full time", "2", "0"},
		{"over time never goes negative", "3", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refund, err := calc.Refund(rate, paid, d(tt.timeUsed))
			require.NoError(t, err)
			assertMoney(t, tt.want, refund)
			assert.True(t, refund.LessThanOrEqual(paid.Subtotal()))
		})
	}
}

func TestRefundNeverIncludesProcessingFee(t *testing.T) {
	calc := NewCalculator(DefaultPolicy(), nil)

	for _, hours := range []string{"0.5", "1", "4", "8"} {
		paid, err := calc.Calculate(d("1.00"), d(hours))
		require.NoError(t, err)

		refund, err := calc.Refund(d("1.00"), paid, decimal.Zero)
		require.NoError(t, err)

		assert.True(t, refund.LessThanOrEqual(paid.BaseCost.Add(paid.TaxAmount)))
		assert.True(t, refund.LessThan(paid.TotalCost))
	}
}
