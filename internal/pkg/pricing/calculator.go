// Package pricing turns hourly rates and durations into cost breakdowns.
package pricing

import (
	"fmt"

	"github.com/schatha/stamford-parking-system-sub001/internal/entity"
	"github.com/shopspring/decimal"
)

// Policy groups the money constants applied on top of the hourly rate.
type Policy struct {
	TaxRate            decimal.Decimal
	FeePercent         decimal.Decimal
	FeeFlat            decimal.Decimal
	MinChargeableHours decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		TaxRate:            decimal.RequireFromString("0.08"),
		FeePercent:         decimal.RequireFromString("0.029"),
		FeeFlat:            decimal.RequireFromString("0.30"),
		MinChargeableHours: decimal.RequireFromString("0.5"),
	}
}

// RateTable maps a location type to its hourly rate.
type RateTable map[entity.LocationType]decimal.Decimal

func DefaultRateTable() RateTable {
	return RateTable{
		entity.LocationStreet: decimal.RequireFromString("1.25"),
		entity.LocationGarage: decimal.RequireFromString("1.00"),
		entity.LocationLot:    decimal.RequireFromString("1.00"),
		entity.LocationMeter:  decimal.RequireFromString("1.25"),
	}
}

// RateFor falls back to the street rate for unknown location types.
func (t RateTable) RateFor(lt entity.LocationType) decimal.Decimal {
	if rate, ok := t[lt]; ok {
		return rate
	}
	return t[entity.LocationStreet]
}

type Calculator struct {
	policy Policy
	rates  RateTable
}

func NewCalculator(policy Policy, rates RateTable) *Calculator {
	if rates == nil {
		rates = DefaultRateTable()
	}
	return &Calculator{policy: policy, rates: rates}
}

func (c *Calculator) Policy() Policy {
	return c.policy
}

// RateForZone prefers the zone's own rate and uses the location type table
// when the zone carries none.
func (c *Calculator) RateForZone(zone *entity.ParkingZone) decimal.Decimal {
	if zone.HourlyRate.IsPositive() {
		return zone.HourlyRate
	}
	return c.rates.RateFor(zone.LocationType)
}

// Calculate rounds to cents after every step, not only at the end.
func (c *Calculator) Calculate(rate, hours decimal.Decimal) (entity.CostBreakdown, error) {
	if !rate.IsPositive() {
		return entity.CostBreakdown{}, fmt.Errorf("rate %s: %w", rate, entity.ErrInvalidInput)
	}
	if !hours.IsPositive() {
		return entity.CostBreakdown{}, fmt.Errorf("duration %s: %w", hours, entity.ErrInvalidInput)
	}

	base := roundCents(rate.Mul(hours))
	tax := roundCents(base.Mul(c.policy.TaxRate))
	subtotal := base.Add(tax)
	fee := roundCents(subtotal.Mul(c.policy.FeePercent).Add(c.policy.FeeFlat))

	return entity.CostBreakdown{
		BaseCost:      base,
		TaxAmount:     tax,
		ProcessingFee: fee,
		TotalCost:     roundCents(subtotal.Add(fee)),
	}, nil
}

// Refund returns how much of paid goes back to the driver after timeUsed
// hours. At least MinChargeableHours are always billed and the processing
// fee is never returned.
func (c *Calculator) Refund(rate decimal.Decimal, paid entity.CostBreakdown, timeUsed decimal.Decimal) (decimal.Decimal, error) {
	if timeUsed.IsNegative() {
		timeUsed = decimal.Zero
	}
	chargeable := decimal.Max(c.policy.MinChargeableHours, timeUsed)
	if !chargeable.IsPositive() {
		return roundCents(paid.Subtotal()), nil
	}

	shouldPay, err := c.Calculate(rate, chargeable)
	if err != nil {
		return decimal.Zero, err
	}

	refund := paid.Subtotal().Sub(shouldPay.Subtotal())
	if refund.IsNegative() {
		return decimal.Zero, nil
	}
	return roundCents(refund), nil
}

// roundCents rounds half away from zero; every amount here is non-negative so
// this is round-half-up.
func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
