package entity

import "github.com/shopspring/decimal"

// CostBreakdown holds money amounts rounded to cents.
type CostBreakdown struct {
	BaseCost      decimal.Decimal `json:"base_cost"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	TotalCost     decimal.Decimal `json:"total_cost"`
}

// Subtotal is the refundable part of the breakdown.
func (c CostBreakdown) Subtotal() decimal.Decimal {
	return c.BaseCost.Add(c.TaxAmount)
}

func (c CostBreakdown) Add(other CostBreakdown) CostBreakdown {
	return CostBreakdown{
		BaseCost:      c.BaseCost.Add(other.BaseCost),
		TaxAmount:     c.TaxAmount.Add(other.TaxAmount),
		ProcessingFee: c.ProcessingFee.Add(other.ProcessingFee),
		TotalCost:     c.TotalCost.Add(other.TotalCost),
	}
}
