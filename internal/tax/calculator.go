// Package tax computes GST invoice totals with rupee round-off.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/shared"
)

var (
	hundred = decimal.NewFromInt(100)
	// Tolerance is the largest accepted gap between a caller-supplied amount and the recomputed one.
	Tolerance = decimal.New(1, -2)
)

// Line is one priced quantity.
type Line struct {
	Quantity decimal.Decimal
	Rate     decimal.Decimal
}

// Rates holds the invoice level percentages.
type Rates struct {
	DiscountPercent decimal.Decimal
	CGSTPercent     decimal.Decimal
	SGSTPercent     decimal.Decimal
}

// Totals is the computed money breakdown of an invoice.
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	TaxableValue   decimal.Decimal `json:"taxableValue"`
	CGSTAmount     decimal.Decimal `json:"cgstAmount"`
	SGSTAmount     decimal.Decimal `json:"sgstAmount"`
	RoundOff       decimal.Decimal `json:"roundOff"`
	Total          decimal.Decimal `json:"total"`
}

// LineAmount returns quantity * rate rounded to paise.
func LineAmount(quantity, rate decimal.Decimal) decimal.Decimal {
	return quantity.Mul(rate).Round(2)
}

// Compute derives the totals for lines under rates. It never mutates its input.
func Compute(lines []Line, rates Rates) (Totals, error) {
	if len(lines) == 0 {
		return Totals{}, shared.NewValidationError("items", "at least one line item is required")
	}
	if err := checkPercent("discountPercent", rates.DiscountPercent); err != nil {
		return Totals{}, err
	}
	if err := checkPercent("cgstPercent", rates.CGSTPercent); err != nil {
		return Totals{}, err
	}
	if err := checkPercent("sgstPercent", rates.SGSTPercent); err != nil {
		return Totals{}, err
	}

	subtotal := decimal.Zero
	for i, line := range lines {
		if !line.Quantity.IsPositive() {
			return Totals{}, shared.NewValidationError(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
		if line.Rate.IsNegative() {
			return Totals{}, shared.NewValidationError(fmt.Sprintf("items[%d].rate", i), "must not be negative")
		}
		subtotal = subtotal.Add(LineAmount(line.Quantity, line.Rate))
	}

	discount := percentOf(subtotal, rates.DiscountPercent)
	taxable := subtotal.Sub(discount)
	cgst := percentOf(taxable, rates.CGSTPercent)
	sgst := percentOf(taxable, rates.SGSTPercent)
	preRound := taxable.Add(cgst).Add(sgst)
	total := preRound.Round(0)

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discount,
		TaxableValue:   taxable,
		CGSTAmount:     cgst,
		SGSTAmount:     sgst,
		RoundOff:       total.Sub(preRound),
		Total:          total,
	}, nil
}

// WithinTolerance reports whether supplied is close enough to computed.
func WithinTolerance(supplied, computed decimal.Decimal) bool {
	return supplied.Sub(computed).Abs().LessThanOrEqual(Tolerance)
}

func percentOf(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(hundred).Round(2)
}

func checkPercent(field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return shared.NewValidationError(field, "must be between 0 and 100")
	}
	return nil
}
