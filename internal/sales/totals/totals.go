// Package totals computes invoice line amounts and aggregates with 2-decimal
// rounding at both the line and the invoice level.
package totals

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineAmounts are the derived money values of a single invoice line.
type LineAmounts struct {
	Subtotal      float64 `json:"subtotal"`
	DiscountValue float64 `json:"discountValue"`
	TaxableAmount float64 `json:"taxableAmount"`
	TaxValue      float64 `json:"taxValue"`
	Total         float64 `json:"total"`
}

// Input is one line fed to Compute.
type Input struct {
	Quantity        float64
	Price           float64
	DiscountPercent float64
	TaxPercent      float64
}

// Totals are the invoice level aggregates.
type Totals struct {
	Total         float64 `json:"total"`
	AfterDiscount float64 `json:"afterDiscount"`
	Tax           float64 `json:"tax"`
	AfterTax      float64 `json:"afterTax"`
}

type lineDecimals struct {
	subtotal, discount, taxable, tax, total decimal.Decimal
}

func computeLine(in Input) lineDecimals {
	qty := decimal.NewFromFloat(in.Quantity)
	price := decimal.NewFromFloat(in.Price)
	subtotal := qty.Mul(price).Round(2)
	discount := subtotal.Mul(decimal.NewFromFloat(in.DiscountPercent)).Div(hundred).Round(2)
	taxable := subtotal.Sub(discount).Round(2)
	tax := taxable.Mul(decimal.NewFromFloat(in.TaxPercent)).Div(hundred).Round(2)
	return lineDecimals{
		subtotal: subtotal,
		discount: discount,
		taxable:  taxable,
		tax:      tax,
		total:    taxable.Add(tax).Round(2),
	}
}

// ComputeLine derives the line amounts. Every value is rounded half away from
// zero to 2 decimals.
func ComputeLine(quantity, price, discountPercent, taxPercent float64) LineAmounts {
	l := computeLine(Input{Quantity: quantity, Price: price, DiscountPercent: discountPercent, TaxPercent: taxPercent})
	return LineAmounts{
		Subtotal:      l.subtotal.InexactFloat64(),
		DiscountValue: l.discount.InexactFloat64(),
		TaxableAmount: l.taxable.InexactFloat64(),
		TaxValue:      l.tax.InexactFloat64(),
		Total:         l.total.InexactFloat64(),
	}
}

// Compute aggregates the already rounded line values and rounds the sums again.
func Compute(lines []Input) Totals {
	total := decimal.Zero
	afterDiscount := decimal.Zero
	tax := decimal.Zero
	for _, in := range lines {
		l := computeLine(in)
		total = total.Add(l.subtotal)
		afterDiscount = afterDiscount.Add(l.taxable)
		tax = tax.Add(l.tax)
	}
	afterDiscount = afterDiscount.Round(2)
	tax = tax.Round(2)
	return Totals{
		Total:         total.Round(2).InexactFloat64(),
		AfterDiscount: afterDiscount.InexactFloat64(),
		Tax:           tax.InexactFloat64(),
		AfterTax:      afterDiscount.Add(tax).Round(2).InexactFloat64(),
	}
}

// Round2 rounds an arbitrary amount to 2 decimals half away from zero.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
