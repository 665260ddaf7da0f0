// Package pricing computes GST line and order totals. All arithmetic is
// decimal so the same input always yields the same output regardless of
// locale or platform.
package pricing

import (
	"github.com/shopspring/decimal"
)

// GSTType selects how tax relates to the selling price.
type GSTType string

const (
	// Inclusive means the selling price already contains GST.
	Inclusive GSTType = "inclusive"
	// Exclusive means GST is added on top of the discounted price.
	Exclusive GSTType = "exclusive"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Line is one order line as priced. Values are copied onto the order at
// placement time so later product edits do not change history.
type Line struct {
	UnitPrice   decimal.Decimal
	Quantity    int64
	TaxRate     decimal.Decimal
	GSTType     GSTType
	DiscountPct decimal.Decimal
}

// LineResult holds the rounded components for a single line. Gross, Discount
// and Tax are rounded to 2 decimals before any aggregation to avoid bias.
type LineResult struct {
	Gross        decimal.Decimal
	Discount     decimal.Decimal
	Tax          decimal.Decimal
	Contribution decimal.Decimal
}

// Breakdown aggregates line results into the order totals.
type Breakdown struct {
	SubtotalExTax decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	GrandTotal    decimal.Decimal
	CGST          decimal.Decimal
	SGST          decimal.Decimal
}

// ComputeLine prices a single line by its own GST rule.
func ComputeLine(l Line) LineResult {
	qty := decimal.NewFromInt(l.Quantity)
	gross := l.UnitPrice.Mul(qty).Round(2)
	discount := gross.Mul(l.DiscountPct).Div(hundred).Round(2)
	afterDiscount := gross.Sub(discount)

	var tax, contribution decimal.Decimal
	if l.GSTType == Inclusive {
		tax = afterDiscount.Mul(l.TaxRate).Div(hundred.Add(l.TaxRate)).Round(2)
		contribution = afterDiscount
	} else {
		tax = afterDiscount.Mul(l.TaxRate).Div(hundred).Round(2)
		contribution = afterDiscount.Add(tax)
	}
	return LineResult{Gross: gross, Discount: discount, Tax: tax, Contribution: contribution}
}

// Compute prices every line by its own rule and sums the results. Mixing
// inclusive and exclusive lines in one order is allowed.
func Compute(lines []Line) Breakdown {
	var totalTax, totalDiscount, grand decimal.Decimal
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		res := ComputeLine(l)
		totalTax = totalTax.Add(res.Tax)
		totalDiscount = totalDiscount.Add(res.Discount)
		grand = grand.Add(res.Contribution)
	}
	half := totalTax.Div(two)
	return Breakdown{
		SubtotalExTax: grand.Sub(totalTax),
		TotalDiscount: totalDiscount,
		TotalTax:      totalTax,
		GrandTotal:    grand,
		CGST:          half,
		SGST:          half,
	}
}
