package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-canteen/internal/pricing"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInclusiveLine(t *testing.T) {
	res := pricing.ComputeLine(pricing.Line{
		UnitPrice: dec("118"),
		Quantity:  1,
		TaxRate:   dec("18"),
		GSTType:   pricing.Inclusive,
	})
	require.True(t, res.Discount.IsZero())
	require.True(t, res.Tax.Equal(dec("18")), "tax=%s", res.Tax)
	require.True(t, res.Contribution.Equal(dec("118")), "contribution=%s", res.Contribution)
}

func TestInclusiveOrderTotals(t *testing.T) {
	line := pricing.Line{UnitPrice: dec("118"), Quantity: 1, TaxRate: dec("18"), GSTType: pricing.Inclusive}
	b := pricing.Compute([]pricing.Line{line, line})
	require.True(t, b.GrandTotal.Equal(dec("236")), "grand=%s", b.GrandTotal)
	require.True(t, b.TotalTax.Equal(dec("36")), "tax=%s", b.TotalTax)
	require.True(t, b.SubtotalExTax.Equal(dec("200")), "subtotal=%s", b.SubtotalExTax)
	require.True(t, b.CGST.Equal(dec("18")))
	require.True(t, b.SGST.Equal(dec("18")))
}

func TestExclusiveWithDiscount(t *testing.T) {
	res := pricing.ComputeLine(pricing.Line{
		UnitPrice:   dec("100"),
		Quantity:    2,
		TaxRate:     dec("5"),
		GSTType:     pricing.Exclusive,
		DiscountPct: dec("10"),
	})
	require.True(t, res.Gross.Equal(dec("200")), "gross=%s", res.Gross)
	require.True(t, res.Discount.Equal(dec("20")), "discount=%s", res.Discount)
	require.True(t, res.Tax.Equal(dec("9")), "tax=%s", res.Tax)
	require.True(t, res.Contribution.Equal(dec("189")), "contribution=%s", res.Contribution)
}

func TestMixedGSTOrder(t *testing.T) {
	b := pricing.Compute([]pricing.Line{
		{UnitPrice: dec("118"), Quantity: 1, TaxRate: dec("18"), GSTType: pricing.Inclusive},
		{UnitPrice: dec("100"), Quantity: 2, TaxRate: dec("5"), GSTType: pricing.Exclusive, DiscountPct: dec("10")},
	})
	require.True(t, b.GrandTotal.Equal(dec("307")), "grand=%s", b.GrandTotal)
	require.True(t, b.TotalTax.Equal(dec("27")), "tax=%s", b.TotalTax)
	require.True(t, b.SubtotalExTax.Equal(dec("280")), "subtotal=%s", b.SubtotalExTax)
}

func TestZeroQuantityLinesIgnored(t *testing.T) {
	b := pricing.Compute([]pricing.Line{
		{UnitPrice: dec("50"), Quantity: 0, TaxRate: dec("5"), GSTType: pricing.Exclusive},
	})
	require.True(t, b.GrandTotal.IsZero())
	require.True(t, b.TotalTax.IsZero())
}

func TestDeterministicRecompute(t *testing.T) {
	lines := []pricing.Line{
		{UnitPrice: dec("33.33"), Quantity: 3, TaxRate: dec("18"), GSTType: pricing.Inclusive, DiscountPct: dec("7.5")},
		{UnitPrice: dec("12.49"), Quantity: 7, TaxRate: dec("12"), GSTType: pricing.Exclusive, DiscountPct: dec("2")},
	}
	first := pricing.Compute(lines)
	for i := 0; i < 100; i++ {
		again := pricing.Compute(lines)
		require.True(t, first.GrandTotal.Equal(again.GrandTotal))
		require.True(t, first.TotalTax.Equal(again.TotalTax))
		require.True(t, first.SubtotalExTax.Equal(again.SubtotalExTax))
	}
}
