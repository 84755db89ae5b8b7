package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pharmabill/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineComputesBaseTaxTotal(t *testing.T) {
	amounts := Line(dec("100.00"), 3, dec("12"))

	require.True(t, amounts.Base.Equal(dec("300.00")), "base %s", amounts.Base)
	require.True(t, amounts.Tax.Equal(dec("36.00")), "tax %s", amounts.Tax)
	require.True(t, amounts.Total.Equal(dec("336.00")), "total %s", amounts.Total)
}

func TestLineRoundsTaxHalfUp(t *testing.T) {
	// 33.33 * 1 * 5% = 1.6665 -> 1.67
	amounts := Line(dec("33.33"), 1, dec("5"))
	require.True(t, amounts.Tax.Equal(dec("1.67")), "tax %s", amounts.Tax)

	// 10.25 * 1 * 5% = 0.5125 -> 0.51
	amounts = Line(dec("10.25"), 1, dec("5"))
	require.True(t, amounts.Tax.Equal(dec("0.51")), "tax %s", amounts.Tax)

	// 12.50 * 1 * 18% = 2.25 exactly
	amounts = Line(dec("12.50"), 1, dec("18"))
	require.True(t, amounts.Tax.Equal(dec("2.25")), "tax %s", amounts.Tax)
}

func TestLineZeroGST(t *testing.T) {
	amounts := Line(dec("45.00"), 2, dec("0"))

	require.True(t, amounts.Tax.IsZero())
	require.True(t, amounts.Total.Equal(dec("90.00")))
}

func TestLineRoundsAtLineLevelNotInvoiceLevel(t *testing.T) {
	// Two lines whose taxes each round individually. The invoice total must
	// be the sum of the rounded line taxes, not a re-rounded grand tax.
	a := Line(dec("33.33"), 1, dec("5")) // tax 1.67
	b := Line(dec("33.33"), 1, dec("5")) // tax 1.67

	taxSum := a.Tax.Add(b.Tax)
	require.True(t, taxSum.Equal(dec("3.34")), "tax sum %s", taxSum)

	// Re-rounding the combined base would give 66.66 * 5% = 3.333 -> 3.33.
	combined := Line(dec("66.66"), 1, dec("5"))
	require.True(t, combined.Tax.Equal(dec("3.33")))
	require.False(t, taxSum.Equal(combined.Tax))
}

func TestCartSummarySumsLineAmounts(t *testing.T) {
	items := []domain.CartItem{
		{UnitPrice: dec("31.50"), Quantity: 2, GSTPercent: dec("12")},
		{UnitPrice: dec("14.00"), Quantity: 1, GSTPercent: dec("5")},
	}

	summary := CartSummary(items)

	require.True(t, summary.Subtotal.Equal(dec("77.00")), "subtotal %s", summary.Subtotal)
	// 63.00*12% = 7.56, 14.00*5% = 0.70
	require.True(t, summary.TaxTotal.Equal(dec("8.26")), "tax %s", summary.TaxTotal)
	require.True(t, summary.GrandTotal.Equal(dec("85.26")), "grand %s", summary.GrandTotal)
}

func TestCartSummaryEmptyCart(t *testing.T) {
	summary := CartSummary(nil)

	require.True(t, summary.Subtotal.IsZero())
	require.True(t, summary.TaxTotal.IsZero())
	require.True(t, summary.GrandTotal.IsZero())
}
