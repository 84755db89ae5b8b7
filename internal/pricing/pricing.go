// Package pricing computes invoice line amounts. All money values are
// decimals with two fractional digits; the tax amount is rounded half-up at
// the line level so that invoice totals are exact sums of stored line values.
package pricing

import (
	"github.com/shopspring/decimal"

	"pharmabill/backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type LineAmounts struct {
	Base  decimal.Decimal
	Tax   decimal.Decimal
	Total decimal.Decimal
}

// Line prices one invoice line:
//
//	base  = unitPrice * quantity
//	tax   = base * gstPercent / 100, rounded half-up to 2 places
//	total = base + tax
//
// decimal.Round rounds half away from zero, which for the non-negative
// amounts handled here is round-half-up.
func Line(unitPrice decimal.Decimal, quantity int, gstPercent decimal.Decimal) LineAmounts {
	base := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	tax := base.Mul(gstPercent).Div(hundred).Round(2)
	return LineAmounts{
		Base:  base,
		Tax:   tax,
		Total: base.Add(tax),
	}
}

// CartSummary recomputes the running totals for a held cart from its item
// snapshots. The same line rule applies, so the summary a cashier sees
// matches what checkout will produce for unchanged prices.
func CartSummary(items []domain.CartItem) domain.CartSummary {
	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	for _, item := range items {
		amounts := Line(item.UnitPrice, item.Quantity, item.GSTPercent)
		subtotal = subtotal.Add(amounts.Base)
		taxTotal = taxTotal.Add(amounts.Tax)
	}
	return domain.CartSummary{
		Subtotal:   subtotal,
		TaxTotal:   taxTotal,
		GrandTotal: subtotal.Add(taxTotal),
	}
}
