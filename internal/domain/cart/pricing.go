package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-api/internal/domain/discount"
)

// Totals holds the aggregate prices of a cart. Values are exact; rounding
// for display is left to the caller.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Price sums the line totals in order and applies code when it is not nil.
func Price(items []Item, code *discount.Code) (Totals, error) {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal())
	}

	total := subtotal
	if code != nil {
		var err error
		total, err = code.Apply(subtotal)
		if err != nil {
			return Totals{}, errors.Wrap(err, "apply discount")
		}
	}

	return Totals{
		Subtotal: subtotal,
		Discount: subtotal.Sub(total),
		Total:    total,
	}, nil
}
