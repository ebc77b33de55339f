package cart

import "github.com/shopspring/decimal"

// Summary is what the cart page shows: lines plus subtotal, flat shipping and
// total, all computed from one snapshot.
type Summary struct {
	Items     []LineItem      `json:"items"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
}

// Summarize charges shippingFlat only when the cart has a positive subtotal.
func Summarize(s *Store, shippingFlat decimal.Decimal) Summary {
	items := s.Items()
	subtotal := totalPrice(items)
	shipping := decimal.Zero
	if subtotal.IsPositive() {
		shipping = shippingFlat
	}
	return Summary{
		Items:     items,
		ItemCount: totalItemCount(items),
		Subtotal:  subtotal,
		Shipping:  shipping,
		Total:     subtotal.Add(shipping),
	}
}
