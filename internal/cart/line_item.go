package cart

import (
	"errors"

	"github.com/fjod/tranex/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidProduct = errors.New("product id is required")
	ErrInvalidPrice   = errors.New("product price must not be negative")
)

// LineItem is one product row in the cart. Name, Price and Image are
// snapshotted when the product is first added and never refreshed.
type LineItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Image    string          `json:"image"`
	Quantity int             `json:"quantity"`
}

// Total is Price * Quantity.
func (i LineItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// NewLineItem validates p and normalises it into a line item. A quantity below
// one is treated as one.
func NewLineItem(p domain.Product, quantity int) (LineItem, error) {
	if p.ID == "" {
		return LineItem{}, ErrInvalidProduct
	}
	if p.Price.IsNegative() {
		return LineItem{}, ErrInvalidPrice
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	if quantity < 1 {
		quantity = 1
	}
	return LineItem{
		ID:       p.ID,
		Name:     name,
		Price:    p.Price,
		Image:    p.MainImage(),
		Quantity: quantity,
	}, nil
}
