package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	ShortDescription string          `json:"short_description,omitempty"`
	Price            decimal.Decimal `json:"price"`
	OriginalPrice    decimal.Decimal `json:"original_price,omitzero"`
	Category         string          `json:"category,omitempty"`
	Brand            string          `json:"brand,omitempty"`
	SKU              string          `json:"sku,omitempty"`
	StockQuantity    int             `json:"stock_quantity"`
	Images           ProductImages   `json:"images"`
	ImageURL         string          `json:"image_url,omitempty"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
}

type ProductImages struct {
	Main    string   `json:"main,omitempty"`
	Gallery []string `json:"gallery,omitempty"`
}

// MainImage is the display image, preferring the gallery main image over the flat URL.
func (p Product) MainImage() string {
	if p.Images.Main != "" {
		return p.Images.Main
	}
	return p.ImageURL
}

// DiscountPercent returns the rounded discount against OriginalPrice, 0 when there is none.
func (p Product) DiscountPercent() int {
	if !p.OriginalPrice.IsPositive() || !p.OriginalPrice.GreaterThan(p.Price) {
		return 0
	}
	ratio := decimal.NewFromInt(1).Sub(p.Price.Div(p.OriginalPrice))
	return int(ratio.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	SortOrder   int    `json:"sort_order"`
	IsActive    bool   `json:"is_active"`
}

type Review struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UserName  string    `json:"user_name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}
