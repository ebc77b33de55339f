package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/tranex/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidSort     = errors.New("invalid sort field")
)

// Catalog is the read side of the product database.
type Catalog interface {
	ListProducts(ctx context.Context, opts ListOptions) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	// ListReviews returns a product's reviews, newest first.
	ListReviews(ctx context.Context, productID string) ([]domain.Review, error)
	// RelatedProducts returns up to limit other active products.
	RelatedProducts(ctx context.Context, productID string, limit int) ([]domain.Product, error)
}

const (
	SortCreatedAt = "created_at"
	SortPrice     = "price"
	SortName      = "name"

	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

// DefaultRelatedLimit is how many related products a product page shows.
const DefaultRelatedLimit = 4

// ListOptions filters and pages ListProducts. Zero values mean no filter,
// newest first and no limit.
type ListOptions struct {
	// Category is a category slug.
	Category      string
	// Search matches name or description, case-insensitively.
	Search        string
	// MaxPrice keeps products priced at or below it when valid.
	MaxPrice      decimal.NullDecimal
	SortBy        string
	SortDirection string
	Limit         int
	Offset        int
}

// normalized fills defaults and rejects sort fields that are not whitelisted.
func (o ListOptions) normalized() (ListOptions, error) {
	switch o.SortBy {
	case "":
		o.SortBy = SortCreatedAt
	case SortCreatedAt, SortPrice, SortName:
	default:
		return o, fmt.Errorf("%w: %q", ErrInvalidSort, o.SortBy)
	}
	if o.SortDirection != DirectionAsc {
		o.SortDirection = DirectionDesc
	}
	if o.Limit < 0 {
		o.Limit = 0
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	o.Search = strings.TrimSpace(o.Search)
	return o, nil
}

func decimalFromNumber(n string) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, errors.New("missing value")
	}
	return decimal.NewFromString(n)
}
