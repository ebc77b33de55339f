package catalog

import (
	"context"
	"errors"

	"github.com/fjod/tranex/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultPageSize = 6

// Store page sort options.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceLow  = "price-low"
	SortPriceHigh = "price-high"
)

// SortFor maps a store page sort option to a field and direction.
// Unknown options sort newest first.
func SortFor(option string) (field, direction string) {
	switch option {
	case SortPriceLow:
		return SortPrice, DirectionAsc
	case SortPriceHigh:
		return SortPrice, DirectionDesc
	case SortOldest:
		return SortCreatedAt, DirectionAsc
	default:
		return SortCreatedAt, DirectionDesc
	}
}

// Page is one page of the store listing.
type Page struct {
	Products []domain.Product `json:"products"`
	Number   int              `json:"page"`
	HasMore  bool             `json:"has_more"`
}

// Loader serves pages that render whatever data is available: catalog
// failures are logged and surface as empty results, never as errors.
type Loader struct {
	catalog  Catalog
	pageSize int
	log      *zap.Logger
}

func NewLoader(c Catalog, pageSize int, log *zap.Logger) *Loader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{catalog: c, pageSize: pageSize, log: log}
}

func (l *Loader) LoadProducts(ctx context.Context, opts ListOptions) []domain.Product {
	products, err := l.catalog.ListProducts(ctx, opts)
	if err != nil {
		l.log.Error("failed to load products", zap.Error(err))
		return []domain.Product{}
	}
	return products
}

// LoadProduct returns nil when the product is missing or cannot be loaded.
func (l *Loader) LoadProduct(ctx context.Context, id string) *domain.Product {
	p, err := l.catalog.GetProduct(ctx, id)
	if errors.Is(err, ErrProductNotFound) {
		return nil
	}
	if err != nil {
		l.log.Error("failed to load product", zap.String("product_id", id), zap.Error(err))
		return nil
	}
	return p
}

func (l *Loader) LoadCategories(ctx context.Context) []domain.Category {
	categories, err := l.catalog.ListCategories(ctx)
	if err != nil {
		l.log.Error("failed to load categories", zap.Error(err))
		return []domain.Category{}
	}
	return categories
}

// LoadReviews returns the product's reviews, or none when they cannot be loaded.
func (l *Loader) LoadReviews(ctx context.Context, productID string) []domain.Review {
	reviews, err := l.catalog.ListReviews(ctx, productID)
	if err != nil {
		l.log.Error("failed to load reviews", zap.String("product_id", productID), zap.Error(err))
		return []domain.Review{}
	}
	return reviews
}

// LoadRelated returns up to DefaultRelatedLimit other products.
func (l *Loader) LoadRelated(ctx context.Context, productID string) []domain.Product {
	products, err := l.catalog.RelatedProducts(ctx, productID, DefaultRelatedLimit)
	if err != nil {
		l.log.Error("failed to load related products", zap.String("product_id", productID), zap.Error(err))
		return []domain.Product{}
	}
	return products
}

// PageQuery selects one page of the store listing by category slug, store
// page sort option and filters. Number is 1-based.
type PageQuery struct {
	Category string
	Sort     string
	Search   string
	MaxPrice decimal.NullDecimal
	Number   int
}

// LoadPage loads one page of the listing. HasMore is set when a full page
// came back.
func (l *Loader) LoadPage(ctx context.Context, pq PageQuery) Page {
	number := pq.Number
	if number < 1 {
		number = 1
	}
	field, direction := SortFor(pq.Sort)
	products := l.LoadProducts(ctx, ListOptions{
		Category:      pq.Category,
		Search:        pq.Search,
		MaxPrice:      pq.MaxPrice,
		SortBy:        field,
		SortDirection: direction,
		Limit:         l.pageSize,
		Offset:        (number - 1) * l.pageSize,
	})
	return Page{
		Products: products,
		Number:   number,
		HasMore:  len(products) >= l.pageSize,
	}
}
