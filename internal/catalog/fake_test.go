package catalog_test

import (
	"context"
	"sync"

	"github.com/fjod/tranex/internal/catalog"
	"github.com/fjod/tranex/internal/domain"
)

// fakeCatalog counts calls and serves canned results.
type fakeCatalog struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	categories []domain.Category
	reviews    map[string][]domain.Review
	err        error
	lastOpts   catalog.ListOptions

	listCalls     int
	getCalls      int
	categoryCalls int
	reviewCalls   int
	relatedCalls  int
}

func newFakeCatalog(products ...domain.Product) *fakeCatalog {
	f := &fakeCatalog{products: make(map[string]domain.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeCatalog) ListProducts(_ context.Context, opts catalog.ListOptions) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, p)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (f *fakeCatalog) ListCategories(_ context.Context) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categoryCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.categories, nil
}

func (f *fakeCatalog) ListReviews(_ context.Context, productID string) ([]domain.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.reviews[productID], nil
}

func (f *fakeCatalog) RelatedProducts(_ context.Context, productID string, limit int) ([]domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relatedCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Product, 0, limit)
	for id, p := range f.products {
		if id != productID && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) calls() (list, get, categories int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.listCalls, f.getCalls, f.categoryCalls
}
