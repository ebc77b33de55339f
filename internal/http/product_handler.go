package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/tranex/internal/catalog"
	"github.com/fjod/tranex/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ProductHandler struct {
	loader  *catalog.Loader
	timeout time.Duration
}

func NewProductHandler(loader *catalog.Loader, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		loader:  loader,
		timeout: timeout,
	}
}

type ProductResponse struct {
	domain.Product
	DiscountPercent int `json:"discount_percent"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
	Page     int               `json:"page"`
	HasMore  bool              `json:"has_more"`
}

type ReviewsResponse struct {
	Reviews []domain.Review `json:"reviews"`
}

type RelatedResponse struct {
	Products []ProductResponse `json:"products"`
}

type CategoriesResponse struct {
	Categories []domain.Category `json:"categories"`
}

func toProductResponse(p domain.Product) ProductResponse {
	return ProductResponse{Product: p, DiscountPercent: p.DiscountPercent()}
}

// List serves the store page:
// ?category=<slug>&sort=<option>&page=<n>&q=<search>&max_price=<amount>.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
			return
		}
		page = n
	}

	var maxPrice decimal.NullDecimal
	if raw := q.Get("max_price"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			respondError(w, http.StatusBadRequest, "invalid_max_price", "max_price must be a non-negative amount")
			return
		}
		maxPrice = decimal.NewNullDecimal(d)
	}

	res := h.loader.LoadPage(ctx, catalog.PageQuery{
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Search:   q.Get("q"),
		MaxPrice: maxPrice,
		Number:   page,
	})
	products := make([]ProductResponse, len(res.Products))
	for i, p := range res.Products {
		products[i] = toProductResponse(p)
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products, Page: res.Number, HasMore: res.HasMore})
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p := h.loader.LoadProduct(ctx, chi.URLParam(r, "id"))
	if p == nil {
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(*p))
}

// Reviews lists a product's reviews, newest first. Unavailable reviews are
// an empty list.
func (h *ProductHandler) Reviews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	reviews := h.loader.LoadReviews(ctx, chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, &ReviewsResponse{Reviews: reviews})
}

func (h *ProductHandler) Related(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	related := h.loader.LoadRelated(ctx, chi.URLParam(r, "id"))
	products := make([]ProductResponse, len(related))
	for i, p := range related {
		products[i] = toProductResponse(p)
	}
	respondJSON(w, http.StatusOK, &RelatedResponse{Products: products})
}

func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	respondJSON(w, http.StatusOK, &CategoriesResponse{Categories: h.loader.LoadCategories(ctx)})
}
