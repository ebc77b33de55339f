package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/tranex/internal/cart"
	"github.com/fjod/tranex/internal/catalog"
	"github.com/fjod/tranex/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartStores hands out the cart of a browser session.
type CartStores interface {
	Get(ctx context.Context, sessionID string) *cart.Store
}

// ProductLookup resolves a product id to its catalog entry.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type CartHandler struct {
	carts    CartStores
	products ProductLookup
	shipping decimal.Decimal
	timeout  time.Duration
	log      *zap.Logger
}

func NewCartHandler(carts CartStores, products ProductLookup, shipping decimal.Decimal, timeout time.Duration, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		carts:    carts,
		products: products,
		shipping: shipping,
		timeout:  timeout,
		log:      log,
	}
}

// AddItemRequestDTO adds a product by id. The catalog entry always wins; name
// and price are used only for products the catalog does not know.
type AddItemRequestDTO struct {
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Name      string           `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Image     string           `json:"image,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type AdjustQuantityRequestDTO struct {
	Delta int `json:"delta"`
}

const maxQuantity = 99

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.store(ctx, w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, cart.Summarize(store, h.shipping))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.store(ctx, w)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	product, ok := h.resolveProduct(ctx, w, req)
	if !ok {
		return
	}

	if err := store.AddItem(ctx, product, req.Quantity); err != nil {
		switch {
		case errors.Is(err, cart.ErrInvalidProduct):
			respondError(w, http.StatusBadRequest, "invalid_product_id", err.Error())
		case errors.Is(err, cart.ErrInvalidPrice):
			respondError(w, http.StatusBadRequest, "invalid_price", err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusCreated, cart.Summarize(store, h.shipping))
}

func (h *CartHandler) resolveProduct(ctx context.Context, w http.ResponseWriter, req AddItemRequestDTO) (domain.Product, bool) {
	p, err := h.products.GetProduct(ctx, req.ProductID)
	switch {
	case err == nil:
		return *p, true
	case errors.Is(err, catalog.ErrProductNotFound):
		if req.Name == "" || req.Price == nil {
			respondError(w, http.StatusNotFound, "product_not_found", "product not found")
			return domain.Product{}, false
		}
		h.log.Info("adding product missing from catalog", zap.String("product_id", req.ProductID),
			zap.String("request_id", getRequestID(ctx)))
		fallback := domain.Product{ID: req.ProductID, Name: req.Name, Price: *req.Price}
		fallback.Images.Main = req.Image
		return fallback, true
	default:
		h.log.Error("product lookup failed", zap.String("product_id", req.ProductID),
			zap.String("request_id", getRequestID(ctx)), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "product catalog unavailable")
		return domain.Product{}, false
	}
}

// UpdateQuantity sets a line's quantity; zero or less removes the line and
// unknown ids leave the cart unchanged.
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.store(ctx, w)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at most 99")
		return
	}

	store.UpdateQuantity(ctx, chi.URLParam(r, "id"), req.Quantity)
	respondJSON(w, http.StatusOK, cart.Summarize(store, h.shipping))
}

// AdjustQuantity applies the +/- buttons: quantity moves by delta but stays at
// least one.
func (h *CartHandler) AdjustQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.store(ctx, w)
	if !ok {
		return
	}

	var req AdjustQuantityRequestDTO
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	store.Adjust(ctx, chi.URLParam(r, "id"), req.Delta)
	respondJSON(w, http.StatusOK, cart.Summarize(store, h.shipping))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.store(ctx, w)
	if !ok {
		return
	}

	store.RemoveItem(ctx, chi.URLParam(r, "id"))
	respondJSON(w, http.StatusOK, cart.Summarize(store, h.shipping))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	store, ok := h.store(ctx, w)
	if !ok {
		return
	}

	store.Clear(ctx)
	respondJSON(w, http.StatusOK, cart.Summarize(store, h.shipping))
}

func (h *CartHandler) store(ctx context.Context, w http.ResponseWriter) (*cart.Store, bool) {
	sid := getSessionID(ctx)
	if sid == "" {
		respondError(w, http.StatusUnauthorized, "no_session", "missing session")
		return nil, false
	}
	return h.carts.Get(ctx, sid), true
}
