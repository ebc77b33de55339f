package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/tranex/internal/catalog"
	"github.com/fjod/tranex/pkg/circuitbreaker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAnonKey = "anon-key"

func newSupabase(t *testing.T, handler http.HandlerFunc) *catalog.SupabaseCatalog {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return catalog.NewSupabaseCatalog(srv.URL+"/", testAnonKey, time.Second, nil, nil)
}

func TestSupabaseCatalog_ListProducts_BuildsQuery(t *testing.T) {
	var productQuery string
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testAnonKey, r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/rest/v1/categories":
			assert.Equal(t, "eq.fencing-equipment", r.URL.Query().Get("slug"))
			_, _ = w.Write([]byte(`[{"name":"Fencing Equipment"}]`))
		case "/rest/v1/products":
			productQuery = r.URL.RawQuery
			q := r.URL.Query()
			assert.Equal(t, "eq.Fencing Equipment", q.Get("category"))
			assert.Equal(t, "price.asc", q.Get("order"))
			assert.Equal(t, "6", q.Get("limit"))
			assert.Equal(t, "12", q.Get("offset"))
			assert.Equal(t, "eq.true", q.Get("is_active"))
			_, _ = w.Write([]byte(`[
				{"id":7,"name":"Epee","price":129.5,"original_price":null,"category":"Fencing Equipment",
				 "images":{"main":"/img/7.jpg"},"created_at":"2025-02-01T10:00:00+00:00"},
				{"id":"FLW-PRO-001","name":"Flywheel","price":"899.00","image_url":"/img/f.jpg",
				 "is_active":true,"created_at":"2025-02-02T10:00:00"}
			]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	products, err := c.ListProducts(context.Background(), catalog.ListOptions{
		Category:      "fencing-equipment",
		SortBy:        catalog.SortPrice,
		SortDirection: catalog.DirectionAsc,
		Limit:         6,
		Offset:        12,
	})

	require.NoError(t, err)
	require.NotEmpty(t, productQuery)
	require.Len(t, products, 2)
	assert.Equal(t, "7", products[0].ID)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("129.5")))
	assert.True(t, products[0].OriginalPrice.IsZero())
	assert.Equal(t, "/img/7.jpg", products[0].MainImage())
	assert.True(t, products[0].IsActive)
	assert.Equal(t, "FLW-PRO-001", products[1].ID)
	assert.Equal(t, "/img/f.jpg", products[1].MainImage())
	assert.Equal(t, 2, products[1].CreatedAt.Day())
}

func TestSupabaseCatalog_ListProducts_UnknownCategorySkipsProductQuery(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/v1/products" {
			t.Error("products should not be queried for an unknown category")
		}
		_, _ = w.Write([]byte(`[]`))
	})

	products, err := c.ListProducts(context.Background(), catalog.ListOptions{Category: "kayaks"})

	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestSupabaseCatalog_ListProducts_SkipsMalformedRows(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"no id","price":1},{"id":"a","name":"bad price","price":"abc"},{"id":"b","name":"ok","price":2}]`))
	})

	products, err := c.ListProducts(context.Background(), catalog.ListOptions{})

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "b", products[0].ID)
}

func TestSupabaseCatalog_GetProduct(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.product-1", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`[{"id":"product-1","name":"Widget","price":10}]`))
	})

	p, err := c.GetProduct(context.Background(), "product-1")

	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Name)
	assert.True(t, p.Price.Equal(decimal.NewFromInt(10)))
}

func TestSupabaseCatalog_GetProduct_NotFound(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.GetProduct(context.Background(), "missing")

	assert.ErrorIs(t, err, catalog.ErrProductNotFound)
}

func TestSupabaseCatalog_APIError(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"42703","message":"column products.nope does not exist"}`))
	})

	_, err := c.ListCategories(context.Background())

	var apiErr *catalog.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "42703", apiErr.Code)
	assert.Contains(t, err.Error(), "column products.nope does not exist")
}

func TestSupabaseCatalog_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	breaker := circuitbreaker.New("supabase-test", circuitbreaker.Config{
		MaxRequests:         1,
		Timeout:             time.Minute,
		ConsecutiveFailures: 2,
	}, nil)
	c := catalog.NewSupabaseCatalog(srv.URL, testAnonKey, time.Second, breaker, nil)
	ctx := context.Background()

	for range 2 {
		_, err := c.ListCategories(ctx)
		require.Error(t, err)
	}
	_, err := c.ListCategories(ctx)

	assert.True(t, circuitbreaker.IsOpen(err), "expected open breaker, got %v", err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSupabaseCatalog_ListProducts_SearchAndMaxPrice(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, `(name.ilike."*epee, \"pro\"*",description.ilike."*epee, \"pro\"*")`, q.Get("or"))
		assert.Equal(t, "lte.250.5", q.Get("price"))
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.ListProducts(context.Background(), catalog.ListOptions{
		Search:   `  epee, "pro" `,
		MaxPrice: decimal.NewNullDecimal(decimal.RequireFromString("250.50")),
	})

	require.NoError(t, err)
}

func TestSupabaseCatalog_ListProducts_NoFiltersByDefault(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("or"))
		assert.False(t, q.Has("price"))
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.ListProducts(context.Background(), catalog.ListOptions{})

	require.NoError(t, err)
}

func TestSupabaseCatalog_ListReviews(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/reviews", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "eq.product-1", q.Get("product_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		_, _ = w.Write([]byte(`[
			{"id":2,"product_id":"product-1","user_name":"John Smith","rating":5,"comment":"Excellent","created_at":"2024-01-15T10:00:00+00:00"},
			{"user_name":"no id","rating":1},
			{"id":"r-1","product_id":"product-1","user_name":"Mike Chen","rating":4,"comment":"Good","created_at":"2024-01-05T10:00:00"}
		]`))
	})

	reviews, err := c.ListReviews(context.Background(), "product-1")

	require.NoError(t, err)
	require.Len(t, reviews, 2)
	assert.Equal(t, "2", reviews[0].ID)
	assert.Equal(t, "John Smith", reviews[0].UserName)
	assert.Equal(t, 5, reviews[0].Rating)
	assert.Equal(t, "product-1", reviews[0].ProductID)
	assert.Equal(t, 15, reviews[0].CreatedAt.Day())
	assert.Equal(t, "r-1", reviews[1].ID)
}

func TestSupabaseCatalog_RelatedProducts(t *testing.T) {
	c := newSupabase(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/products", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "neq.product-1", q.Get("id"))
		assert.Equal(t, "4", q.Get("limit"))
		assert.Equal(t, "eq.true", q.Get("is_active"))
		_, _ = w.Write([]byte(`[{"id":"product-2","name":"Other","price":20}]`))
	})

	products, err := c.RelatedProducts(context.Background(), "product-1", 0)

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "product-2", products[0].ID)
}
