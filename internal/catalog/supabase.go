package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/tranex/internal/domain"
	"github.com/fjod/tranex/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// SupabaseCatalog reads products and categories through the PostgREST API
// exposed by a hosted Supabase project.
type SupabaseCatalog struct {
	baseURL string
	anonKey string
	client  *http.Client
	breaker *circuitbreaker.Breaker
	log     *zap.Logger
}

func NewSupabaseCatalog(baseURL, anonKey string, timeout time.Duration, breaker *circuitbreaker.Breaker, log *zap.Logger) *SupabaseCatalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &SupabaseCatalog{
		baseURL: strings.TrimRight(baseURL, "/"),
		anonKey: anonKey,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: breaker,
		log:     log,
	}
}

// APIError is a non-2xx PostgREST reply.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("supabase: status %d", e.Status)
	}
	return fmt.Sprintf("supabase: status %d: %s", e.Status, e.Message)
}

// productRow mirrors the products table. Ids may be text or numeric columns.
type productRow struct {
	ID               json.RawMessage      `json:"id"`
	Name             string               `json:"name"`
	Description      string               `json:"description"`
	ShortDescription string               `json:"short_description"`
	Price            flexNumber           `json:"price"`
	OriginalPrice    flexNumber           `json:"original_price"`
	Category         string               `json:"category"`
	Brand            string               `json:"brand"`
	SKU              string               `json:"sku"`
	StockQuantity    int                  `json:"stock_quantity"`
	Images           domain.ProductImages `json:"images"`
	ImageURL         string               `json:"image_url"`
	IsActive         *bool                `json:"is_active"`
	CreatedAt        string               `json:"created_at"`
}

func (r productRow) toDomain() (domain.Product, error) {
	id, err := rawID(r.ID)
	if err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{
		ID:               id,
		Name:             r.Name,
		Description:      r.Description,
		ShortDescription: r.ShortDescription,
		Category:         r.Category,
		Brand:            r.Brand,
		SKU:              r.SKU,
		StockQuantity:    r.StockQuantity,
		Images:           r.Images,
		ImageURL:         r.ImageURL,
		IsActive:         r.IsActive == nil || *r.IsActive,
		CreatedAt:        parseTimestamp(r.CreatedAt),
	}
	if p.Price, err = decimalFromNumber(string(r.Price)); err != nil {
		return domain.Product{}, fmt.Errorf("product %s: price: %w", id, err)
	}
	if r.OriginalPrice != "" {
		if p.OriginalPrice, err = decimalFromNumber(string(r.OriginalPrice)); err != nil {
			return domain.Product{}, fmt.Errorf("product %s: original_price: %w", id, err)
		}
	}
	return p, nil
}

// flexNumber accepts numeric columns rendered either as JSON numbers or as
// strings, which is how PostgREST returns numeric(p,s) values.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = flexNumber(s)
	default:
		*n = flexNumber(b)
	}
	return nil
}

// timestamptz columns carry an offset, plain timestamp columns do not.
var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func rawID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("product row without id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("decode product id: %w", err)
		}
		return s, nil
	}
	return string(raw), nil
}

func (c *SupabaseCatalog) ListProducts(ctx context.Context, opts ListOptions) ([]domain.Product, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("is_active", "eq.true")
	if opts.Category != "" {
		name, found, err := c.categoryName(ctx, opts.Category)
		if err != nil {
			return nil, err
		}
		if !found {
			return []domain.Product{}, nil
		}
		q.Set("category", "eq."+name)
	}
	if opts.Search != "" {
		pattern := ilikePattern(opts.Search)
		q.Set("or", "(name.ilike."+pattern+",description.ilike."+pattern+")")
	}
	if opts.MaxPrice.Valid {
		q.Set("price", "lte."+opts.MaxPrice.Decimal.String())
	}
	q.Set("order", opts.SortBy+"."+opts.SortDirection)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	var rows []productRow
	if err := c.get(ctx, "products", q, &rows); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			c.log.Warn("skipping malformed product row", zap.Error(err))
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

func (c *SupabaseCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", "eq."+id)
	q.Set("limit", "1")

	var rows []productRow
	if err := c.get(ctx, "products", q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrProductNotFound
	}
	p, err := rows[0].toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *SupabaseCatalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("is_active", "eq.true")
	q.Set("order", "sort_order.asc")

	categories := make([]domain.Category, 0)
	if err := c.get(ctx, "categories", q, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// reviewRow mirrors the reviews table.
type reviewRow struct {
	ID        json.RawMessage `json:"id"`
	ProductID json.RawMessage `json:"product_id"`
	UserName  string          `json:"user_name"`
	Rating    int             `json:"rating"`
	Comment   string          `json:"comment"`
	CreatedAt string          `json:"created_at"`
}

func (c *SupabaseCatalog) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("product_id", "eq."+productID)
	q.Set("order", "created_at.desc")

	var rows []reviewRow
	if err := c.get(ctx, "reviews", q, &rows); err != nil {
		return nil, err
	}

	reviews := make([]domain.Review, 0, len(rows))
	for _, r := range rows {
		id, err := rawID(r.ID)
		if err != nil {
			c.log.Warn("skipping malformed review row", zap.Error(err))
			continue
		}
		reviews = append(reviews, domain.Review{
			ID:        id,
			ProductID: productID,
			UserName:  r.UserName,
			Rating:    r.Rating,
			Comment:   r.Comment,
			CreatedAt: parseTimestamp(r.CreatedAt),
		})
	}
	return reviews, nil
}

func (c *SupabaseCatalog) RelatedProducts(ctx context.Context, productID string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	q := url.Values{}
	q.Set("select", "*")
	q.Set("is_active", "eq.true")
	q.Set("id", "neq."+productID)
	q.Set("limit", strconv.Itoa(limit))

	var rows []productRow
	if err := c.get(ctx, "products", q, &rows); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		p, err := r.toDomain()
		if err != nil {
			c.log.Warn("skipping malformed product row", zap.Error(err))
			continue
		}
		products = append(products, p)
	}
	return products, nil
}

// ilikePattern quotes a search term for a PostgREST or=() filter, where
// commas and parentheses would otherwise split the expression.
func ilikePattern(term string) string {
	term = strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(term)
	return `"*` + term + `*"`
}

func (c *SupabaseCatalog) categoryName(ctx context.Context, slug string) (string, bool, error) {
	q := url.Values{}
	q.Set("select", "name")
	q.Set("slug", "eq."+slug)
	q.Set("limit", "1")

	var rows []struct {
		Name string `json:"name"`
	}
	if err := c.get(ctx, "categories", q, &rows); err != nil {
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Name, true, nil
}

func (c *SupabaseCatalog) get(ctx context.Context, table string, q url.Values, out any) error {
	body, err := circuitbreaker.Execute(c.breaker, func() ([]byte, error) {
		return c.do(ctx, table, q)
	})
	if err != nil {
		return fmt.Errorf("query %s: %w", table, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", table, err)
	}
	return nil
}

func (c *SupabaseCatalog) do(ctx context.Context, table string, q url.Values) ([]byte, error) {
	endpoint := c.baseURL + "/rest/v1/" + table + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return nil, apiErr
	}
	return body, nil
}
