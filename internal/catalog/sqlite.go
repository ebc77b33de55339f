package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/tranex/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// SQLiteCatalog is the local catalog used when no hosted database is configured.
type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every pooled connection to ":memory:" would otherwise see its own empty database
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func (c *SQLiteCatalog) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const productColumns = `p.id, p.name, p.description, p.short_description, p.price, p.original_price,
	p.category, p.brand, p.sku, p.stock_quantity, p.image_main, p.image_gallery, p.is_active, p.created_at`

// LIKE is case-insensitive for ASCII in SQLite; the wildcards a shopper
// types are matched literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

var orderExpr = map[string]string{
	SortCreatedAt: "p.created_at",
	SortPrice:     "CAST(p.price AS REAL)",
	SortName:      "p.name",
}

func (c *SQLiteCatalog) ListProducts(ctx context.Context, opts ListOptions) ([]domain.Product, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString("SELECT " + productColumns + " FROM products p")
	if opts.Category != "" {
		query.WriteString(" JOIN categories c ON c.name = p.category AND c.slug = ?")
		args = append(args, opts.Category)
	}
	query.WriteString(" WHERE p.is_active = 1")
	if opts.Search != "" {
		pattern := "%" + likeEscaper.Replace(opts.Search) + "%"
		query.WriteString(` AND (p.name LIKE ? ESCAPE '\' OR p.description LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if opts.MaxPrice.Valid {
		query.WriteString(" AND CAST(p.price AS REAL) <= ?")
		args = append(args, opts.MaxPrice.Decimal.InexactFloat64())
	}
	fmt.Fprintf(&query, " ORDER BY %s %s, p.id", orderExpr[opts.SortBy], strings.ToUpper(opts.SortDirection))

	limit := -1
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	query.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, opts.Offset)

	rows, err := c.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (c *SQLiteCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := c.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products p WHERE p.id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *SQLiteCatalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, slug, description, sort_order, is_active
		FROM categories
		WHERE is_active = 1
		ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.Category, 0)
	for rows.Next() {
		var cat domain.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Slug, &cat.Description, &cat.SortOrder, &cat.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, cat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return categories, nil
}

func (c *SQLiteCatalog) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, product_id, user_name, rating, comment, created_at
		FROM reviews
		WHERE product_id = ?
		ORDER BY created_at DESC, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]domain.Review, 0)
	for rows.Next() {
		var r domain.Review
		if err := rows.Scan(&r.ID, &r.ProductID, &r.UserName, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return reviews, nil
}

func (c *SQLiteCatalog) RelatedProducts(ctx context.Context, productID string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	rows, err := c.db.QueryContext(ctx,
		"SELECT "+productColumns+" FROM products p WHERE p.is_active = 1 AND p.id <> ? ORDER BY p.created_at DESC, p.id LIMIT ?",
		productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query related products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (domain.Product, error) {
	var (
		p       domain.Product
		gallery string
	)
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.ShortDescription,
		&p.Price,
		&p.OriginalPrice,
		&p.Category,
		&p.Brand,
		&p.SKU,
		&p.StockQuantity,
		&p.Images.Main,
		&gallery,
		&p.IsActive,
		&p.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return p, err
	}
	if err != nil {
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	if gallery != "" {
		if err := json.Unmarshal([]byte(gallery), &p.Images.Gallery); err != nil {
			return p, fmt.Errorf("failed to decode gallery for %s: %w", p.ID, err)
		}
	}
	return p, nil
}
