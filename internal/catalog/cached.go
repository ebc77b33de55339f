package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/tranex/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var errCacheMiss = errors.New("cache miss")

// CachedCatalog is a Redis read-through cache in front of another Catalog.
// Product listings depend on paging and filter options and are not cached,
// nor are reviews and related products.
type CachedCatalog struct {
	next    Catalog
	client  *redis.Client
	baseTTL time.Duration
	log     *zap.Logger
	sfg     singleflight.Group
}

func NewCachedCatalog(next Catalog, client *redis.Client, baseTTL time.Duration, log *zap.Logger) *CachedCatalog {
	if baseTTL <= 0 {
		baseTTL = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedCatalog{
		next:    next,
		client:  client,
		baseTTL: baseTTL,
		log:     log,
	}
}

func (c *CachedCatalog) ListProducts(ctx context.Context, opts ListOptions) ([]domain.Product, error) {
	return c.next.ListProducts(ctx, opts)
}

func (c *CachedCatalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	key := productKey(id)
	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		var cached domain.Product
		err := c.get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, errCacheMiss) {
			c.log.Warn("catalog cache get error", zap.String("key", key), zap.Error(err))
		}

		p, err := c.next.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*domain.Product)
	return &p, nil
}

func (c *CachedCatalog) ListCategories(ctx context.Context) ([]domain.Category, error) {
	const key = "catalog:categories"
	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		var cached []domain.Category
		err := c.get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, errCacheMiss) {
			c.log.Warn("catalog cache get error", zap.String("key", key), zap.Error(err))
		}

		categories, err := c.next.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, categories)
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]domain.Category)
	return append([]domain.Category(nil), shared...), nil
}

func (c *CachedCatalog) ListReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	return c.next.ListReviews(ctx, productID)
}

func (c *CachedCatalog) RelatedProducts(ctx context.Context, productID string, limit int) ([]domain.Product, error) {
	return c.next.RelatedProducts(ctx, productID, limit)
}

// Invalidate drops a cached product, e.g. after an admin edit.
func (c *CachedCatalog) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, productKey(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *CachedCatalog) get(ctx context.Context, key string, out any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return errCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func (c *CachedCatalog) set(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("catalog cache marshal error", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl()).Err(); err != nil {
		c.log.Warn("catalog cache set error", zap.String("key", key), zap.Error(err))
	}
}

// ttl spreads expiry over an extra fifth of the base TTL so entries cached
// together do not expire together.
func (c *CachedCatalog) ttl() time.Duration {
	spread := int64(c.baseTTL / 5)
	if spread <= 0 {
		return c.baseTTL
	}
	return c.baseTTL + time.Duration(rand.Int63n(spread))
}

func productKey(id string) string {
	return fmt.Sprintf("catalog:product:%s", id)
}
