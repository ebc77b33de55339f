package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage stores values as plain redis strings under a key prefix.
type RedisStorage struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStorage returns a store writing keys as prefix+key. A zero ttl keeps
// values forever.
func NewRedisStorage(client *redis.Client, prefix string, ttl time.Duration) *RedisStorage {
	return &RedisStorage{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	return v, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStorage) key(k string) string {
	return r.prefix + k
}
