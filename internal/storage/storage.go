package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Storage is a durable string-keyed blob store, the server-side counterpart of
// the browser's local storage.
type Storage interface {
	// Get returns ErrNotFound when key holds no value.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}
