package cart

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/tranex/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Registry hands out one Store per browser session, loading it from storage
// on first use. Stores idle longer than the eviction threshold are dropped
// from memory by Evict; their carts stay in storage and reload on next use.
type Registry struct {
	storage   storage.Storage
	keyPrefix string
	opts      []Option
	log       *zap.Logger
	now       func() time.Time

	mu        sync.RWMutex
	stores    map[string]*entry
	factories []func(sessionID string) Subscriber

	sfg singleflight.Group // one load per session under concurrent first requests
}

type entry struct {
	store    *Store
	lastUsed atomic.Int64 // unix nanos
}

func (e *entry) touch(t time.Time) {
	e.lastUsed.Store(t.UnixNano())
}

func NewRegistry(st storage.Storage, keyPrefix string, log *zap.Logger, opts ...Option) *Registry {
	if keyPrefix == "" {
		keyPrefix = DefaultStorageKey
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		storage:   st,
		keyPrefix: keyPrefix,
		opts:      append([]Option{WithLogger(log)}, opts...),
		log:       log,
		now:       time.Now,
		stores:    make(map[string]*entry),
	}
}

// OnNewStore registers a factory whose subscriber is attached to every store
// loaded afterwards.
func (r *Registry) OnNewStore(factory func(sessionID string) Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = append(r.factories, factory)
}

const loadTimeout = 5 * time.Second

// Key is the storage key holding sessionID's cart.
func (r *Registry) Key(sessionID string) string {
	return r.keyPrefix + ":" + sessionID
}

// Get returns the session's store, loading it if needed.
func (r *Registry) Get(ctx context.Context, sessionID string) *Store {
	if e, ok := r.lookup(sessionID); ok {
		e.touch(r.now())
		return e.store
	}

	v, _, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		if e, ok := r.lookup(sessionID); ok {
			return e, nil
		}

		// the store outlives this request, so its load must not be cut short by it
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		s := Load(loadCtx, r.storage, r.Key(sessionID), r.opts...)

		r.mu.Lock()
		defer r.mu.Unlock()
		for _, f := range r.factories {
			s.Subscribe(f(sessionID))
		}
		e := &entry{store: s}
		r.stores[sessionID] = e
		r.log.Debug("cart loaded", zap.String("session_id", sessionID), zap.Int("items", len(s.items)))
		return e, nil
	})
	e := v.(*entry)
	e.touch(r.now())
	return e.store
}

// ClearCart empties the session's cart, e.g. after its checkout completed.
// A cart that is not loaded is cleared in storage without loading it.
func (r *Registry) ClearCart(ctx context.Context, sessionID string) {
	if e, ok := r.lookup(sessionID); ok {
		e.store.Clear(ctx)
		return
	}
	if err := r.storage.Set(ctx, r.Key(sessionID), "[]"); err != nil {
		r.log.Error("cart clear failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Evict drops stores not used for longer than idle and returns how many were
// dropped. idle must comfortably exceed the longest request so a store is
// never evicted while a request still mutates it.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for sid, e := range r.stores {
		if e.lastUsed.Load() < cutoff {
			delete(r.stores, sid)
			n++
		}
	}
	return n
}

// RunJanitor calls Evict every interval until ctx is cancelled. A
// non-positive interval or idle disables eviction.
func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Evict(idle); n > 0 {
				r.log.Debug("evicted idle carts", zap.Int("count", n), zap.Int("loaded", r.Len()))
			}
		}
	}
}

// Len is the number of loaded sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

func (r *Registry) lookup(sessionID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.stores[sessionID]
	return e, ok
}
