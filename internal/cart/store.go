package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/tranex/internal/domain"
	"github.com/fjod/tranex/internal/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultStorageKey = "tranex-cart"

// Subscriber receives the cart's total item count after every mutation.
type Subscriber func(count int)

// Store owns one shopping cart. Every mutation is persisted to storage before
// subscribers are notified; persistence failures are logged and the in-memory
// cart stays authoritative for the session.
//
// Subscribers run after the store lock is released, in registration order, so
// a subscriber may read the store. Deliveries are serialised in mutation
// order; a subscriber must not mutate the store it is subscribed to.
type Store struct {
	mu      sync.Mutex
	items   []LineItem
	storage storage.Storage
	key     string

	// notifyMu is taken before mu is released so deliveries keep mutation order.
	notifyMu sync.Mutex

	subMu       sync.RWMutex
	subscribers []Subscriber

	log          *zap.Logger
	writeTimeout time.Duration
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithWriteTimeout bounds every storage write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.writeTimeout = d
	}
}

// Load builds a store from whatever is persisted under key. Missing, unreadable
// or corrupt data yields an empty cart.
func Load(ctx context.Context, st storage.Storage, key string, opts ...Option) *Store {
	s := &Store{
		storage:      st,
		key:          key,
		log:          zap.NewNop(),
		writeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("cart_key", key))

	raw, err := st.Get(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return s
	case err != nil:
		s.log.Warn("cart load failed, starting empty", zap.Error(err))
		return s
	}

	items, dropped, err := decodeItems(raw)
	if err != nil {
		s.log.Warn("persisted cart is corrupt, starting empty", zap.Error(err))
		return s
	}
	if dropped > 0 {
		s.log.Warn("dropped unusable cart entries", zap.Int("dropped", dropped))
	}
	s.items = items
	return s
}

// AddItem adds quantity of p to the cart, merging with an existing line for the
// same product id. Only product validation errors are returned.
func (s *Store) AddItem(ctx context.Context, p domain.Product, quantity int) error {
	item, err := NewLineItem(p, quantity)
	if err != nil {
		return err
	}
	s.mutate(ctx, func() bool {
		if i := indexOf(s.items, item.ID); i >= 0 {
			s.items[i].Quantity += item.Quantity
		} else {
			s.items = append(s.items, item)
		}
		return true
	})
	return nil
}

// RemoveItem drops the line for productID. A missing id still persists and
// notifies.
func (s *Store) RemoveItem(ctx context.Context, productID string) {
	s.mutate(ctx, func() bool {
		s.remove(productID)
		return true
	})
}

// UpdateQuantity sets the quantity for productID. A quantity of zero or less
// removes the line. Unknown ids are ignored.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) {
	s.mutate(ctx, func() bool {
		i := indexOf(s.items, productID)
		if i < 0 {
			return false
		}
		if quantity <= 0 {
			s.remove(productID)
			return true
		}
		s.items[i].Quantity = quantity
		return true
	})
}

// Adjust moves the quantity for productID by delta without going below one.
func (s *Store) Adjust(ctx context.Context, productID string, delta int) {
	s.mutate(ctx, func() bool {
		i := indexOf(s.items, productID)
		if i < 0 {
			return false
		}
		s.items[i].Quantity = max(1, s.items[i].Quantity+delta)
		return true
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) {
	s.mutate(ctx, func() bool {
		s.items = nil
		return true
	})
}

// Items returns a copy of the cart lines in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalPrice(s.items)
}

func (s *Store) TotalItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalItemCount(s.items)
}

// Subscribe registers fn for the lifetime of the store.
func (s *Store) Subscribe(fn Subscriber) {
	if fn == nil {
		return
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) mutate(ctx context.Context, fn func() bool) {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return
	}
	s.persist(ctx)
	count := totalItemCount(s.items)
	s.notifyMu.Lock()
	s.mu.Unlock()

	defer s.notifyMu.Unlock()
	s.notify(count)
}

func (s *Store) remove(productID string) {
	kept := s.items[:0]
	for _, it := range s.items {
		if it.ID != productID {
			kept = append(kept, it)
		}
	}
	s.items = kept
}

// persist must be called with s.mu held.
func (s *Store) persist(ctx context.Context) {
	raw, err := encodeItems(s.items)
	if err != nil {
		s.log.Error("cart encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	if err := s.storage.Set(ctx, s.key, raw); err != nil {
		s.log.Error("cart persist failed, keeping in-memory state", zap.Error(err))
	}
}

func (s *Store) notify(count int) {
	s.subMu.RLock()
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.RUnlock()

	for _, fn := range subs {
		s.call(fn, count)
	}
}

func (s *Store) call(fn Subscriber, count int) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cart subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn(count)
}

func totalPrice(items []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total())
	}
	return total
}

func totalItemCount(items []LineItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
