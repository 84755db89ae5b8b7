package cart

import (
	"context"
	"sync"
	"time"

	"pharmabill/backend/internal/domain"
)

// Store holds the working cart for each POS terminal between requests.
// The cart is a scratch pad for the counter screen; checkout never trusts
// it for stock or price and always re-reads inside its own transaction.
type Store interface {
	Get(ctx context.Context, terminalID string) (*domain.Cart, bool, error)
	Save(ctx context.Context, cart domain.Cart, ttl time.Duration) error
	Delete(ctx context.Context, terminalID string) error
}

// MemoryStore is the dev-mode cart backend.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]domain.Cart)}
}

func (s *MemoryStore) Get(_ context.Context, terminalID string) (*domain.Cart, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[terminalID]
	if !ok {
		return nil, false, nil
	}
	items := make([]domain.CartItem, len(c.Items))
	copy(items, c.Items)
	c.Items = items
	return &c, true, nil
}

func (s *MemoryStore) Save(_ context.Context, cart domain.Cart, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.CartItem, len(cart.Items))
	copy(items, cart.Items)
	cart.Items = items
	s.carts[cart.TerminalID] = cart
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, terminalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, terminalID)
	return nil
}
