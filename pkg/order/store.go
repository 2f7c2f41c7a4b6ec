package order

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence boundary for orders. Implementations return
// copies; only the engine mutates under its per-entity serialization.
type Store interface {
	// Get returns the order by ID or ErrOrderNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)

	// GetByProviderRef resolves a webhook's provider-side order ID back to
	// our entity. Returns ErrOrderNotFound when unknown.
	GetByProviderRef(ctx context.Context, providerSlug, providerOrderID string) (*Order, error)

	// Save creates or updates an order, keyed by ID.
	Save(ctx context.Context, o *Order) error
}

// MemoryStore is an in-process Store for tests and single-instance use.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[uuid.UUID]Order)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o.Items = append([]LineItem(nil), o.Items...)
	o.Transactions = append([]Transaction(nil), o.Transactions...)
	return &o, nil
}

func (s *MemoryStore) GetByProviderRef(_ context.Context, providerSlug, providerOrderID string) (*Order, error) {
	if providerOrderID == "" {
		return nil, ErrOrderNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.ProviderSlug == providerSlug && o.ProviderOrderID == providerOrderID {
			found := o
			found.Items = append([]LineItem(nil), o.Items...)
			found.Transactions = append([]Transaction(nil), o.Transactions...)
			return &found, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (s *MemoryStore) Save(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *o
	stored.Items = append([]LineItem(nil), o.Items...)
	stored.Transactions = append([]Transaction(nil), o.Transactions...)
	s.orders[o.ID] = stored
	return nil
}
