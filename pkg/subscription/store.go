package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence boundary for subscriptions. Implementations must
// return copies so callers never mutate stored state outside the engine's
// per-entity serialization.
type Store interface {
	// Get returns the subscription by ID or ErrSubscriptionNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// GetByProviderRef resolves a webhook's provider-side subscription ID
	// back to our entity. Returns ErrSubscriptionNotFound when unknown.
	GetByProviderRef(ctx context.Context, providerSlug, providerSubscriptionID string) (*Subscription, error)

	// Save creates or updates a subscription, keyed by ID.
	Save(ctx context.Context, sub *Subscription) error

	// HasActiveLocal reports whether the user already holds a non-terminal
	// locally managed subscription. Backs the creation-time duplicate check.
	HasActiveLocal(ctx context.Context, userID uuid.UUID) (bool, error)

	// ListExpiredLocal returns locally managed, non-terminal subscriptions
	// whose EndsAt has passed as of now.
	ListExpiredLocal(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ListExpiringBetween returns non-terminal subscriptions whose cycle or
	// local end falls inside [from, to). Feeds the reminder job.
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*Subscription, error)
}

// MemoryStore is an in-process Store for tests and single-instance use.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]Subscription)}
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *MemoryStore) GetByProviderRef(_ context.Context, providerSlug, providerSubscriptionID string) (*Subscription, error) {
	if providerSubscriptionID == "" {
		return nil, ErrSubscriptionNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.ProviderSlug == providerSlug && sub.ProviderSubscriptionID == providerSubscriptionID {
			found := sub
			return &found, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) Save(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) HasActiveLocal(_ context.Context, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subs {
		if sub.UserID == userID && sub.LocalManaged && !sub.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListExpiredLocal(_ context.Context, now time.Time) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*Subscription
	for _, sub := range s.subs {
		if sub.LocalManaged && !sub.Status.Terminal() && sub.EndsAt != nil && sub.EndsAt.Before(now) {
			found := sub
			expired = append(expired, &found)
		}
	}
	return expired, nil
}

func (s *MemoryStore) ListExpiringBetween(_ context.Context, from, to time.Time) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expiring []*Subscription
	for _, sub := range s.subs {
		if sub.Status.Terminal() {
			continue
		}
		endsAt := sub.CycleEndsAt
		if sub.LocalManaged && sub.EndsAt != nil {
			endsAt = *sub.EndsAt
		}
		if !endsAt.Before(from) && endsAt.Before(to) {
			found := sub
			expiring = append(expiring, &found)
		}
	}
	return expiring, nil
}
