package discount

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence boundary for discounts and their codes.
type Store interface {
	// ResolveCode returns the code and its parent discount, or
	// ErrCodeNotFound / ErrDiscountNotFound.
	ResolveCode(ctx context.Context, code string) (*Discount, *RedemptionCode, error)

	// Redeem increments the code's redemption counter. The increment and
	// the limit check are one atomic operation: of N concurrent redeems on
	// a code with one redemption left, exactly one succeeds and the rest
	// get ErrRedemptionExceeded.
	Redeem(ctx context.Context, code string) error
}

// MemoryStore is an in-process Store for tests and single-instance use.
type MemoryStore struct {
	mu        sync.Mutex
	discounts map[uuid.UUID]Discount
	codes     map[string]RedemptionCode
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		discounts: make(map[uuid.UUID]Discount),
		codes:     make(map[string]RedemptionCode),
	}
}

// AddDiscount registers a discount and its codes.
func (s *MemoryStore) AddDiscount(d Discount, codes ...RedemptionCode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.discounts[d.ID] = d
	for _, code := range codes {
		code.DiscountID = d.ID
		s.codes[normalizeCode(code.Code)] = code
	}
}

func (s *MemoryStore) ResolveCode(_ context.Context, code string) (*Discount, *RedemptionCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.codes[normalizeCode(code)]
	if !ok {
		return nil, nil, ErrCodeNotFound
	}
	d, ok := s.discounts[rc.DiscountID]
	if !ok {
		return nil, nil, ErrDiscountNotFound
	}
	return &d, &rc, nil
}

func (s *MemoryStore) Redeem(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.codes[normalizeCode(code)]
	if !ok {
		return ErrCodeNotFound
	}
	if rc.Exhausted() {
		return ErrRedemptionExceeded
	}
	rc.Redemptions++
	s.codes[normalizeCode(code)] = rc
	return nil
}

// normalizeCode makes code lookup case-insensitive; codes are shown to
// users in marketing copy with arbitrary casing.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
