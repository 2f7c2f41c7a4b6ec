package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore records processed provider event IDs so duplicate deliveries
// are acknowledged without reprocessing. Events are checked before
// processing and marked only after the engines applied them; the tiny
// window where two concurrent deliveries both pass the check is covered by
// the engines' idempotent transitions.
type DedupStore interface {
	// Seen reports whether the event was already fully processed.
	Seen(ctx context.Context, providerSlug, eventID string) (bool, error)

	// MarkProcessed records the event after successful processing. The
	// entry expires after ttl; providers stop redelivering long before any
	// sane ttl elapses.
	MarkProcessed(ctx context.Context, providerSlug, eventID string, ttl time.Duration) error
}

// MemoryDedup is an in-process DedupStore for tests and single-instance
// deployments.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]time.Time)}
}

func (d *MemoryDedup) Seen(_ context.Context, providerSlug, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	expiry, ok := d.seen[providerSlug+":"+eventID]
	return ok && time.Now().Before(expiry), nil
}

func (d *MemoryDedup) MarkProcessed(_ context.Context, providerSlug, eventID string, ttl time.Duration) error {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.seen[providerSlug+":"+eventID] = now.Add(ttl)

	// Opportunistic cleanup keeps the map from growing unbounded
	for k, expiry := range d.seen {
		if now.After(expiry) {
			delete(d.seen, k)
		}
	}
	return nil
}

// RedisDedup shares the processed-event set across instances so a duplicate
// delivered to another replica is still skipped.
type RedisDedup struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisDedup(client redis.UniversalClient) *RedisDedup {
	return &RedisDedup{client: client, prefix: "billforge:webhook:"}
}

func (d *RedisDedup) Seen(ctx context.Context, providerSlug, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+providerSlug+":"+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDedup) MarkProcessed(ctx context.Context, providerSlug, eventID string, ttl time.Duration) error {
	return d.client.Set(ctx, d.prefix+providerSlug+":"+eventID, 1, ttl).Err()
}
