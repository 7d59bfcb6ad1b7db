package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// dedup:webhook:{event_id} -> 1
	keyWebhookDedup = "dedup:webhook:%s"

	dedupTTL = 48 * time.Hour
)

// EventDedup is a fast-path filter for redelivered webhook events. It is an
// optimization only: the forward-only status guard in the order store remains
// the source of truth, so a cache miss or Redis outage is always safe.
type EventDedup struct {
	rdb *redis.Client
}

func NewEventDedup(addr string) *EventDedup {
	return &EventDedup{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Seen reports whether the event id was already processed. Errors are
// reported as unseen so delivery falls through to the store guard.
func (d *EventDedup) Seen(ctx context.Context, eventID string) bool {
	n, err := d.rdb.Exists(ctx, fmt.Sprintf(keyWebhookDedup, eventID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Mark records the event id after successful processing.
func (d *EventDedup) Mark(ctx context.Context, eventID string) {
	_ = d.rdb.Set(ctx, fmt.Sprintf(keyWebhookDedup, eventID), "1", dedupTTL).Err()
}

func (d *EventDedup) Close() error {
	return d.rdb.Close()
}
