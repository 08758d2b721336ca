package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKeyPrefix = "marketdata:snapshot:"

// SnapshotCache keeps the latest book snapshot per symbol in redis so feed
// consumers can resync after a gap without touching the matching lane.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		client: client,
		ttl:    ttl,
	}
}

// OnEvent implements Sink. Only book events carry a full snapshot.
func (c *SnapshotCache) OnEvent(ctx context.Context, ev Event) error {
	if ev.Type != EventTypeBook || ev.Snapshot == nil {
		return nil
	}

	b, err := json.Marshal(ev.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKeyPrefix+ev.Symbol, b, c.ttl).Err()
}

// Get loads the cached snapshot for a symbol, or nil when none is cached.
func (c *SnapshotCache) Get(ctx context.Context, symbol string) (*Snapshot, error) {
	b, err := c.client.Get(ctx, snapshotKeyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
