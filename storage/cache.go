package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
)

// EventCache wraps an event store with Redis-backed caching for the
// hot reads: single-event lookups and the first page of the active
// listing. Cached reads may be a little stale; nothing gating a
// mutation ever depends on them, the conditional writes see the store
// directly. Every write path evicts.
type EventCache struct {
	base  domain.EventStore
	redis *redis.Client
	ttl   time.Duration
}

// NewEventCache creates a caching wrapper using the provided Redis
// client and TTL. A nil client disables caching transparently.
func NewEventCache(base domain.EventStore, client *redis.Client, ttl time.Duration) *EventCache {
	if base == nil {
		panic("storage.NewEventCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &EventCache{base: base, redis: client, ttl: ttl}
}

func eventCacheKey(id string) string { return "event:" + id }

const activeListCacheKey = "events:active:first"

func (c *EventCache) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	if ev, ok := c.loadEvent(ctx, id); ok {
		return ev, nil
	}
	ev, err := c.base.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev != nil {
		c.storeEvent(ctx, *ev)
	}
	return ev, nil
}

func (c *EventCache) ListActive(ctx context.Context, from time.Time, cursor string, limit int) ([]domain.Event, string, error) {
	// Only the unpaged first request is worth caching; cursored pages
	// are rare and cheap enough to pass through.
	cacheable := cursor == ""
	if cacheable {
		if events, next, ok := c.loadActiveList(ctx); ok {
			return events, next, nil
		}
	}
	events, next, err := c.base.ListActive(ctx, from, cursor, limit)
	if err != nil {
		return nil, "", err
	}
	if cacheable {
		c.storeActiveList(ctx, events, next)
	}
	return events, next, nil
}

func (c *EventCache) InsertEvent(ctx context.Context, ev domain.Event) error {
	if err := c.base.InsertEvent(ctx, ev); err != nil {
		return err
	}
	c.evict(ctx, ev.ID)
	return nil
}

func (c *EventCache) ReplaceEvent(ctx context.Context, ev domain.Event, expectedVersion int64) error {
	if err := c.base.ReplaceEvent(ctx, ev, expectedVersion); err != nil {
		return err
	}
	c.evict(ctx, ev.ID)
	return nil
}

func (c *EventCache) ReserveSeat(ctx context.Context, id string) (*domain.Event, error) {
	ev, err := c.base.ReserveSeat(ctx, id)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, id)
	return ev, nil
}

func (c *EventCache) ReleaseSeat(ctx context.Context, id string) error {
	if err := c.base.ReleaseSeat(ctx, id); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *EventCache) MarkEventCancelled(ctx context.Context, id string, at time.Time) error {
	if err := c.base.MarkEventCancelled(ctx, id, at); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *EventCache) MarkEventArchived(ctx context.Context, id string, at time.Time) error {
	if err := c.base.MarkEventArchived(ctx, id, at); err != nil {
		return err
	}
	c.evict(ctx, id)
	return nil
}

func (c *EventCache) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Event, error) {
	return c.base.ListEndedBefore(ctx, cutoff, limit)
}

type cachedActiveList struct {
	Events []domain.Event `json:"events"`
	Next   string         `json:"next,omitempty"`
}

func (c *EventCache) loadEvent(ctx context.Context, id string) (*domain.Event, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, eventCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, eventCacheKey(id)).Err()
		}
		return nil, false
	}
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		_ = c.redis.Del(ctx, eventCacheKey(id)).Err()
		return nil, false
	}
	return &ev, true
}

func (c *EventCache) storeEvent(ctx context.Context, ev domain.Event) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, eventCacheKey(ev.ID), data, c.ttl).Err()
}

func (c *EventCache) loadActiveList(ctx context.Context) ([]domain.Event, string, bool) {
	if c.redis == nil {
		return nil, "", false
	}
	data, err := c.redis.Get(ctx, activeListCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, activeListCacheKey).Err()
		}
		return nil, "", false
	}
	var cached cachedActiveList
	if err := json.Unmarshal(data, &cached); err != nil {
		_ = c.redis.Del(ctx, activeListCacheKey).Err()
		return nil, "", false
	}
	return cached.Events, cached.Next, true
}

func (c *EventCache) storeActiveList(ctx context.Context, events []domain.Event, next string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(cachedActiveList{Events: events, Next: next})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, activeListCacheKey, data, c.ttl).Err()
}

func (c *EventCache) evict(ctx context.Context, id string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, eventCacheKey(id), activeListCacheKey).Result()
}
