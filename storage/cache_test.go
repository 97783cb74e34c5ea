package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
)

type stubEventStore struct {
	getEventFn    func(ctx context.Context, id string) (*domain.Event, error)
	listActiveFn  func(ctx context.Context, from time.Time, cursor string, limit int) ([]domain.Event, string, error)
	reserveSeatFn func(ctx context.Context, id string) (*domain.Event, error)
	releaseSeatFn func(ctx context.Context, id string) error
}

func (s *stubEventStore) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	if s.getEventFn == nil {
		return nil, errors.New("unexpected GetEvent call")
	}
	return s.getEventFn(ctx, id)
}

func (s *stubEventStore) InsertEvent(ctx context.Context, ev domain.Event) error { return nil }

func (s *stubEventStore) ReplaceEvent(ctx context.Context, ev domain.Event, expectedVersion int64) error {
	return nil
}

func (s *stubEventStore) ReserveSeat(ctx context.Context, id string) (*domain.Event, error) {
	if s.reserveSeatFn == nil {
		return nil, errors.New("unexpected ReserveSeat call")
	}
	return s.reserveSeatFn(ctx, id)
}

func (s *stubEventStore) ReleaseSeat(ctx context.Context, id string) error {
	if s.releaseSeatFn == nil {
		return errors.New("unexpected ReleaseSeat call")
	}
	return s.releaseSeatFn(ctx, id)
}

func (s *stubEventStore) MarkEventCancelled(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (s *stubEventStore) MarkEventArchived(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (s *stubEventStore) ListActive(ctx context.Context, from time.Time, cursor string, limit int) ([]domain.Event, string, error) {
	if s.listActiveFn == nil {
		return nil, "", errors.New("unexpected ListActive call")
	}
	return s.listActiveFn(ctx, from, cursor, limit)
}

func (s *stubEventStore) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Event, error) {
	return nil, nil
}

func newCacheForTest(t *testing.T, base domain.EventStore) (*EventCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewEventCache(base, client, time.Minute), mr
}

func TestCacheGetEventMissThenHit(t *testing.T) {
	ctx := context.Background()
	expected := domain.Event{ID: "ev-1", Title: "CMIS Mixer", Version: 3}

	var calls int
	cache, mr := newCacheForTest(t, &stubEventStore{
		getEventFn: func(ctx context.Context, id string) (*domain.Event, error) {
			calls++
			if id != "ev-1" {
				t.Fatalf("unexpected id: %s", id)
			}
			ev := expected
			return &ev, nil
		},
	})

	ev, err := cache.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if ev.Title != expected.Title || ev.Version != expected.Version {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if calls != 1 {
		t.Fatalf("expected 1 backend call, got %d", calls)
	}
	if ttl := mr.TTL(eventCacheKey("ev-1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if cached.Version != expected.Version {
		t.Fatalf("unexpected cached event: %+v", cached)
	}
	if calls != 1 {
		t.Fatalf("cached read hit the backend, calls=%d", calls)
	}
}

func TestCacheDoesNotCacheAbsentEvents(t *testing.T) {
	ctx := context.Background()
	var calls int
	cache, mr := newCacheForTest(t, &stubEventStore{
		getEventFn: func(ctx context.Context, id string) (*domain.Event, error) {
			calls++
			return nil, nil
		},
	})

	for i := 0; i < 2; i++ {
		ev, err := cache.GetEvent(ctx, "missing")
		if err != nil || ev != nil {
			t.Fatalf("get = %+v, %v", ev, err)
		}
	}
	if calls != 2 {
		t.Fatalf("absent event served from cache, calls=%d", calls)
	}
	if mr.Exists(eventCacheKey("missing")) {
		t.Fatal("nil result cached")
	}
}

func TestCacheListActiveFirstPageOnly(t *testing.T) {
	ctx := context.Background()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	page := []domain.Event{{ID: "ev-1"}, {ID: "ev-2"}}

	var calls int
	cache, mr := newCacheForTest(t, &stubEventStore{
		listActiveFn: func(ctx context.Context, from time.Time, cursor string, limit int) ([]domain.Event, string, error) {
			calls++
			return append([]domain.Event(nil), page...), "next-token", nil
		},
	})

	events, next, err := cache.ListActive(ctx, from, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 || next != "next-token" {
		t.Fatalf("events = %+v, next = %q", events, next)
	}
	if !mr.Exists(activeListCacheKey) {
		t.Fatal("first page not cached")
	}

	if _, _, err := cache.ListActive(ctx, from, "", 10); err != nil {
		t.Fatalf("cached list: %v", err)
	}
	if calls != 1 {
		t.Fatalf("cached first page hit the backend, calls=%d", calls)
	}

	// Cursored pages always pass through.
	if _, _, err := cache.ListActive(ctx, from, "next-token", 10); err != nil {
		t.Fatalf("cursored list: %v", err)
	}
	if calls != 2 {
		t.Fatalf("cursored page served from cache, calls=%d", calls)
	}
}

func TestCacheSeatWritesEvict(t *testing.T) {
	ctx := context.Background()
	ev := domain.Event{ID: "ev-1", Capacity: 5, ConfirmedCount: 1}
	cache, mr := newCacheForTest(t, &stubEventStore{
		getEventFn: func(ctx context.Context, id string) (*domain.Event, error) {
			e := ev
			return &e, nil
		},
		listActiveFn: func(ctx context.Context, from time.Time, cursor string, limit int) ([]domain.Event, string, error) {
			return []domain.Event{ev}, "", nil
		},
		reserveSeatFn: func(ctx context.Context, id string) (*domain.Event, error) {
			e := ev
			e.ConfirmedCount++
			return &e, nil
		},
		releaseSeatFn: func(ctx context.Context, id string) error { return nil },
	})

	if _, err := cache.GetEvent(ctx, "ev-1"); err != nil {
		t.Fatalf("warm event cache: %v", err)
	}
	if _, _, err := cache.ListActive(ctx, time.Now(), "", 10); err != nil {
		t.Fatalf("warm list cache: %v", err)
	}

	if _, err := cache.ReserveSeat(ctx, "ev-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if mr.Exists(eventCacheKey("ev-1")) || mr.Exists(activeListCacheKey) {
		t.Fatal("reserve did not evict")
	}

	if _, err := cache.GetEvent(ctx, "ev-1"); err != nil {
		t.Fatalf("rewarm: %v", err)
	}
	if err := cache.ReleaseSeat(ctx, "ev-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists(eventCacheKey("ev-1")) {
		t.Fatal("release did not evict")
	}
}

func TestCacheFailedReserveKeepsCache(t *testing.T) {
	ctx := context.Background()
	ev := domain.Event{ID: "ev-1", Capacity: 1, ConfirmedCount: 1}
	cache, mr := newCacheForTest(t, &stubEventStore{
		getEventFn: func(ctx context.Context, id string) (*domain.Event, error) {
			e := ev
			return &e, nil
		},
		reserveSeatFn: func(ctx context.Context, id string) (*domain.Event, error) {
			return nil, domain.ErrEventFull
		},
	})

	if _, err := cache.GetEvent(ctx, "ev-1"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := cache.ReserveSeat(ctx, "ev-1"); !errors.Is(err, domain.ErrEventFull) {
		t.Fatalf("err = %v, want ErrEventFull", err)
	}
	if !mr.Exists(eventCacheKey("ev-1")) {
		t.Fatal("refused write evicted the cache")
	}
}

func TestCacheNilClientPassesThrough(t *testing.T) {
	ctx := context.Background()
	var calls int
	cache := NewEventCache(&stubEventStore{
		getEventFn: func(ctx context.Context, id string) (*domain.Event, error) {
			calls++
			return &domain.Event{ID: id}, nil
		},
	}, nil, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := cache.GetEvent(ctx, "ev-1"); err != nil {
			t.Fatalf("get: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}
