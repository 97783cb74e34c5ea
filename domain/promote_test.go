package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPromoteTakesEarliestEntry(t *testing.T) {
	store := newFakeStore()
	store.seedEvent(testEvent("ev1", 1, 0))
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	earlier := NewWaitlistEntry("ev1", "user-c", base)
	later := NewWaitlistEntry("ev1", "user-d", base.Add(time.Minute))
	store.AddWaitlistEntry(context.Background(), later)
	store.AddWaitlistEntry(context.Background(), earlier)

	p := NewPromoter(store, store, store)
	if err := p.OnCapacityFreed(context.Background(), "ev1"); err != nil {
		t.Fatalf("promote: %v", err)
	}

	r, _ := store.GetRSVP(context.Background(), "ev1", "user-c")
	if r == nil || r.Status != RSVPConfirmed {
		t.Fatalf("earliest user not promoted, rsvp = %+v", r)
	}
	if r, _ := store.GetRSVP(context.Background(), "ev1", "user-d"); r != nil {
		t.Fatalf("later user promoted out of order: %+v", r)
	}
	if got := store.waitlistLen("ev1"); got != 1 {
		t.Fatalf("waitlist length = %d, want 1", got)
	}
	if got := store.eventSnapshot("ev1").ConfirmedCount; got != 1 {
		t.Fatalf("confirmed count = %d, want 1", got)
	}
}

func TestPromoteDuplicateSignalIsHarmless(t *testing.T) {
	store := newFakeStore()
	store.seedEvent(testEvent("ev1", 1, 0))
	store.AddWaitlistEntry(context.Background(), NewWaitlistEntry("ev1", "user-c", time.Now()))
	p := NewPromoter(store, store, store)

	if err := p.OnCapacityFreed(context.Background(), "ev1"); err != nil {
		t.Fatalf("first signal: %v", err)
	}
	// Redelivery of the same signal: the event is full again, so it
	// must be consumed without side effects.
	if err := p.OnCapacityFreed(context.Background(), "ev1"); err != nil {
		t.Fatalf("duplicate signal: %v", err)
	}
	if got := store.eventSnapshot("ev1").ConfirmedCount; got != 1 {
		t.Fatalf("confirmed count = %d, want 1", got)
	}
}

func TestPromoteEmptyWaitlist(t *testing.T) {
	store := newFakeStore()
	store.seedEvent(testEvent("ev1", 2, 0))
	p := NewPromoter(store, store, store)

	if err := p.OnCapacityFreed(context.Background(), "ev1"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got := store.eventSnapshot("ev1").ConfirmedCount; got != 0 {
		t.Fatalf("confirmed count = %d, want 0", got)
	}
}

func TestPromoteMissingEventDropsSignal(t *testing.T) {
	p := NewPromoter(newFakeStore(), newFakeStore(), newFakeStore())
	if err := p.OnCapacityFreed(context.Background(), "missing"); err != nil {
		t.Fatalf("promote: %v", err)
	}
}

func TestPromoteCancelledEventDropsSignal(t *testing.T) {
	store := newFakeStore()
	ev := testEvent("ev1", 1, 0)
	ev.Status = EventCancelled
	store.seedEvent(ev)
	store.AddWaitlistEntry(context.Background(), NewWaitlistEntry("ev1", "user-c", time.Now()))
	p := NewPromoter(store, store, store)

	if err := p.OnCapacityFreed(context.Background(), "ev1"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got := store.waitlistLen("ev1"); got != 1 {
		t.Fatalf("entry removed from waitlist of cancelled event")
	}
}

func TestPromoteLostSeatRaceKeepsEntryQueued(t *testing.T) {
	store := newFakeStore()
	// The snapshot read sees a free seat, then a direct reservation
	// wins the conditional increment.
	store.seedEvent(testEvent("ev1", 1, 0))
	store.AddWaitlistEntry(context.Background(), NewWaitlistEntry("ev1", "user-c", time.Now()))
	store.failReserveSeat = ErrEventFull
	p := NewPromoter(store, store, store)

	if err := p.OnCapacityFreed(context.Background(), "ev1"); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got := store.waitlistLen("ev1"); got != 1 {
		t.Fatalf("entry removed without a confirmed seat")
	}
	if r, _ := store.GetRSVP(context.Background(), "ev1", "user-c"); r != nil {
		t.Fatalf("rsvp written without a seat: %+v", r)
	}
}

func TestPromoteRSVPWriteFailureAsksForRedelivery(t *testing.T) {
	store := newFakeStore()
	store.seedEvent(testEvent("ev1", 1, 0))
	store.AddWaitlistEntry(context.Background(), NewWaitlistEntry("ev1", "user-c", time.Now()))
	store.failPutRSVP = errors.New("write timeout")
	p := NewPromoter(store, store, store)

	if err := p.OnCapacityFreed(context.Background(), "ev1"); err == nil {
		t.Fatal("expected error so the signal is redelivered")
	}
	if got := store.waitlistLen("ev1"); got != 1 {
		t.Fatalf("entry removed before the rsvp was durable")
	}
}
