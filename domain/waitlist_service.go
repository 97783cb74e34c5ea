package domain

import (
	"context"
	"fmt"
	"time"
)

// WaitlistService lets users queue for a full event and leave again.
type WaitlistService struct {
	events   EventStore
	waitlist WaitlistStore
	now      func() time.Time
}

func NewWaitlistService(events EventStore, waitlist WaitlistStore) WaitlistService {
	return WaitlistService{events: events, waitlist: waitlist, now: time.Now}
}

// Join queues the user. Only a full, Active event is eligible: with
// seats open the user should reserve directly.
func (s WaitlistService) Join(ctx context.Context, eventID, userID string) (*WaitlistEntry, error) {
	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}
	if ev.Status != EventActive {
		return nil, ErrEventUnavailable
	}
	if !ev.Full() {
		return nil, ErrWaitlistHasCapacity
	}

	existing, err := s.waitlist.FindWaitlisted(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("read waitlist: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyWaitlisted
	}

	entry := NewWaitlistEntry(eventID, userID, s.now())
	if err := s.waitlist.AddWaitlistEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("add waitlist entry: %w", err)
	}
	return &entry, nil
}

// Leave removes the user's entry if one exists.
func (s WaitlistService) Leave(ctx context.Context, eventID, userID string) error {
	entry, err := s.waitlist.FindWaitlisted(ctx, eventID, userID)
	if err != nil {
		return fmt.Errorf("read waitlist: %w", err)
	}
	if entry == nil {
		return ErrNotOnWaitlist
	}
	if err := s.waitlist.RemoveWaitlistEntry(ctx, eventID, entry.SortKey); err != nil {
		return fmt.Errorf("remove waitlist entry: %w", err)
	}
	return nil
}
