package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Promoter consumes capacity-freed signals and moves the earliest
// waitlisted user into a confirmed reservation.
//
// Delivery is at-least-once and only loosely ordered, so every signal
// is treated as a hint: the promoter acts on freshly read state, never
// on the signal payload beyond the event ID, which makes duplicates
// and reordering harmless. When the conditional increment loses to a
// concurrent direct reservation the signal is dropped and the
// waitlisted user stays queued until another cancellation frees a
// seat; that starvation window is a known limitation, kept as is.
type Promoter struct {
	events   EventStore
	rsvps    RSVPStore
	waitlist WaitlistStore
	now      func() time.Time
}

func NewPromoter(events EventStore, rsvps RSVPStore, waitlist WaitlistStore) Promoter {
	return Promoter{events: events, rsvps: rsvps, waitlist: waitlist, now: time.Now}
}

// OnCapacityFreed processes one signal. A nil return means the signal
// is consumed, whether or not a promotion happened; an error asks the
// delivery channel to redeliver.
func (p Promoter) OnCapacityFreed(ctx context.Context, eventID string) error {
	ev, err := p.events.GetEvent(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read event: %w", err)
	}
	if ev == nil || ev.Status != EventActive || ev.Full() {
		return nil
	}

	entry, err := p.waitlist.FirstWaitlisted(ctx, eventID)
	if err != nil {
		return fmt.Errorf("read waitlist: %w", err)
	}
	if entry == nil {
		return nil
	}

	if _, err := p.events.ReserveSeat(ctx, eventID); err != nil {
		if errors.Is(err, ErrEventFull) || errors.Is(err, ErrEventUnavailable) || errors.Is(err, ErrEventNotFound) {
			log.WithFields(log.Fields{"event": eventID, "user": entry.UserID}).
				Debug("promotion lost the seat race; dropping signal")
			return nil
		}
		return err
	}

	r := RSVP{
		EventID:   eventID,
		UserID:    entry.UserID,
		Status:    RSVPConfirmed,
		CreatedAt: p.now().UTC(),
	}
	if err := p.rsvps.PutRSVP(ctx, r); err != nil {
		// Entry stays queued so a redelivery can retry; the removal
		// below must only ever happen after the RSVP is durable.
		return fmt.Errorf("write promoted rsvp: %w", err)
	}

	if err := p.waitlist.RemoveWaitlistEntry(ctx, eventID, entry.SortKey); err != nil {
		return fmt.Errorf("remove waitlist entry: %w", err)
	}

	log.WithFields(log.Fields{"event": eventID, "user": entry.UserID}).Info("promoted from waitlist")
	return nil
}
