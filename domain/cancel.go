package domain

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// CancellationService releases a reserved seat and signals that a
// waitlisted user may be promoted.
type CancellationService struct {
	events  EventStore
	rsvps   RSVPStore
	signals SignalQueue
	now     func() time.Time
}

func NewCancellationService(events EventStore, rsvps RSVPStore, signals SignalQueue) CancellationService {
	return CancellationService{events: events, rsvps: rsvps, signals: signals, now: time.Now}
}

// Cancel marks the user's reservation Cancelled and gives the seat
// back. The RSVP state change is the user-observable contract; the
// counter decrement and the capacity-freed signal are best-effort
// bookkeeping and must never fail the cancellation.
func (s CancellationService) Cancel(ctx context.Context, eventID, userID string) error {
	r, err := s.rsvps.GetRSVP(ctx, eventID, userID)
	if err != nil {
		return fmt.Errorf("read rsvp: %w", err)
	}
	if r == nil {
		return ErrNoReservation
	}
	if r.Status == RSVPCancelled {
		return ErrAlreadyCancelled
	}

	if err := s.rsvps.MarkRSVPCancelled(ctx, eventID, userID, s.now().UTC()); err != nil {
		return fmt.Errorf("cancel rsvp: %w", err)
	}

	if err := s.events.ReleaseSeat(ctx, eventID); err != nil {
		// Should never legitimately fail while the invariants hold;
		// the counter self-heals through later traffic either way.
		log.WithFields(log.Fields{"event": eventID, "user": userID}).
			WithError(err).Warn("could not release seat after cancellation")
		return nil
	}

	if err := s.signals.CapacityFreed(ctx, eventID); err != nil {
		// Fire-and-forget: promotion is re-attempted whenever another
		// cancellation frees capacity.
		log.WithField("event", eventID).WithError(err).Error("capacity-freed signal emission failed")
	}
	return nil
}
