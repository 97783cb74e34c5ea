package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// ReservationService decides whether a reservation attempt succeeds,
// reserves the seat atomically and records the attendee.
type ReservationService struct {
	events EventStore
	rsvps  RSVPStore
	now    func() time.Time
}

func NewReservationService(events EventStore, rsvps RSVPStore) ReservationService {
	return ReservationService{events: events, rsvps: rsvps, now: time.Now}
}

// Reserve attempts to confirm a seat for userID on eventID.
//
// The reads in the first two steps are early exits for accurate
// messages only; they race and are never relied on for correctness.
// The conditional seat increment is the sole source of truth for the
// capacity invariant, and its refusal is decisive: there are no
// retries at this layer.
func (s ReservationService) Reserve(ctx context.Context, eventID, userID string) (*Event, error) {
	prior, err := s.rsvps.GetRSVP(ctx, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("read rsvp: %w", err)
	}
	if prior != nil && prior.Status == RSVPConfirmed {
		return nil, ErrAlreadyReserved
	}

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

	updated, err := s.events.ReserveSeat(ctx, eventID)
	if err != nil {
		return nil, err
	}

	r := RSVP{
		EventID:   eventID,
		UserID:    userID,
		Status:    RSVPConfirmed,
		CreatedAt: s.now().UTC(),
	}
	priorETag := ""
	if prior != nil {
		priorETag = prior.ETag
	}
	if err := s.rsvps.ConfirmRSVP(ctx, r, priorETag); err != nil {
		// The seat was taken but no attendee recorded; hand it back so
		// a lost duplicate race never consumes capacity.
		if relErr := s.events.ReleaseSeat(ctx, eventID); relErr != nil {
			log.WithFields(log.Fields{"event": eventID, "user": userID}).
				WithError(relErr).Error("failed to release seat after rsvp write failure")
		}
		if errors.Is(err, ErrRSVPConflict) {
			return nil, ErrAlreadyReserved
		}
		return nil, fmt.Errorf("write rsvp: %w", err)
	}

	return updated, nil
}
