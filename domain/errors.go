package domain

import "errors"

// Business-rule rejections. These are outcomes, not faults: a
// conditional-write refusal from the store surfaces as one of these
// and is never wrapped as an infrastructure error.
var (
	ErrEventNotFound    = errors.New("event not found")
	ErrEventUnavailable = errors.New("event is no longer available")
	ErrEventFull        = errors.New("event is at full capacity")
	ErrAlreadyReserved  = errors.New("already reserved for this event")
	ErrNoReservation    = errors.New("no reservation for this event")
	ErrAlreadyCancelled = errors.New("reservation is already cancelled")

	ErrAlreadyWaitlisted   = errors.New("already on the waitlist")
	ErrNotOnWaitlist       = errors.New("not on the waitlist")
	ErrWaitlistHasCapacity = errors.New("event has open capacity; reserve directly instead")

	// ErrVersionConflict rejects an update whose expected version no
	// longer matches the stored event.
	ErrVersionConflict = errors.New("event was modified by another process")

	// ErrRSVPConflict is returned by stores when a conditional RSVP
	// write loses: the row appeared (or changed) since it was read.
	ErrRSVPConflict = errors.New("reservation row changed concurrently")

	// ErrNoSeatsHeld is returned by stores when a conditional decrement
	// finds the confirmed counter already at zero.
	ErrNoSeatsHeld = errors.New("no confirmed seats to release")
)

// ValidationError rejects malformed input before any store is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// IsOutcome reports whether err is one of the designed business
// rejections rather than an infrastructure failure.
func IsOutcome(err error) bool {
	for _, sentinel := range []error{
		ErrEventNotFound, ErrEventUnavailable, ErrEventFull,
		ErrAlreadyReserved, ErrNoReservation, ErrAlreadyCancelled,
		ErrAlreadyWaitlisted, ErrNotOnWaitlist, ErrWaitlistHasCapacity,
		ErrVersionConflict,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	var v ValidationError
	return errors.As(err, &v)
}
