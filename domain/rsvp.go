package domain

import "time"

// RSVPStatus is the state of a single reservation row.
type RSVPStatus string

const (
	RSVPConfirmed RSVPStatus = "Confirmed"
	RSVPCancelled RSVPStatus = "Cancelled"
)

// RSVP is one row per (event, user). A cancelled row stays in place;
// re-reserving writes a fresh Confirmed state over the same key.
type RSVP struct {
	EventID     string     `json:"eventId"`
	UserID      string     `json:"userId"`
	Status      RSVPStatus `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CheckedIn   bool       `json:"checkedIn"`

	// ETag is the store's concurrency token for this row, opaque to the
	// coordinators and echoed back on conditional writes.
	ETag string `json:"-"`
}
