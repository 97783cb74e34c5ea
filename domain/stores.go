package domain

import (
	"context"
	"time"
)

// EventStore is the conditional key-value store events live in. The
// seat primitives carry their predicate into the atomic write; reads
// exist for early exits and messages only and may be stale.
type EventStore interface {
	// GetEvent returns nil without error when the event does not exist.
	GetEvent(ctx context.Context, id string) (*Event, error)
	InsertEvent(ctx context.Context, ev Event) error
	// ReplaceEvent overwrites the stored event only while its version
	// still equals expectedVersion, else ErrVersionConflict.
	ReplaceEvent(ctx context.Context, ev Event, expectedVersion int64) error
	// ReserveSeat atomically increments the confirmed count under the
	// predicate: event exists, status Active, confirmed < capacity.
	// Predicate failure maps to ErrEventNotFound, ErrEventUnavailable
	// or ErrEventFull and is decisive; the returned event is the
	// post-increment snapshot.
	ReserveSeat(ctx context.Context, id string) (*Event, error)
	// ReleaseSeat atomically decrements the confirmed count under the
	// predicate: event exists, confirmed > 0. Predicate failure maps
	// to ErrEventNotFound or ErrNoSeatsHeld.
	ReleaseSeat(ctx context.Context, id string) error
	MarkEventCancelled(ctx context.Context, id string, at time.Time) error
	MarkEventArchived(ctx context.Context, id string, at time.Time) error
	// ListActive pages through Active events starting at from,
	// soonest first. cursor is opaque; empty means the first page.
	ListActive(ctx context.Context, from time.Time, cursor string, limit int) ([]Event, string, error)
	// ListEndedBefore returns Active events whose date has passed.
	ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error)
}

// RSVPStore holds one row per (event, user) with existence-conditional
// writes.
type RSVPStore interface {
	// GetRSVP returns nil without error when no row exists.
	GetRSVP(ctx context.Context, eventID, userID string) (*RSVP, error)
	// ConfirmRSVP writes a Confirmed row conditionally: with an empty
	// priorETag the row must not exist yet; otherwise the existing row
	// must still carry priorETag. Losing either race returns
	// ErrRSVPConflict.
	ConfirmRSVP(ctx context.Context, r RSVP, priorETag string) error
	// PutRSVP upserts unconditionally. Used by promotion, where the
	// seat increment already decided the outcome.
	PutRSVP(ctx context.Context, r RSVP) error
	MarkRSVPCancelled(ctx context.Context, eventID, userID string, at time.Time) error
}

// WaitlistStore keeps entries ordered by their FIFO sort key.
type WaitlistStore interface {
	// FindWaitlisted locates a user's entry regardless of position.
	FindWaitlisted(ctx context.Context, eventID, userID string) (*WaitlistEntry, error)
	AddWaitlistEntry(ctx context.Context, e WaitlistEntry) error
	// FirstWaitlisted returns the earliest entry, or nil when the
	// waitlist is empty.
	FirstWaitlisted(ctx context.Context, eventID string) (*WaitlistEntry, error)
	RemoveWaitlistEntry(ctx context.Context, eventID, sortKey string) error
}

// ArchiveStore receives immutable snapshots of ended events.
type ArchiveStore interface {
	PutArchivedEvent(ctx context.Context, ev ArchivedEvent) error
	ListArchivedMonth(ctx context.Context, yearMonth string, limit int) ([]ArchivedEvent, error)
}

// SignalQueue delivers capacity-freed signals asynchronously,
// at-least-once. A signal is a hint to re-evaluate, never a guarantee.
type SignalQueue interface {
	CapacityFreed(ctx context.Context, eventID string) error
}
