package api

import (
	"context"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
)

// EventCatalog abstracts plain event management for handlers.
type EventCatalog interface {
	Create(ctx context.Context, in domain.CreateEventInput, createdBy string) (*domain.Event, error)
	Get(ctx context.Context, id string) (*domain.Event, error)
	ListActive(ctx context.Context, cursor string, limit int) ([]domain.Event, string, error)
	Update(ctx context.Context, id string, upd domain.EventUpdate) (*domain.Event, error)
	Cancel(ctx context.Context, id string) error
	ListPast(ctx context.Context, yearMonth string, limit int) ([]domain.ArchivedEvent, error)
}

// Reservations covers the seat-holding operations.
type Reservations interface {
	Reserve(ctx context.Context, eventID, userID string) (*domain.Event, error)
	Cancel(ctx context.Context, eventID, userID string) error
}

// Waitlist covers joining and leaving an event's waitlist.
type Waitlist interface {
	Join(ctx context.Context, eventID, userID string) (*domain.WaitlistEntry, error)
	Leave(ctx context.Context, eventID, userID string) error
}

// Authenticator is implemented by types able to extract caller claims
// from the Authorization header.
type Authenticator interface {
	ClaimsFromAuthHeader(string) (Claims, error)
}

// InvalidCursorError is returned when a supplied pagination token is
// malformed or expired.
type InvalidCursorError interface {
	error
	InvalidCursor()
}
