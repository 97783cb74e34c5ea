package domain

import (
	"context"
	"fmt"
	"time"
)

// Catalog covers the plain event management operations: everything
// that does not touch the capacity counter.
type Catalog struct {
	events  EventStore
	archive ArchiveStore
	now     func() time.Time
}

func NewCatalog(events EventStore, archive ArchiveStore) Catalog {
	return Catalog{events: events, archive: archive, now: time.Now}
}

// Create validates the input and persists a fresh Active event.
func (c Catalog) Create(ctx context.Context, in CreateEventInput, createdBy string) (*Event, error) {
	ev, err := NewEvent(in, createdBy, c.now())
	if err != nil {
		return nil, err
	}
	if err := c.events.InsertEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return &ev, nil
}

func (c Catalog) Get(ctx context.Context, id string) (*Event, error) {
	ev, err := c.events.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}
	return ev, nil
}

// ListActive pages upcoming Active events, soonest first.
func (c Catalog) ListActive(ctx context.Context, cursor string, limit int) ([]Event, string, error) {
	return c.events.ListActive(ctx, c.now().UTC(), cursor, limit)
}

// Update applies the supplied fields under optimistic concurrency.
// Without an explicit expected version the version read here is used,
// so concurrent writers still conflict instead of clobbering.
func (c Catalog) Update(ctx context.Context, id string, upd EventUpdate) (*Event, error) {
	if err := upd.validate(); err != nil {
		return nil, err
	}
	ev, err := c.events.GetEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read event: %w", err)
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}
	expected := ev.Version
	if upd.ExpectedVersion != nil {
		expected = *upd.ExpectedVersion
	}
	if expected != ev.Version {
		return nil, ErrVersionConflict
	}

	updated := upd.apply(*ev)
	if err := c.events.ReplaceEvent(ctx, updated, expected); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Cancel flips the event to Cancelled. Existing reservations are left
// untouched.
func (c Catalog) Cancel(ctx context.Context, id string) error {
	return c.events.MarkEventCancelled(ctx, id, c.now().UTC())
}

// ListPast returns archived events for one calendar month (YYYY-MM).
func (c Catalog) ListPast(ctx context.Context, yearMonth string, limit int) ([]ArchivedEvent, error) {
	if !validYearMonth(yearMonth) {
		return nil, ValidationError{Field: "yearMonth", Message: "yearMonth required (YYYY-MM)"}
	}
	return c.archive.ListArchivedMonth(ctx, yearMonth, limit)
}

func validYearMonth(s string) bool {
	if len(s) != 7 || s[4] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
