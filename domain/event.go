package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the lifecycle state of an event. Events are never
// physically deleted; cancellation and archival are status transitions.
type EventStatus string

const (
	EventActive    EventStatus = "Active"
	EventCancelled EventStatus = "Cancelled"
	EventArchived  EventStatus = "Archived"
)

// Categories an event may belong to.
var Categories = []string{"Career", "Networking", "Social", "Mentorship"}

const (
	minTitleLen    = 3
	maxTitleLen    = 200
	maxLocationLen = 500
	// MaxCapacity bounds the confirmed-attendee cap accepted at creation.
	MaxCapacity = 1000
)

// Event is the aggregate the capacity invariant lives on:
// 0 <= ConfirmedCount <= Capacity whenever Status is Active, and
// ConfirmedCount only moves through the store's conditional writes.
type Event struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Date           time.Time   `json:"date"`
	Category       string      `json:"category"`
	Capacity       int         `json:"capacity"`
	ConfirmedCount int         `json:"confirmedCount"`
	Version        int64       `json:"version"`
	Status         EventStatus `json:"status"`
	Description    string      `json:"description,omitempty"`
	Location       string      `json:"location"`
	CreatedAt      time.Time   `json:"createdAt"`
	CreatedBy      string      `json:"createdBy"`
	CancelledAt    *time.Time  `json:"cancelledAt,omitempty"`
	ArchivedAt     *time.Time  `json:"archivedAt,omitempty"`
}

// SeatsLeft reports remaining capacity.
func (e Event) SeatsLeft() int { return e.Capacity - e.ConfirmedCount }

// Full reports whether every seat is confirmed.
func (e Event) Full() bool { return e.ConfirmedCount >= e.Capacity }

// CreateEventInput carries the caller-supplied fields for a new event.
type CreateEventInput struct {
	Title       string    `json:"title"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
	Capacity    int       `json:"capacity"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
}

// NewEvent validates the input and builds an Active event with a fresh
// identifier, zero confirmed seats and version 1.
func NewEvent(in CreateEventInput, createdBy string, now time.Time) (Event, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Location = strings.TrimSpace(in.Location)

	if l := len(in.Title); l < minTitleLen || l > maxTitleLen {
		return Event{}, ValidationError{Field: "title", Message: "title must be between 3 and 200 characters"}
	}
	if in.Date.IsZero() || !in.Date.After(now) {
		return Event{}, ValidationError{Field: "date", Message: "date must be a valid future date"}
	}
	if !validCategory(in.Category) {
		return Event{}, ValidationError{Field: "category", Message: "invalid category"}
	}
	if in.Capacity < 1 || in.Capacity > MaxCapacity {
		return Event{}, ValidationError{Field: "capacity", Message: "capacity must be between 1 and 1000"}
	}
	if in.Location == "" || len(in.Location) > maxLocationLen {
		return Event{}, ValidationError{Field: "location", Message: "location is required and must be under 500 characters"}
	}

	return Event{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Date:        in.Date.UTC(),
		Category:    in.Category,
		Capacity:    in.Capacity,
		Version:     1,
		Status:      EventActive,
		Description: in.Description,
		Location:    in.Location,
		CreatedAt:   now.UTC(),
		CreatedBy:   createdBy,
	}, nil
}

// EventUpdate lists the admin-editable fields. Nil means "leave as is".
// ExpectedVersion, when set, must match the stored version or the
// update is rejected with ErrVersionConflict.
type EventUpdate struct {
	Title           *string      `json:"title"`
	Date            *time.Time   `json:"date"`
	Category        *string      `json:"category"`
	Capacity        *int         `json:"capacity"`
	Description     *string      `json:"description"`
	Location        *string      `json:"location"`
	Status          *EventStatus `json:"status"`
	ExpectedVersion *int64       `json:"expectedVersion"`
}

func (u EventUpdate) validate() error {
	if u.Title == nil && u.Date == nil && u.Category == nil && u.Capacity == nil &&
		u.Description == nil && u.Location == nil && u.Status == nil {
		return ValidationError{Message: "no updatable fields supplied"}
	}
	if u.Title != nil {
		if l := len(strings.TrimSpace(*u.Title)); l < minTitleLen || l > maxTitleLen {
			return ValidationError{Field: "title", Message: "title must be between 3 and 200 characters"}
		}
	}
	if u.Category != nil && !validCategory(*u.Category) {
		return ValidationError{Field: "category", Message: "invalid category"}
	}
	if u.Capacity != nil && (*u.Capacity < 1 || *u.Capacity > MaxCapacity) {
		return ValidationError{Field: "capacity", Message: "capacity must be between 1 and 1000"}
	}
	if u.Location != nil {
		if l := len(strings.TrimSpace(*u.Location)); l == 0 || l > maxLocationLen {
			return ValidationError{Field: "location", Message: "location is required and must be under 500 characters"}
		}
	}
	if u.Status != nil {
		switch *u.Status {
		case EventActive, EventCancelled, EventArchived:
		default:
			return ValidationError{Field: "status", Message: "invalid status"}
		}
	}
	return nil
}

// apply copies the set fields onto ev and bumps the version.
func (u EventUpdate) apply(ev Event) Event {
	if u.Title != nil {
		ev.Title = strings.TrimSpace(*u.Title)
	}
	if u.Date != nil {
		ev.Date = u.Date.UTC()
	}
	if u.Category != nil {
		ev.Category = *u.Category
	}
	if u.Capacity != nil {
		ev.Capacity = *u.Capacity
	}
	if u.Description != nil {
		ev.Description = *u.Description
	}
	if u.Location != nil {
		ev.Location = strings.TrimSpace(*u.Location)
	}
	if u.Status != nil {
		ev.Status = *u.Status
	}
	ev.Version++
	return ev
}

func validCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}
