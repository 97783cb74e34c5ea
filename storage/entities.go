package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
)

// All events share one partition so a single range scan covers the
// catalog. Dates are stored as RFC3339 UTC strings, which keeps the
// store's lexicographic filters chronologically correct.
const eventsPartition = "event"

type eventEntity struct {
	aztables.Entity
	Title        string `json:"Title"`
	Date         string `json:"Date"`
	Category     string `json:"Category"`
	Capacity     int    `json:"Capacity"`
	CurrentRSVPs int    `json:"CurrentRSVPs"`
	Version      int64  `json:"Version"`
	Status       string `json:"Status"`
	Description  string `json:"Description"`
	Location     string `json:"Location"`
	CreatedAt    string `json:"CreatedAt"`
	CreatedBy    string `json:"CreatedBy"`
	CancelledAt  string `json:"CancelledAt,omitempty"`
	ArchivedAt   string `json:"ArchivedAt,omitempty"`
}

type rsvpEntity struct {
	aztables.Entity
	Status      string `json:"Status"`
	RSVPDate    string `json:"RSVPDate"`
	CancelledAt string `json:"CancelledAt,omitempty"`
	CheckedIn   bool   `json:"CheckedIn"`
}

type waitlistEntity struct {
	aztables.Entity
	UserID   string `json:"UserID"`
	JoinedAt string `json:"JoinedAt"`
}

type archivedEntity struct {
	aztables.Entity
	EventID      string `json:"EventID"`
	Title        string `json:"Title"`
	Date         string `json:"Date"`
	Category     string `json:"Category"`
	Capacity     int    `json:"Capacity"`
	CurrentRSVPs int    `json:"CurrentRSVPs"`
	Description  string `json:"Description"`
	Location     string `json:"Location"`
	CreatedAt    string `json:"CreatedAt"`
	CreatedBy    string `json:"CreatedBy"`
	ArchivedAt   string `json:"ArchivedAt"`
}

func entityFromEvent(ev domain.Event) eventEntity {
	ent := eventEntity{
		Entity:       aztables.Entity{PartitionKey: eventsPartition, RowKey: ev.ID},
		Title:        ev.Title,
		Date:         formatTime(ev.Date),
		Category:     ev.Category,
		Capacity:     ev.Capacity,
		CurrentRSVPs: ev.ConfirmedCount,
		Version:      ev.Version,
		Status:       string(ev.Status),
		Description:  ev.Description,
		Location:     ev.Location,
		CreatedAt:    formatTime(ev.CreatedAt),
		CreatedBy:    ev.CreatedBy,
	}
	if ev.CancelledAt != nil {
		ent.CancelledAt = formatTime(*ev.CancelledAt)
	}
	if ev.ArchivedAt != nil {
		ent.ArchivedAt = formatTime(*ev.ArchivedAt)
	}
	return ent
}

func eventFromEntity(ent eventEntity) (domain.Event, error) {
	date, err := parseTime(ent.Date)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %s has malformed date: %w", ent.RowKey, err)
	}
	created, err := parseTime(ent.CreatedAt)
	if err != nil {
		return domain.Event{}, fmt.Errorf("event %s has malformed createdAt: %w", ent.RowKey, err)
	}
	ev := domain.Event{
		ID:             ent.RowKey,
		Title:          ent.Title,
		Date:           date,
		Category:       ent.Category,
		Capacity:       ent.Capacity,
		ConfirmedCount: ent.CurrentRSVPs,
		Version:        ent.Version,
		Status:         domain.EventStatus(ent.Status),
		Description:    ent.Description,
		Location:       ent.Location,
		CreatedAt:      created,
		CreatedBy:      ent.CreatedBy,
	}
	if ent.CancelledAt != "" {
		if t, err := parseTime(ent.CancelledAt); err == nil {
			ev.CancelledAt = &t
		}
	}
	if ent.ArchivedAt != "" {
		if t, err := parseTime(ent.ArchivedAt); err == nil {
			ev.ArchivedAt = &t
		}
	}
	return ev, nil
}

func entityFromRSVP(r domain.RSVP) rsvpEntity {
	ent := rsvpEntity{
		Entity:    aztables.Entity{PartitionKey: r.EventID, RowKey: r.UserID},
		Status:    string(r.Status),
		RSVPDate:  formatTime(r.CreatedAt),
		CheckedIn: r.CheckedIn,
	}
	if r.CancelledAt != nil {
		ent.CancelledAt = formatTime(*r.CancelledAt)
	}
	return ent
}

func rsvpFromEntity(ent rsvpEntity, etag string) (domain.RSVP, error) {
	created, err := parseTime(ent.RSVPDate)
	if err != nil {
		return domain.RSVP{}, fmt.Errorf("rsvp %s/%s has malformed date: %w", ent.PartitionKey, ent.RowKey, err)
	}
	r := domain.RSVP{
		EventID:   ent.PartitionKey,
		UserID:    ent.RowKey,
		Status:    domain.RSVPStatus(ent.Status),
		CreatedAt: created,
		CheckedIn: ent.CheckedIn,
		ETag:      etag,
	}
	if ent.CancelledAt != "" {
		if t, err := parseTime(ent.CancelledAt); err == nil {
			r.CancelledAt = &t
		}
	}
	return r, nil
}

func entityFromWaitlistEntry(e domain.WaitlistEntry) waitlistEntity {
	return waitlistEntity{
		Entity:   aztables.Entity{PartitionKey: e.EventID, RowKey: e.SortKey},
		UserID:   e.UserID,
		JoinedAt: formatTime(e.JoinedAt),
	}
}

func waitlistEntryFromEntity(ent waitlistEntity) (domain.WaitlistEntry, error) {
	joined, err := parseTime(ent.JoinedAt)
	if err != nil {
		return domain.WaitlistEntry{}, fmt.Errorf("waitlist entry %s/%s has malformed joinedAt: %w", ent.PartitionKey, ent.RowKey, err)
	}
	return domain.WaitlistEntry{
		EventID:  ent.PartitionKey,
		SortKey:  ent.RowKey,
		UserID:   ent.UserID,
		JoinedAt: joined,
	}, nil
}

func entityFromArchivedEvent(a domain.ArchivedEvent) archivedEntity {
	return archivedEntity{
		Entity:       aztables.Entity{PartitionKey: a.YearMonth, RowKey: a.DateEventID},
		EventID:      a.EventID,
		Title:        a.Title,
		Date:         formatTime(a.Date),
		Category:     a.Category,
		Capacity:     a.Capacity,
		CurrentRSVPs: a.ConfirmedCount,
		Description:  a.Description,
		Location:     a.Location,
		CreatedAt:    formatTime(a.CreatedAt),
		CreatedBy:    a.CreatedBy,
		ArchivedAt:   formatTime(a.ArchivedAt),
	}
}

func archivedEventFromEntity(ent archivedEntity) (domain.ArchivedEvent, error) {
	date, err := parseTime(ent.Date)
	if err != nil {
		return domain.ArchivedEvent{}, fmt.Errorf("archived event %s has malformed date: %w", ent.RowKey, err)
	}
	created, _ := parseTime(ent.CreatedAt)
	archivedAt, _ := parseTime(ent.ArchivedAt)
	return domain.ArchivedEvent{
		YearMonth:      ent.PartitionKey,
		DateEventID:    ent.RowKey,
		EventID:        ent.EventID,
		Title:          ent.Title,
		Date:           date,
		Category:       ent.Category,
		Capacity:       ent.Capacity,
		ConfirmedCount: ent.CurrentRSVPs,
		Description:    ent.Description,
		Location:       ent.Location,
		CreatedAt:      created,
		CreatedBy:      ent.CreatedBy,
		ArchivedAt:     archivedAt,
	}, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339, s) }

// listCursor resumes a paged listing. It round-trips the table
// service's continuation keys as an opaque base64 token.
type listCursor struct {
	NextPartitionKey string `json:"npk"`
	NextRowKey       string `json:"nrk"`
}

func encodeCursor(npk, nrk *string) string {
	if npk == nil && nrk == nil {
		return ""
	}
	c := listCursor{}
	if npk != nil {
		c.NextPartitionKey = *npk
	}
	if nrk != nil {
		c.NextRowKey = *nrk
	}
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeCursor(token string) (*listCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, InvalidCursorError{Token: token}
	}
	var c listCursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, InvalidCursorError{Token: token}
	}
	return &c, nil
}

// InvalidCursorError rejects a malformed continuation token.
type InvalidCursorError struct {
	Token string
}

func (e InvalidCursorError) Error() string { return "invalid page cursor" }

// InvalidCursor marks the error for callers that match on behavior
// rather than concrete type.
func (e InvalidCursorError) InvalidCursor() {}
