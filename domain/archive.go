package domain

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// ArchivedEvent is an immutable snapshot of an event whose date has
// passed, bucketed by calendar month for cheap listing.
type ArchivedEvent struct {
	YearMonth      string    `json:"yearMonth"`
	DateEventID    string    `json:"-"`
	EventID        string    `json:"eventId"`
	Title          string    `json:"title"`
	Date           time.Time `json:"date"`
	Category       string    `json:"category"`
	Capacity       int       `json:"capacity"`
	ConfirmedCount int       `json:"confirmedCount"`
	Description    string    `json:"description,omitempty"`
	Location       string    `json:"location"`
	CreatedAt      time.Time `json:"createdAt"`
	CreatedBy      string    `json:"createdBy"`
	ArchivedAt     time.Time `json:"archivedAt"`
}

// Archiver sweeps ended Active events into the archive.
type Archiver struct {
	events  EventStore
	archive ArchiveStore
	// batch bounds one sweep iteration.
	batch int
}

func NewArchiver(events EventStore, archive ArchiveStore) Archiver {
	return Archiver{events: events, archive: archive, batch: 25}
}

// ArchivePast copies every Active event dated before now into the
// archive and marks the source row Archived. The snapshot write is an
// upsert, so a crash between the two writes only repeats work on the
// next sweep. Returns the number archived.
func (a Archiver) ArchivePast(ctx context.Context, now time.Time) (int, error) {
	archived := 0
	for {
		ended, err := a.events.ListEndedBefore(ctx, now.UTC(), a.batch)
		if err != nil {
			return archived, fmt.Errorf("list ended events: %w", err)
		}
		if len(ended) == 0 {
			return archived, nil
		}
		for _, ev := range ended {
			snap := snapshotForArchive(ev, now.UTC())
			if err := a.archive.PutArchivedEvent(ctx, snap); err != nil {
				return archived, fmt.Errorf("archive event %s: %w", ev.ID, err)
			}
			if err := a.events.MarkEventArchived(ctx, ev.ID, now.UTC()); err != nil {
				return archived, fmt.Errorf("mark event %s archived: %w", ev.ID, err)
			}
			archived++
			log.WithFields(log.Fields{"event": ev.ID, "date": ev.Date}).Debug("archived past event")
		}
		if len(ended) < a.batch {
			return archived, nil
		}
	}
}

func snapshotForArchive(ev Event, at time.Time) ArchivedEvent {
	date := ev.Date.UTC().Format(time.RFC3339)
	return ArchivedEvent{
		YearMonth:      date[:7],
		DateEventID:    date + "#" + ev.ID,
		EventID:        ev.ID,
		Title:          ev.Title,
		Date:           ev.Date,
		Category:       ev.Category,
		Capacity:       ev.Capacity,
		ConfirmedCount: ev.ConfirmedCount,
		Description:    ev.Description,
		Location:       ev.Location,
		CreatedAt:      ev.CreatedAt,
		CreatedBy:      ev.CreatedBy,
		ArchivedAt:     at,
	}
}
