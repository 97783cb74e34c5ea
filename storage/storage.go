// Package storage implements the domain store interfaces on Azure
// Table Storage and Azure Queue Storage. Conditional mutations use
// ETag compare-and-swap: read, evaluate the predicate on current
// state, replace-if-match. A 412 means another writer progressed, so
// the loop re-reads and re-evaluates; a predicate failure on current
// state is final and surfaces as the corresponding domain error.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"github.com/TheRealMule17/cmis-engagement-platform/domain"
)

const defaultPageSize = 100

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	events      *aztables.Client
	rsvps       *aztables.Client
	waitlist    *aztables.Client
	pastEvents  *aztables.Client
	signalQueue *azqueue.QueueClient
	pageSize    int
}

// Config names the tables and queue a Storage operates on.
type Config struct {
	EventsTable     string
	RSVPsTable      string
	WaitlistTable   string
	PastEventsTable string
	SignalQueue     string
	PageSize        int
}

// New creates a Storage instance from the given connection string.
func New(connStr string, cfg Config) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	sq, err := azqueue.NewQueueClientFromConnectionString(connStr, cfg.SignalQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Storage{
		events:      svc.NewClient(cfg.EventsTable),
		rsvps:       svc.NewClient(cfg.RSVPsTable),
		waitlist:    svc.NewClient(cfg.WaitlistTable),
		pastEvents:  svc.NewClient(cfg.PastEventsTable),
		signalQueue: sq,
		pageSize:    pageSize,
	}, nil
}

func (s *Storage) getEventEntity(ctx context.Context, id string) (*eventEntity, azcore.ETag, error) {
	resp, err := s.events.GetEntity(ctx, eventsPartition, id, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, "", nil
		}
		return nil, "", err
	}
	var ent eventEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, "", err
	}
	return &ent, resp.ETag, nil
}

// GetEvent retrieves an event, nil when absent.
func (s *Storage) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	ent, _, err := s.getEventEntity(ctx, id)
	if err != nil || ent == nil {
		return nil, err
	}
	ev, err := eventFromEntity(*ent)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertEvent writes a new event; the identifier must be unused.
func (s *Storage) InsertEvent(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(entityFromEvent(ev))
	if err != nil {
		return err
	}
	if _, err := s.events.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, 409) {
			return fmt.Errorf("event %s already exists", ev.ID)
		}
		return err
	}
	return nil
}

// ReplaceEvent overwrites the stored event while its version still
// equals expectedVersion.
func (s *Storage) ReplaceEvent(ctx context.Context, ev domain.Event, expectedVersion int64) error {
	for {
		ent, etag, err := s.getEventEntity(ctx, ev.ID)
		if err != nil {
			return err
		}
		if ent == nil {
			return domain.ErrEventNotFound
		}
		if ent.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		err = s.replaceEventEntity(ctx, entityFromEvent(ev), etag)
		if isStatus(err, 412) {
			continue
		}
		return err
	}
}

// ReserveSeat is the authoritative conditional increment: it only
// applies while the event exists, is Active and has a free seat, and
// the predicate is re-evaluated on current state every attempt.
func (s *Storage) ReserveSeat(ctx context.Context, id string) (*domain.Event, error) {
	for {
		ent, etag, err := s.getEventEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		if ent == nil {
			return nil, domain.ErrEventNotFound
		}
		if ent.Status != string(domain.EventActive) {
			return nil, domain.ErrEventUnavailable
		}
		if ent.CurrentRSVPs >= ent.Capacity {
			return nil, domain.ErrEventFull
		}
		ent.CurrentRSVPs++
		ent.Version++
		err = s.replaceEventEntity(ctx, *ent, etag)
		if isStatus(err, 412) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ev, err := eventFromEntity(*ent)
		if err != nil {
			return nil, err
		}
		return &ev, nil
	}
}

// ReleaseSeat is the conditional decrement; it refuses to move the
// counter below zero.
func (s *Storage) ReleaseSeat(ctx context.Context, id string) error {
	for {
		ent, etag, err := s.getEventEntity(ctx, id)
		if err != nil {
			return err
		}
		if ent == nil {
			return domain.ErrEventNotFound
		}
		if ent.CurrentRSVPs <= 0 {
			return domain.ErrNoSeatsHeld
		}
		ent.CurrentRSVPs--
		ent.Version++
		err = s.replaceEventEntity(ctx, *ent, etag)
		if isStatus(err, 412) {
			continue
		}
		return err
	}
}

// MarkEventCancelled flips the event status; reservations stay put.
func (s *Storage) MarkEventCancelled(ctx context.Context, id string, at time.Time) error {
	return s.setEventStatus(ctx, id, domain.EventCancelled, at)
}

// MarkEventArchived flips the event status after archival.
func (s *Storage) MarkEventArchived(ctx context.Context, id string, at time.Time) error {
	return s.setEventStatus(ctx, id, domain.EventArchived, at)
}

func (s *Storage) setEventStatus(ctx context.Context, id string, status domain.EventStatus, at time.Time) error {
	for {
		ent, etag, err := s.getEventEntity(ctx, id)
		if err != nil {
			return err
		}
		if ent == nil {
			return domain.ErrEventNotFound
		}
		ent.Status = string(status)
		ent.Version++
		switch status {
		case domain.EventCancelled:
			ent.CancelledAt = formatTime(at)
		case domain.EventArchived:
			ent.ArchivedAt = formatTime(at)
		}
		err = s.replaceEventEntity(ctx, *ent, etag)
		if isStatus(err, 412) {
			continue
		}
		return err
	}
}

func (s *Storage) replaceEventEntity(ctx context.Context, ent eventEntity, etag azcore.ETag) error {
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.events.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

// ListActive pages Active events dated at or after from, soonest
// first. The table service returns partition order, so each page is
// re-sorted by date before it goes out.
func (s *Storage) ListActive(ctx context.Context, from time.Time, cursor string, limit int) ([]domain.Event, string, error) {
	c, err := decodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}

	filter := fmt.Sprintf("PartitionKey eq '%s' and Status eq '%s' and Date ge '%s'",
		eventsPartition, domain.EventActive, formatTime(from))
	top := int32(limit)
	opts := &aztables.ListEntitiesOptions{Filter: &filter, Top: &top}
	if c != nil {
		opts.NextPartitionKey = &c.NextPartitionKey
		opts.NextRowKey = &c.NextRowKey
	}

	pager := s.events.NewListEntitiesPager(opts)
	if !pager.More() {
		return []domain.Event{}, "", nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, "", err
	}

	events := make([]domain.Event, 0, len(resp.Entities))
	for _, raw := range resp.Entities {
		var ent eventEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return nil, "", err
		}
		ev, err := eventFromEntity(ent)
		if err != nil {
			return nil, "", err
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })

	return events, encodeCursor(resp.NextPartitionKey, resp.NextRowKey), nil
}

// ListEndedBefore returns up to limit Active events whose date passed.
func (s *Storage) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Event, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and Status eq '%s' and Date lt '%s'",
		eventsPartition, domain.EventActive, formatTime(cutoff))
	top := int32(limit)
	pager := s.events.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})

	events := []domain.Event{}
	if !pager.More() {
		return events, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	for _, raw := range resp.Entities {
		var ent eventEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return nil, err
		}
		ev, err := eventFromEntity(ent)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// GetRSVP retrieves a reservation row, nil when absent.
func (s *Storage) GetRSVP(ctx context.Context, eventID, userID string) (*domain.RSVP, error) {
	resp, err := s.rsvps.GetEntity(ctx, eventID, userID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, err
	}
	var ent rsvpEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	r, err := rsvpFromEntity(ent, string(resp.ETag))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ConfirmRSVP writes a Confirmed row conditionally: insert-if-absent
// for first-time attendees, replace-if-match when re-confirming over a
// cancelled row. Either race lost returns ErrRSVPConflict.
func (s *Storage) ConfirmRSVP(ctx context.Context, r domain.RSVP, priorETag string) error {
	payload, err := json.Marshal(entityFromRSVP(r))
	if err != nil {
		return err
	}
	if priorETag == "" {
		_, err = s.rsvps.AddEntity(ctx, payload, nil)
		if isStatus(err, 409) {
			return domain.ErrRSVPConflict
		}
		return err
	}
	etag := azcore.ETag(priorETag)
	_, err = s.rsvps.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if isStatus(err, 412) || isStatus(err, 404) {
		return domain.ErrRSVPConflict
	}
	return err
}

// PutRSVP upserts a reservation row unconditionally.
func (s *Storage) PutRSVP(ctx context.Context, r domain.RSVP) error {
	payload, err := json.Marshal(entityFromRSVP(r))
	if err != nil {
		return err
	}
	_, err = s.rsvps.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// MarkRSVPCancelled merges the cancelled state into the existing row.
func (s *Storage) MarkRSVPCancelled(ctx context.Context, eventID, userID string, at time.Time) error {
	upd := map[string]any{
		"PartitionKey": eventID,
		"RowKey":       userID,
		"Status":       string(domain.RSVPCancelled),
		"CancelledAt":  formatTime(at),
	}
	payload, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	etag := azcore.ETagAny
	_, err = s.rsvps.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeMerge,
	})
	return err
}

// FindWaitlisted locates a user's entry regardless of queue position.
func (s *Storage) FindWaitlisted(ctx context.Context, eventID, userID string) (*domain.WaitlistEntry, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s' and UserID eq '%s'", eventID, userID)
	pager := s.waitlist.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent waitlistEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			entry, err := waitlistEntryFromEntity(ent)
			if err != nil {
				return nil, err
			}
			return &entry, nil
		}
	}
	return nil, nil
}

// AddWaitlistEntry appends the entry; the sort key is unique per user
// and instant, so a collision means the same user raced themselves.
func (s *Storage) AddWaitlistEntry(ctx context.Context, e domain.WaitlistEntry) error {
	payload, err := json.Marshal(entityFromWaitlistEntry(e))
	if err != nil {
		return err
	}
	if _, err := s.waitlist.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, 409) {
			return domain.ErrAlreadyWaitlisted
		}
		return err
	}
	return nil
}

// FirstWaitlisted returns the earliest entry for the event. Row keys
// sort lexicographically, which the sort key construction makes
// chronological, so the first row of the partition is the head of the
// queue.
func (s *Storage) FirstWaitlisted(ctx context.Context, eventID string) (*domain.WaitlistEntry, error) {
	filter := fmt.Sprintf("PartitionKey eq '%s'", eventID)
	top := int32(1)
	pager := s.waitlist.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})
	if !pager.More() {
		return nil, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Entities) == 0 {
		return nil, nil
	}
	var ent waitlistEntity
	if err := json.Unmarshal(resp.Entities[0], &ent); err != nil {
		return nil, err
	}
	entry, err := waitlistEntryFromEntity(ent)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// RemoveWaitlistEntry deletes the entry; a missing row is fine.
func (s *Storage) RemoveWaitlistEntry(ctx context.Context, eventID, sortKey string) error {
	_, err := s.waitlist.DeleteEntity(ctx, eventID, sortKey, nil)
	if isStatus(err, 404) {
		return nil
	}
	return err
}

// PutArchivedEvent upserts the snapshot so a repeated sweep is safe.
func (s *Storage) PutArchivedEvent(ctx context.Context, a domain.ArchivedEvent) error {
	payload, err := json.Marshal(entityFromArchivedEvent(a))
	if err != nil {
		return err
	}
	_, err = s.pastEvents.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

// ListArchivedMonth returns archived events for one YYYY-MM bucket.
func (s *Storage) ListArchivedMonth(ctx context.Context, yearMonth string, limit int) ([]domain.ArchivedEvent, error) {
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	filter := fmt.Sprintf("PartitionKey eq '%s'", yearMonth)
	top := int32(limit)
	pager := s.pastEvents.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter, Top: &top})

	out := []domain.ArchivedEvent{}
	if !pager.More() {
		return out, nil
	}
	resp, err := pager.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	for _, raw := range resp.Entities {
		var ent archivedEntity
		if err := json.Unmarshal(raw, &ent); err != nil {
			return nil, err
		}
		a, err := archivedEventFromEntity(ent)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// CapacityFreed enqueues a capacity-freed signal for the event.
func (s *Storage) CapacityFreed(ctx context.Context, eventID string) error {
	sig := domain.CapacityFreedSignal{ID: uuid.NewString(), EventID: eventID}
	data, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	_, err = s.signalQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// DequeueSignal retrieves a single queued signal message, nil when the
// queue is empty.
func (s *Storage) DequeueSignal(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.signalQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// DeleteSignal removes a processed message from the queue.
func (s *Storage) DeleteSignal(ctx context.Context, id, popReceipt string) error {
	_, err := s.signalQueue.DeleteMessage(ctx, id, popReceipt, nil)
	return err
}

func isStatus(err error, code int) bool {
	if err == nil {
		return false
	}
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
