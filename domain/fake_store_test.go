package domain

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"
)

// fakeStore implements every store interface in memory with the same
// conditional-write semantics the real tables enforce. A single mutex
// makes each operation atomic, which is what the concurrency tests
// lean on.
type fakeStore struct {
	mu       sync.Mutex
	events   map[string]Event
	rsvps    map[string]RSVP
	etags    map[string]string
	etagSeq  int
	waitlist map[string]map[string]WaitlistEntry
	archive  map[string][]ArchivedEvent
	signals  []string

	failConfirmRSVP   error
	failPutRSVP       error
	failReserveSeat   error
	failReleaseSeat   error
	failCapacityFreed error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   map[string]Event{},
		rsvps:    map[string]RSVP{},
		etags:    map[string]string{},
		waitlist: map[string]map[string]WaitlistEntry{},
		archive:  map[string][]ArchivedEvent{},
	}
}

func rsvpKey(eventID, userID string) string { return eventID + "/" + userID }

func (f *fakeStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (f *fakeStore) InsertEvent(ctx context.Context, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.events[ev.ID]; exists {
		return errors.New("event already exists")
	}
	f.events[ev.ID] = ev
	return nil
}

func (f *fakeStore) ReplaceEvent(ctx context.Context, ev Event, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, ok := f.events[ev.ID]
	if !ok {
		return ErrEventNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	f.events[ev.ID] = ev
	return nil
}

func (f *fakeStore) ReserveSeat(ctx context.Context, id string) (*Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReserveSeat != nil {
		return nil, f.failReserveSeat
	}
	ev, ok := f.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	if ev.Status != EventActive {
		return nil, ErrEventUnavailable
	}
	if ev.ConfirmedCount >= ev.Capacity {
		return nil, ErrEventFull
	}
	ev.ConfirmedCount++
	ev.Version++
	f.events[id] = ev
	return &ev, nil
}

func (f *fakeStore) ReleaseSeat(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReleaseSeat != nil {
		return f.failReleaseSeat
	}
	ev, ok := f.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if ev.ConfirmedCount <= 0 {
		return ErrNoSeatsHeld
	}
	ev.ConfirmedCount--
	ev.Version++
	f.events[id] = ev
	return nil
}

func (f *fakeStore) MarkEventCancelled(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.Status = EventCancelled
	ev.CancelledAt = &at
	ev.Version++
	f.events[id] = ev
	return nil
}

func (f *fakeStore) MarkEventArchived(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[id]
	if !ok {
		return ErrEventNotFound
	}
	ev.Status = EventArchived
	ev.ArchivedAt = &at
	ev.Version++
	f.events[id] = ev
	return nil
}

func (f *fakeStore) ListActive(ctx context.Context, from time.Time, cursor string, limit int) ([]Event, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Status == EventActive && !ev.Date.Before(from) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, "", nil
}

func (f *fakeStore) ListEndedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Status == EventActive && ev.Date.Before(cutoff) {
			out = append(out, ev)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) GetRSVP(ctx context.Context, eventID, userID string) (*RSVP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rsvps[rsvpKey(eventID, userID)]
	if !ok {
		return nil, nil
	}
	r.ETag = f.etags[rsvpKey(eventID, userID)]
	return &r, nil
}

func (f *fakeStore) ConfirmRSVP(ctx context.Context, r RSVP, priorETag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConfirmRSVP != nil {
		return f.failConfirmRSVP
	}
	key := rsvpKey(r.EventID, r.UserID)
	_, exists := f.rsvps[key]
	if priorETag == "" {
		if exists {
			return ErrRSVPConflict
		}
	} else {
		if !exists || f.etags[key] != priorETag {
			return ErrRSVPConflict
		}
	}
	f.storeRSVP(key, r)
	return nil
}

func (f *fakeStore) PutRSVP(ctx context.Context, r RSVP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPutRSVP != nil {
		return f.failPutRSVP
	}
	f.storeRSVP(rsvpKey(r.EventID, r.UserID), r)
	return nil
}

func (f *fakeStore) MarkRSVPCancelled(ctx context.Context, eventID, userID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rsvpKey(eventID, userID)
	r, ok := f.rsvps[key]
	if !ok {
		return ErrNoReservation
	}
	r.Status = RSVPCancelled
	r.CancelledAt = &at
	f.storeRSVP(key, r)
	return nil
}

// storeRSVP must be called with the mutex held.
func (f *fakeStore) storeRSVP(key string, r RSVP) {
	r.ETag = ""
	f.rsvps[key] = r
	f.etagSeq++
	f.etags[key] = "W/\"" + strconv.Itoa(f.etagSeq) + "\""
}

func (f *fakeStore) FindWaitlisted(ctx context.Context, eventID, userID string) (*WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.waitlist[eventID] {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AddWaitlistEntry(ctx context.Context, e WaitlistEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.waitlist[e.EventID]
	if !ok {
		entries = map[string]WaitlistEntry{}
		f.waitlist[e.EventID] = entries
	}
	if _, exists := entries[e.SortKey]; exists {
		return ErrAlreadyWaitlisted
	}
	entries[e.SortKey] = e
	return nil
}

func (f *fakeStore) FirstWaitlisted(ctx context.Context, eventID string) (*WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := f.waitlist[eventID]
	if len(entries) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	first := entries[keys[0]]
	return &first, nil
}

func (f *fakeStore) RemoveWaitlistEntry(ctx context.Context, eventID, sortKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.waitlist[eventID], sortKey)
	return nil
}

func (f *fakeStore) PutArchivedEvent(ctx context.Context, ev ArchivedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket := f.archive[ev.YearMonth]
	for i, existing := range bucket {
		if existing.DateEventID == ev.DateEventID {
			bucket[i] = ev
			return nil
		}
	}
	f.archive[ev.YearMonth] = append(bucket, ev)
	return nil
}

func (f *fakeStore) ListArchivedMonth(ctx context.Context, yearMonth string, limit int) ([]ArchivedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]ArchivedEvent(nil), f.archive[yearMonth]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CapacityFreed(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCapacityFreed != nil {
		return f.failCapacityFreed
	}
	f.signals = append(f.signals, eventID)
	return nil
}

func (f *fakeStore) waitlistLen(eventID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waitlist[eventID])
}

func (f *fakeStore) seedEvent(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[ev.ID] = ev
}

func (f *fakeStore) eventSnapshot(id string) Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[id]
}
