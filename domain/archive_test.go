package domain

import (
	"context"
	"testing"
	"time"
)

func TestArchivePastMovesEndedEvents(t *testing.T) {
	store := newFakeStore()
	endedA := testEvent("ev-a", 10, 4)
	endedA.Date = testNow.Add(-48 * time.Hour)
	endedB := testEvent("ev-b", 10, 10)
	endedB.Date = testNow.Add(-24 * time.Hour)
	upcoming := testEvent("ev-c", 10, 0)
	upcoming.Date = testNow.Add(24 * time.Hour)
	store.seedEvent(endedA)
	store.seedEvent(endedB)
	store.seedEvent(upcoming)

	n, err := NewArchiver(store, store).ArchivePast(context.Background(), testNow)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d events, want 2", n)
	}

	for _, id := range []string{"ev-a", "ev-b"} {
		if got := store.eventSnapshot(id).Status; got != EventArchived {
			t.Fatalf("event %s status = %s, want Archived", id, got)
		}
	}
	if got := store.eventSnapshot("ev-c").Status; got != EventActive {
		t.Fatalf("upcoming event archived: %s", got)
	}

	month := endedA.Date.UTC().Format("2006-01")
	snaps, err := store.ListArchivedMonth(context.Background(), month, 10)
	if err != nil {
		t.Fatalf("list archived: %v", err)
	}
	if len(snaps) == 0 {
		t.Fatalf("no snapshots in bucket %s", month)
	}
	for _, snap := range snaps {
		if snap.EventID == "ev-a" && snap.ConfirmedCount != 4 {
			t.Fatalf("snapshot lost attendance: %+v", snap)
		}
	}
}

func TestArchivePastSecondSweepIsNoOp(t *testing.T) {
	store := newFakeStore()
	ended := testEvent("ev-a", 10, 1)
	ended.Date = testNow.Add(-24 * time.Hour)
	store.seedEvent(ended)
	archiver := NewArchiver(store, store)

	if _, err := archiver.ArchivePast(context.Background(), testNow); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	n, err := archiver.ArchivePast(context.Background(), testNow)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("second sweep archived %d events, want 0", n)
	}
}

func TestSnapshotBucketsByCalendarMonth(t *testing.T) {
	ev := testEvent("ev-a", 10, 2)
	ev.Date = time.Date(2026, 2, 10, 18, 0, 0, 0, time.UTC)
	snap := snapshotForArchive(ev, testNow)
	if snap.YearMonth != "2026-02" {
		t.Fatalf("year month = %s, want 2026-02", snap.YearMonth)
	}
	if snap.DateEventID != "2026-02-10T18:00:00Z#ev-a" {
		t.Fatalf("sort key = %s", snap.DateEventID)
	}
	if snap.ArchivedAt != testNow {
		t.Fatalf("archived at = %v", snap.ArchivedAt)
	}
}
