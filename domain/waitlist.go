package domain

import (
	"fmt"
	"time"
)

// WaitlistEntry queues a user for promotion once a seat frees up.
// Entries for one event are totally ordered by SortKey; the promoter
// always takes the lexicographically smallest entry.
type WaitlistEntry struct {
	EventID  string    `json:"eventId"`
	SortKey  string    `json:"sortKey"`
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewWaitlistEntry stamps the join time and derives the FIFO sort key.
func NewWaitlistEntry(eventID, userID string, now time.Time) WaitlistEntry {
	joined := now.UTC()
	return WaitlistEntry{
		EventID:  eventID,
		SortKey:  WaitlistSortKey(joined, userID),
		UserID:   userID,
		JoinedAt: joined,
	}
}

// WaitlistSortKey concatenates the join timestamp with the user ID so
// same-instant joins still order deterministically and uniquely.
// RFC3339 with fixed nanosecond width keeps lexicographic order equal
// to chronological order.
func WaitlistSortKey(joinedAt time.Time, userID string) string {
	return fmt.Sprintf("%s#%s", joinedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"), userID)
}
