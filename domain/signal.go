package domain

// CapacityFreedSignal is the wire envelope for a capacity-freed hint.
// It deliberately carries nothing but the event ID; the promoter
// re-reads current state. ID exists only so consumers can deduplicate
// redeliveries.
type CapacityFreedSignal struct {
	ID      string `json:"id"`
	EventID string `json:"eventId"`
}
