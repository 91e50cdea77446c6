package domain

// EventKind distinguishes status transitions from location-only refreshes.
// Location events may be coalesced on the way to a slow subscriber; status
// events never are.
type EventKind string

const (
	EventStatusChanged   EventKind = "status_changed"
	EventLocationUpdated EventKind = "location_updated"
)

// ChangeEvent is emitted by the registry after a record change is persisted.
// Record is a private copy owned by the event.
type ChangeEvent struct {
	Kind   EventKind
	Record *OrderStatusRecord
}
