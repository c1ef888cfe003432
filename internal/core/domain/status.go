package domain

import "time"

// Mode names the two provider flavours.
type Mode string

const (
	ModeObserver Mode = "observer"
	ModePoll     Mode = "poll"
)

// StartReport describes what a start call subscribed to.
type StartReport struct {
	PermissionGranted bool     `json:"permission_granted"`
	Subscribed        []Source `json:"subscribed"`
	Skipped           []Source `json:"skipped"`
}

// Status is an operational snapshot of a provider. It intentionally carries
// no coordinates.
type Status struct {
	Mode              Mode             `json:"mode"`
	Policy            PermissionPolicy `json:"policy"`
	Request           Request          `json:"request"`
	Running           bool             `json:"running"`
	Closed            bool             `json:"closed"`
	ActiveSources     []Source         `json:"active_sources"`
	Delivered         map[Source]int64 `json:"delivered"`
	PermissionGranted bool             `json:"permission_granted"`
	LastStart         time.Time        `json:"last_start,omitempty"`
}

// EventType classifies lifecycle events published to operators.
type EventType string

const (
	EventSubscribed       EventType = "subscribed"
	EventUnsubscribed     EventType = "unsubscribed"
	EventSourceSkipped    EventType = "source_skipped"
	EventSourceFailed     EventType = "source_failed"
	EventPermissionDenied EventType = "permission_denied"
	EventShutdown         EventType = "shutdown"
)

// Event is a provider lifecycle notification.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	Mode   Mode      `json:"mode"`
	Source Source    `json:"source,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}
