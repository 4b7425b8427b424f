// Package event defines the scheduled-event model shared by the queue,
// dispatcher and delivery layers.
package event

import "time"

// Kind distinguishes why an event fires.
//
// Values are persisted; do not rename.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindReminder     Kind = "reminder"
	KindDeadline     Kind = "deadline"
)

// Status is the lifecycle state of a scheduled event.
//
// Pending events are owned by the queue. Delivered/Failed are terminal:
// an event never fires twice, even across a process restart.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Payload carries everything delivery needs to render the notification
// and email for one event. Strings only, so it persists as-is.
type Payload struct {
	Description  string
	Recipient    string
	DeadlineText string

	// Reminders holds the pre-formatted reminder lines shown in the
	// confirmation email. Empty for reminder/deadline events.
	Reminders []string
}

// Event is one scheduled action (confirmation, reminder or deadline notice)
// tied to a single fire instant.
type Event struct {
	ID     string
	TaskID string
	Kind   Kind
	FireAt time.Time

	Payload Payload

	Status    Status
	LastError string
}

// Due reports whether the event should fire at or before now.
func (e Event) Due(now time.Time) bool {
	return !e.FireAt.After(now)
}
