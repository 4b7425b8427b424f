// Package task owns the task model and the scheduling entry point that
// turns one task into its queue of confirmation, reminder and deadline
// events.
package task

import "time"

// MaxReminders caps the reminders a single task may carry.
const MaxReminders = 6

// Task is one deadline with up to MaxReminders reminder instants and a
// recipient for the email channel. Tasks are immutable once scheduled;
// there is no edit or delete path.
type Task struct {
	ID          string
	Description string
	Deadline    time.Time
	Reminders   []time.Time // ascending not required; each ≥5min before Deadline
	Email       string

	CreatedAt time.Time
}

// DeadlineText is the display form used in the confirmation email and the
// task list ("YYYY-MM-DD HH:MM").
func (t Task) DeadlineText() string {
	return t.Deadline.Format("2006-01-02 15:04")
}
