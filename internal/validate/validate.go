// Package validate normalizes user-entered date/time strings into absolute
// instants and enforces the reminder lead-time rule.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	DateLayout     = "2006-01-02"
	TimeLayout     = "15:04"
	DateTimeLayout = "2006-01-02 15:04"

	// MinLead is the minimum gap between a reminder and its deadline.
	// A reminder exactly MinLead before the deadline is accepted.
	MinLead = 5 * time.Minute
)

var (
	// ErrInvalidFormat covers malformed or out-of-range date/time input.
	ErrInvalidFormat = errors.New("invalid date/time format")
	// ErrTooLate means the reminder is at or after the deadline.
	ErrTooLate = errors.New("reminder is not before the deadline")
	// ErrTooClose means the reminder is less than MinLead before the deadline.
	ErrTooClose = errors.New("reminder is less than 5 minutes before the deadline")
)

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRe = regexp.MustCompile(`^\d{2}:\d{2}$`)
)

// Validator parses and checks schedule input.
//
// Now and Loc are injectable so tests (and callers in other timezones)
// control what "the current local date" means. The zero value is not
// usable; construct with New.
type Validator struct {
	Now func() time.Time
	Loc *time.Location
}

func New(loc *time.Location) Validator {
	if loc == nil {
		loc = time.Local
	}
	return Validator{Now: time.Now, Loc: loc}
}

// ParseDateTime parses a strict "YYYY-MM-DD" date plus "HH:MM" (24h) time
// pair into an instant in the validator's location. Anything else,
// including empty strings and out-of-range fields, is ErrInvalidFormat.
func (v Validator) ParseDateTime(dateStr, timeStr string) (time.Time, error) {
	if !dateRe.MatchString(dateStr) || !timeRe.MatchString(timeStr) {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidFormat, dateStr, timeStr)
	}
	// The shape is right; ParseInLocation rejects out-of-range fields
	// (month 13, day 32, hour 24, ...).
	t, err := time.ParseInLocation(DateTimeLayout, dateStr+" "+timeStr, v.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidFormat, dateStr, timeStr)
	}
	return t, nil
}

// ResolveReminder parses a reminder's date/time input. A blank date means
// "today": the current date in the validator's location is substituted,
// resolved once here and never re-resolved later.
func (v Validator) ResolveReminder(dateStr, timeStr string) (time.Time, error) {
	if dateStr == "" {
		dateStr = v.now().In(v.loc()).Format(DateLayout)
	}
	return v.ParseDateTime(dateStr, timeStr)
}

// CheckReminder enforces the ordering and lead-time rules between a
// reminder instant and its deadline.
func (v Validator) CheckReminder(reminder, deadline time.Time) error {
	if !reminder.Before(deadline) {
		return ErrTooLate
	}
	if deadline.Sub(reminder) < MinLead {
		return ErrTooClose
	}
	return nil
}

func (v Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v Validator) loc() *time.Location {
	if v.Loc != nil {
		return v.Loc
	}
	return time.Local
}
