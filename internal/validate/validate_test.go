package validate

import (
	"errors"
	"testing"
	"time"
)

func fixedValidator(now time.Time) Validator {
	v := New(time.UTC)
	v.Now = func() time.Time { return now }
	return v
}

func TestParseDateTimeValid(t *testing.T) {
	t.Parallel()
	v := New(time.UTC)

	got, err := v.ParseDateTime("2025-03-10", "17:00")
	if err != nil {
		t.Fatalf("ParseDateTime error: %v", err)
	}
	want := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseDateTimeInvalid(t *testing.T) {
	t.Parallel()
	v := New(time.UTC)

	tests := []struct {
		name string
		date string
		time string
	}{
		{name: "empty date", date: "", time: "17:00"},
		{name: "empty time", date: "2025-03-10", time: ""},
		{name: "both empty", date: "", time: ""},
		{name: "slashes", date: "2025/03/10", time: "17:00"},
		{name: "short year", date: "25-03-10", time: "17:00"},
		{name: "single digit month", date: "2025-3-10", time: "17:00"},
		{name: "single digit hour", date: "2025-03-10", time: "9:00"},
		{name: "seconds", date: "2025-03-10", time: "17:00:00"},
		{name: "month 13", date: "2025-13-10", time: "17:00"},
		{name: "day 32", date: "2025-03-32", time: "17:00"},
		{name: "hour 24", date: "2025-03-10", time: "24:00"},
		{name: "minute 60", date: "2025-03-10", time: "17:60"},
		{name: "garbage", date: "not-a-date", time: "later"},
		{name: "12h clock", date: "2025-03-10", time: "5 PM"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.ParseDateTime(tt.date, tt.time)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Fatalf("ParseDateTime(%q, %q) = %v, want ErrInvalidFormat", tt.date, tt.time, err)
			}
		})
	}
}

func TestResolveReminderBlankDateUsesToday(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)
	v := fixedValidator(now)

	got, err := v.ResolveReminder("", "16:50")
	if err != nil {
		t.Fatalf("ResolveReminder error: %v", err)
	}
	want := time.Date(2025, 3, 10, 16, 50, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveReminderExplicitDate(t *testing.T) {
	t.Parallel()
	v := fixedValidator(time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC))

	got, err := v.ResolveReminder("2025-03-11", "09:15")
	if err != nil {
		t.Fatalf("ResolveReminder error: %v", err)
	}
	want := time.Date(2025, 3, 11, 9, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCheckReminderBoundaries(t *testing.T) {
	t.Parallel()
	v := New(time.UTC)
	deadline := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		reminder time.Time
		want     error
	}{
		{name: "well before", reminder: deadline.Add(-2 * time.Hour), want: nil},
		{name: "exactly five minutes", reminder: deadline.Add(-5 * time.Minute), want: nil},
		{name: "4m59s before", reminder: deadline.Add(-4*time.Minute - 59*time.Second), want: ErrTooClose},
		{name: "one minute before", reminder: deadline.Add(-time.Minute), want: ErrTooClose},
		{name: "equal to deadline", reminder: deadline, want: ErrTooLate},
		{name: "after deadline", reminder: deadline.Add(time.Minute), want: ErrTooLate},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.CheckReminder(tt.reminder, deadline)
			if !errors.Is(err, tt.want) && !(tt.want == nil && err == nil) {
				t.Fatalf("CheckReminder = %v, want %v", err, tt.want)
			}
		})
	}
}
