package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartplan/internal/event"
	"smartplan/internal/eventbus"
	"smartplan/internal/queue"
	"smartplan/internal/validate"
	logx "smartplan/pkg/logx"
)

var (
	// ErrMissingField means description, deadline date/time or email was blank.
	ErrMissingField = errors.New("all fields are required")
	// ErrTooManyReminders means more than MaxReminders reminders were given.
	ErrTooManyReminders = errors.New("a task can carry at most 6 reminders")
)

// Request is the raw task-creation input, strings as the caller typed them.
type Request struct {
	Description  string
	DeadlineDate string // "YYYY-MM-DD"
	DeadlineTime string // "HH:MM", 24h
	Reminders    []ReminderInput
	Email        string
}

// ReminderInput is one reminder row. A blank Time means the row is unused
// and is skipped; a blank Date means "today", resolved at validation time.
type ReminderInput struct {
	Date string
	Time string
}

// Service validates task requests and enqueues their scheduled events.
type Service struct {
	log   logx.Logger
	val   validate.Validator
	q     *queue.Queue
	store *Store
	bus   eventbus.Bus

	now func() time.Time
}

func NewService(q *queue.Queue, store *Store, val validate.Validator, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:   log,
		val:   val,
		q:     q,
		store: store,
		bus:   bus,
		now:   time.Now,
	}
}

// ScheduleTask validates the request and, if every field passes, creates
// the task and inserts its events: one confirmation (fires immediately),
// one deadline notice, and one per reminder. Any validation failure
// rejects the whole request — no task, no events.
//
// Deadline and reminder events whose instant has already passed at
// creation time are not scheduled; the confirmation still fires.
func (s *Service) ScheduleTask(ctx context.Context, req Request) (string, error) {
	description := strings.TrimSpace(req.Description)
	email := strings.TrimSpace(req.Email)
	if description == "" || email == "" ||
		strings.TrimSpace(req.DeadlineDate) == "" || strings.TrimSpace(req.DeadlineTime) == "" {
		return "", ErrMissingField
	}

	deadline, err := s.val.ParseDateTime(req.DeadlineDate, req.DeadlineTime)
	if err != nil {
		return "", fmt.Errorf("deadline: %w", err)
	}

	var (
		reminders       []time.Time
		reminderDisplay []string
	)
	for _, in := range req.Reminders {
		if strings.TrimSpace(in.Time) == "" {
			continue
		}
		if len(reminders) == MaxReminders {
			return "", ErrTooManyReminders
		}
		r, err := s.val.ResolveReminder(strings.TrimSpace(in.Date), strings.TrimSpace(in.Time))
		if err != nil {
			return "", fmt.Errorf("reminder: %w", err)
		}
		if err := s.val.CheckReminder(r, deadline); err != nil {
			return "", fmt.Errorf("reminder %s: %w", r.Format(validate.DateTimeLayout), err)
		}
		reminders = append(reminders, r)
		reminderDisplay = append(reminderDisplay, r.Format(validate.DateTimeLayout))
	}

	now := s.now()
	t := Task{
		ID:          uuid.NewString(),
		Description: description,
		Deadline:    deadline,
		Reminders:   reminders,
		Email:       email,
		CreatedAt:   now,
	}

	payload := event.Payload{
		Description:  description,
		Recipient:    email,
		DeadlineText: t.DeadlineText(),
	}

	events := make([]event.Event, 0, 2+len(reminders))
	confirmPayload := payload
	confirmPayload.Reminders = reminderDisplay
	events = append(events, event.Event{
		ID:      t.ID + ":confirm",
		TaskID:  t.ID,
		Kind:    event.KindConfirmation,
		FireAt:  now,
		Payload: confirmPayload,
	})
	if deadline.After(now) {
		events = append(events, event.Event{
			ID:      t.ID + ":deadline",
			TaskID:  t.ID,
			Kind:    event.KindDeadline,
			FireAt:  deadline,
			Payload: payload,
		})
	}
	for i, r := range reminders {
		if !r.After(now) {
			continue
		}
		events = append(events, event.Event{
			ID:      fmt.Sprintf("%s:reminder:%d", t.ID, i),
			TaskID:  t.ID,
			Kind:    event.KindReminder,
			FireAt:  r,
			Payload: payload,
		})
	}

	for i, ev := range events {
		if err := s.q.Insert(ctx, ev); err != nil {
			// Unwind what was already queued; the task is all or nothing.
			for _, queued := range events[:i] {
				_ = s.q.Cancel(ctx, queued.ID)
			}
			return "", fmt.Errorf("queue event %s: %w", ev.ID, err)
		}
	}

	s.store.Add(t)
	s.log.Info("task scheduled",
		logx.String("task", t.ID),
		logx.Time("deadline", deadline),
		logx.Int("reminders", len(reminders)),
		logx.Int("events", len(events)))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTaskScheduled, Data: t.ID})
	}
	return t.ID, nil
}
