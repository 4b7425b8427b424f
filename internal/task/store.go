package task

import (
	"sync"
	"time"
)

// Store holds the created tasks for list and calendar queries.
//
// This is the collaborator the scheduling core appends to; it owns no
// scheduling state and is deliberately in-memory only (the event queue,
// not the task list, is what survives a restart).
type Store struct {
	mu    sync.Mutex
	tasks []Task
	byDay map[string][]Task
}

func NewStore() *Store {
	return &Store{byDay: map[string][]Task{}}
}

func (s *Store) Add(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	day := t.Deadline.Format("2006-01-02")
	s.byDay[day] = append(s.byDay[day], t)
}

// List returns all tasks in creation order.
func (s *Store) List() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.tasks...)
}

// ByDay returns the tasks whose deadline falls on the given day — the
// calendar view's query.
func (s *Store) ByDay(day time.Time) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Task(nil), s.byDay[day.Format("2006-01-02")]...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
