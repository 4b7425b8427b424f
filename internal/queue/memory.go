package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"smartplan/internal/event"
)

// memoryStore keeps events in process memory only. Used by tests and as the
// fallback when persistence is not configured.
type memoryStore struct {
	mu     sync.Mutex
	seq    uint64
	events map[string]memEvent
	audit  []AuditEntry
}

type memEvent struct {
	ev  event.Event
	seq uint64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{events: map[string]memEvent{}}
}

func (s *memoryStore) InsertEvent(ctx context.Context, ev event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.ID)
	}
	ev.Status = event.StatusPending
	s.seq++
	s.events[ev.ID] = memEvent{ev: ev, seq: s.seq}
	return nil
}

func (s *memoryStore) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
	return nil
}

func (s *memoryStore) UpdateStatus(ctx context.Context, id string, st event.Status, lastErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	me, ok := s.events[id]
	if !ok {
		return nil
	}
	me.ev.Status = st
	me.ev.LastError = lastErr
	s.events[id] = me
	return nil
}

func (s *memoryStore) LoadPending(ctx context.Context) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := make([]memEvent, 0, len(s.events))
	for _, me := range s.events {
		if me.ev.Status == event.StatusPending {
			pending = append(pending, me)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].ev.FireAt.Equal(pending[j].ev.FireAt) {
			return pending[i].ev.FireAt.Before(pending[j].ev.FireAt)
		}
		return pending[i].seq < pending[j].seq
	})
	out := make([]event.Event, len(pending))
	for i, me := range pending {
		out[i] = me.ev
	}
	return out, nil
}

func (s *memoryStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *memoryStore) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, me := range s.events {
		terminal := me.ev.Status == event.StatusDelivered || me.ev.Status == event.StatusFailed
		if terminal && me.ev.FireAt.Before(cutoff) {
			delete(s.events, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Close() error { return nil }
