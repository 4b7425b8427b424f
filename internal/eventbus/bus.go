// Package eventbus decouples the dispatch pipeline from its observers.
//
// The app subscribes for audit logging; tests subscribe to await delivery
// outcomes without polling.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Well-known event types published by the scheduling core.
const (
	TypeTaskScheduled  = "task.scheduled"
	TypeEventDelivered = "event.delivered"
	TypeEventFailed    = "event.failed"
)

// DeliveryOutcome is the Data payload for event.delivered / event.failed.
type DeliveryOutcome struct {
	EventID string        `json:"event_id"`
	TaskID  string        `json:"task_id"`
	Kind    string        `json:"kind"`
	Took    time.Duration `json:"took"`

	NotificationOK bool   `json:"notification_ok"`
	EmailOK        bool   `json:"email_ok"`
	Error          string `json:"error,omitempty"`
}

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// Non-blocking delivery. If a subscriber unsubscribes concurrently
		// and the channel closes, recover from the send panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
