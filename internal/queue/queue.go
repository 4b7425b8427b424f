package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"smartplan/internal/event"
	logx "smartplan/pkg/logx"
)

// Queue is the durable set of pending scheduled events, ordered by fire
// instant (ties broken by insertion order).
//
// All mutations are serialized by a single mutex: the creation path and the
// dispatch path share no other state. An event popped by DueBefore stays
// known to the queue (so its id cannot be reused) until a terminal mark
// releases it.
type Queue struct {
	mu sync.Mutex

	log   logx.Logger
	store Store

	items items
	byID  map[string]*item
	seq   uint64

	wake chan struct{}
}

type item struct {
	ev    event.Event
	seq   uint64
	index int // heap index; -1 once popped by DueBefore
}

// New builds the queue on top of store, reloading every pending event.
// Events whose fire instant has already passed are kept: they are
// immediately due on the first DueBefore call.
func New(store Store, log logx.Logger) (*Queue, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	q := &Queue{
		log:   log,
		store: store,
		byID:  map[string]*item{},
		wake:  make(chan struct{}, 1),
	}

	pending, err := store.LoadPending(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load pending events: %w", err)
	}
	for _, ev := range pending {
		q.seq++
		it := &item{ev: ev, seq: q.seq}
		q.byID[ev.ID] = it
		heap.Push(&q.items, it)
	}
	if len(pending) > 0 {
		q.log.Info("pending events restored", logx.Int("count", len(pending)))
	}
	return q, nil
}

// Wake is signalled (non-blocking, coalesced) whenever an insert may have
// changed the soonest fire instant. The dispatcher selects on it.
func (q *Queue) Wake() <-chan struct{} { return q.wake }

// Insert adds a pending event. Inserting an id that is already known —
// pending or in flight — fails with ErrDuplicateEvent.
func (q *Queue) Insert(ctx context.Context, ev event.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byID[ev.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.ID)
	}
	ev.Status = event.StatusPending
	if err := q.store.InsertEvent(ctx, ev); err != nil {
		return err
	}

	q.seq++
	it := &item{ev: ev, seq: q.seq}
	q.byID[ev.ID] = it
	heap.Push(&q.items, it)

	q.log.Debug("event queued",
		logx.String("event", ev.ID),
		logx.String("kind", string(ev.Kind)),
		logx.Time("fire_at", ev.FireAt))

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// DueBefore pops every pending event whose fire instant is at or before
// now, in instant order. Popped events are no longer pending: calling
// DueBefore again without new inserts returns nothing.
func (q *Queue) DueBefore(now time.Time) []event.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	var due []event.Event
	for q.items.Len() > 0 {
		top := q.items[0]
		if top.ev.FireAt.After(now) {
			break
		}
		heap.Pop(&q.items)
		top.index = -1
		due = append(due, top.ev)
	}
	return due
}

// Cancel removes a pending event. Cancelling an unknown or already-fired
// event is a no-op, not an error.
func (q *Queue) Cancel(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[id]
	if !ok || it.index < 0 {
		return nil
	}
	heap.Remove(&q.items, it.index)
	delete(q.byID, id)
	return q.store.DeleteEvent(ctx, id)
}

// NextFireAt returns the soonest pending fire instant, if any.
func (q *Queue) NextFireAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return time.Time{}, false
	}
	return q.items[0].ev.FireAt, true
}

// Len reports the number of pending (not yet popped) events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// MarkDelivered records the terminal delivered state for a fired event and
// releases its id.
func (q *Queue) MarkDelivered(ctx context.Context, id string) error {
	return q.markTerminal(ctx, id, event.StatusDelivered, "")
}

// MarkFailed records the terminal failed state for a fired event and
// releases its id. Failed is terminal: the event is not re-queued.
func (q *Queue) MarkFailed(ctx context.Context, id, lastErr string) error {
	return q.markTerminal(ctx, id, event.StatusFailed, lastErr)
}

func (q *Queue) markTerminal(ctx context.Context, id string, st event.Status, lastErr string) error {
	q.mu.Lock()
	delete(q.byID, id)
	q.mu.Unlock()
	return q.store.UpdateStatus(ctx, id, st, lastErr)
}

// ---- heap ----

type items []*item

func (h items) Len() int { return len(h) }

func (h items) Less(i, j int) bool {
	if !h[i].ev.FireAt.Equal(h[j].ev.FireAt) {
		return h[i].ev.FireAt.Before(h[j].ev.FireAt)
	}
	return h[i].seq < h[j].seq
}

func (h items) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *items) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *items) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
