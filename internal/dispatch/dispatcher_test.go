package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartplan/internal/delivery"
	"smartplan/internal/event"
	"smartplan/internal/eventbus"
	"smartplan/internal/queue"
	logx "smartplan/pkg/logx"
)

type fakeDeliverer struct {
	mu    sync.Mutex
	seen  []string
	fail  map[string]error
	block chan struct{} // if non-nil, Deliver waits on it
}

func (f *fakeDeliverer) Deliver(ctx context.Context, ev event.Event) delivery.Result {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.seen = append(f.seen, ev.ID)
	err := f.fail[ev.ID]
	f.mu.Unlock()

	if err != nil {
		return delivery.Result{
			Notification: delivery.ChannelResult{OK: true},
			Email:        delivery.ChannelResult{Err: err},
		}
	}
	return delivery.Result{
		Notification: delivery.ChannelResult{OK: true},
		Email:        delivery.ChannelResult{OK: true},
	}
}

func (f *fakeDeliverer) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func newTestDispatcher(t *testing.T, fd *fakeDeliverer) (*Dispatcher, *queue.Queue, eventbus.Bus) {
	t.Helper()
	st, err := queue.Open(queue.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	q, err := queue.New(st, logx.Nop())
	if err != nil {
		t.Fatalf("New queue: %v", err)
	}
	bus := eventbus.New()
	return New(q, fd, bus, logx.Nop()), q, bus
}

func testEvent(id string, fireAt time.Time) event.Event {
	return event.Event{
		ID:     id,
		TaskID: "task-1",
		Kind:   event.KindReminder,
		FireAt: fireAt,
		Payload: event.Payload{
			Description: "Submit report",
			Recipient:   "user@example.com",
		},
	}
}

func awaitOutcome(t *testing.T, ch <-chan eventbus.Event, wantType, wantID string, timeout time.Duration) eventbus.DeliveryOutcome {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-ch:
			if e.Type != wantType {
				continue
			}
			out, ok := e.Data.(eventbus.DeliveryOutcome)
			if !ok || out.EventID != wantID {
				continue
			}
			return out
		case <-deadline:
			t.Fatalf("timed out waiting for %s of %s", wantType, wantID)
		}
	}
}

func TestDispatcherDeliversDueEvent(t *testing.T) {
	t.Parallel()
	fd := &fakeDeliverer{}
	d, q, bus := newTestDispatcher(t, fd)
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	d.Start(context.Background())
	defer d.Stop(context.Background())

	if err := q.Insert(context.Background(), testEvent("soon", time.Now().Add(50*time.Millisecond))); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	out := awaitOutcome(t, ch, eventbus.TypeEventDelivered, "soon", 3*time.Second)
	if !out.NotificationOK || !out.EmailOK {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestDispatcherEarlierInsertShortensWait(t *testing.T) {
	t.Parallel()
	fd := &fakeDeliverer{}
	d, q, bus := newTestDispatcher(t, fd)
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	d.Start(context.Background())
	defer d.Stop(context.Background())

	ctx := context.Background()
	if err := q.Insert(ctx, testEvent("far", time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	// The loop is now armed for an hour out; a sooner event must not have
	// to wait that timer out.
	if err := q.Insert(ctx, testEvent("near", time.Now().Add(50*time.Millisecond))); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	start := time.Now()
	awaitOutcome(t, ch, eventbus.TypeEventDelivered, "near", 3*time.Second)
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("earlier insert did not shorten the wait (took %v)", took)
	}

	if got := fd.delivered(); len(got) != 1 || got[0] != "near" {
		t.Fatalf("unexpected deliveries: %v", got)
	}
}

func TestDispatcherPastDueEventFiresImmediately(t *testing.T) {
	t.Parallel()
	fd := &fakeDeliverer{}
	d, q, bus := newTestDispatcher(t, fd)
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	// Inserted before start, already past due — caught-up delivery.
	if err := q.Insert(context.Background(), testEvent("late", time.Now().Add(-time.Minute))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	d.Start(context.Background())
	defer d.Stop(context.Background())

	awaitOutcome(t, ch, eventbus.TypeEventDelivered, "late", 3*time.Second)
}

func TestDispatcherFailureDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	fd := &fakeDeliverer{fail: map[string]error{"bad": errors.New("smtp down")}}
	d, q, bus := newTestDispatcher(t, fd)
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	d.Start(context.Background())
	defer d.Stop(context.Background())

	ctx := context.Background()
	at := time.Now().Add(30 * time.Millisecond)
	if err := q.Insert(ctx, testEvent("bad", at)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := q.Insert(ctx, testEvent("good", at)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	failed := awaitOutcome(t, ch, eventbus.TypeEventFailed, "bad", 3*time.Second)
	if failed.EmailOK || !failed.NotificationOK {
		t.Fatalf("unexpected failure outcome: %+v", failed)
	}
	awaitOutcome(t, ch, eventbus.TypeEventDelivered, "good", 3*time.Second)
}

func TestDispatcherStopWaitsForInflight(t *testing.T) {
	t.Parallel()
	fd := &fakeDeliverer{block: make(chan struct{})}
	d, q, _ := newTestDispatcher(t, fd)

	d.Start(context.Background())
	if err := q.Insert(context.Background(), testEvent("slow", time.Now())); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// Wait for the delivery goroutine to pick the event up.
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never left the pending set")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		d.Stop(context.Background())
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a delivery was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(fd.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight delivery finished")
	}

	if got := fd.delivered(); len(got) != 1 || got[0] != "slow" {
		t.Fatalf("in-flight delivery did not run to completion: %v", got)
	}
}

func TestDispatcherKickTriggersSweep(t *testing.T) {
	t.Parallel()
	fd := &fakeDeliverer{}
	d, q, bus := newTestDispatcher(t, fd)
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	d.Start(context.Background())
	defer d.Stop(context.Background())

	if err := q.Insert(context.Background(), testEvent("swept", time.Now().Add(-time.Second))); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	d.Kick()
	awaitOutcome(t, ch, eventbus.TypeEventDelivered, "swept", 3*time.Second)
}
