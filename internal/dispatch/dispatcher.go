// Package dispatch drives scheduled events to delivery at their fire
// instants.
//
// One loop goroutine sleeps until the soonest pending instant. An insert
// with a sooner instant interrupts the wait through the queue's wake
// channel, so the loop never has to wait out a stale timer. Each due event
// is delivered on its own goroutine and reaches a terminal state (delivered
// or failed) exactly once; one event's failure never blocks the rest.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"smartplan/internal/delivery"
	"smartplan/internal/event"
	"smartplan/internal/eventbus"
	"smartplan/internal/queue"
	logx "smartplan/pkg/logx"
)

// Deliverer executes the side effects of one fired event.
type Deliverer interface {
	Deliver(ctx context.Context, ev event.Event) delivery.Result
}

type Dispatcher struct {
	log     logx.Logger
	q       *queue.Queue
	deliver Deliverer
	bus     eventbus.Bus

	mu        sync.Mutex
	stopCh    chan struct{}
	runCancel context.CancelFunc

	loopWG   sync.WaitGroup
	inflight sync.WaitGroup

	kick chan struct{}
}

func New(q *queue.Queue, deliver Deliverer, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		log:     log,
		q:       q,
		deliver: deliver,
		bus:     bus,
		kick:    make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop. Start is idempotent while running.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopCh != nil {
		return
	}
	d.stopCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	d.runCancel = cancel

	stopCh := d.stopCh
	d.loopWG.Add(1)
	go func() {
		defer d.loopWG.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("panic in dispatch loop",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		d.loop(runCtx, stopCh)
	}()
	d.log.Info("dispatcher started", logx.Int("pending", d.q.Len()))
}

// Stop stops accepting new wakeups and waits — bounded by ctx — for
// in-flight deliveries to run to completion.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	stopCh := d.stopCh
	cancel := d.runCancel
	d.stopCh = nil
	d.runCancel = nil
	d.mu.Unlock()

	if stopCh == nil {
		return
	}
	start := time.Now()
	close(stopCh)
	if cancel != nil {
		cancel()
	}
	d.loopWG.Wait()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.log.Info("dispatcher stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		d.log.Warn("dispatcher stop timed out waiting for in-flight deliveries")
	}
}

// Kick asks the loop to re-check for due events immediately. Used by the
// periodic catch-up sweep as insurance against a missed timer.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) loop(ctx context.Context, stopCh <-chan struct{}) {
	for {
		var (
			timerC <-chan time.Time
			tmr    *time.Timer
		)
		if next, ok := d.q.NextFireAt(); ok {
			wait := time.Until(next)
			if wait < 0 {
				wait = 0
			}
			tmr = time.NewTimer(wait)
			timerC = tmr.C
		}
		// No pending events: both channels nil, the select blocks until
		// an insert or shutdown.

		select {
		case <-ctx.Done():
			stopTimer(tmr)
			return
		case <-stopCh:
			stopTimer(tmr)
			return
		case <-d.q.Wake():
			// An insert may have moved the soonest instant; recompute.
			stopTimer(tmr)
			continue
		case <-d.kick:
			stopTimer(tmr)
			d.dispatchDue()
		case <-timerC:
			d.dispatchDue()
		}
	}
}

func (d *Dispatcher) dispatchDue() {
	due := d.q.DueBefore(time.Now())
	if len(due) == 0 {
		return
	}
	d.log.Debug("events due", logx.Int("count", len(due)))
	for _, ev := range due {
		ev := ev
		d.inflight.Add(1)
		go d.run(ev)
	}
}

func (d *Dispatcher) run(ev event.Event) {
	defer d.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic delivering event",
				logx.String("event", ev.ID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			d.finish(ev, delivery.Result{}, fmt.Sprintf("panic: %v", r), time.Now())
		}
	}()

	start := time.Now()
	// In-flight deliveries run to completion even across shutdown, so the
	// delivery context is deliberately not tied to the run context. The
	// delivery layer bounds each attempt itself.
	res := d.deliver.Deliver(context.Background(), ev)

	if res.OK() {
		if err := d.q.MarkDelivered(context.Background(), ev.ID); err != nil {
			d.log.Error("failed to record delivered state", logx.String("event", ev.ID), logx.Err(err))
		}
		d.log.Info("event delivered",
			logx.String("event", ev.ID),
			logx.String("kind", string(ev.Kind)),
			logx.Duration("took", time.Since(start)))
		d.publish(eventbus.TypeEventDelivered, ev, res, start)
		return
	}

	d.finish(ev, res, res.Err().Error(), start)
}

func (d *Dispatcher) finish(ev event.Event, res delivery.Result, errMsg string, start time.Time) {
	if err := d.q.MarkFailed(context.Background(), ev.ID, errMsg); err != nil {
		d.log.Error("failed to record failed state", logx.String("event", ev.ID), logx.Err(err))
	}
	d.log.Warn("event delivery failed",
		logx.String("event", ev.ID),
		logx.String("kind", string(ev.Kind)),
		logx.String("err", errMsg),
		logx.Duration("took", time.Since(start)))
	d.publish(eventbus.TypeEventFailed, ev, res, start)
}

func (d *Dispatcher) publish(typ string, ev event.Event, res delivery.Result, start time.Time) {
	if d.bus == nil {
		return
	}
	out := eventbus.DeliveryOutcome{
		EventID:        ev.ID,
		TaskID:         ev.TaskID,
		Kind:           string(ev.Kind),
		Took:           time.Since(start),
		NotificationOK: res.Notification.Err == nil,
		EmailOK:        res.Email.Err == nil,
	}
	if err := res.Err(); err != nil {
		out.Error = err.Error()
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: out})
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
