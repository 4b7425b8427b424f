package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"smartplan/internal/event"
	"smartplan/internal/queue"
	logx "smartplan/pkg/logx"
)

type fakeKicker struct {
	mu sync.Mutex
	n  int
}

func (k *fakeKicker) Kick() {
	k.mu.Lock()
	k.n++
	k.mu.Unlock()
}

func (k *fakeKicker) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.n
}

func TestBuildDailySpec(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"03:30", "0 30 3 * * *", true},
		{"00:00", "0 0 0 * * *", true},
		{"23:59", "0 59 23 * * *", true},
		{"24:00", "", false},
		{"12:60", "", false},
		{"noon", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := buildDailySpec(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("buildDailySpec(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
		if !tc.ok && err == nil {
			t.Fatalf("buildDailySpec(%q) accepted", tc.in)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	t.Parallel()
	o := Options{}.withDefaults()
	if o.SweepInterval != time.Minute || o.PruneAt != "03:30" || o.PruneAfter != 720*time.Hour {
		t.Fatalf("defaults = %+v", o)
	}
}

func TestJanitorRejectsBadPruneTime(t *testing.T) {
	t.Parallel()
	st, err := queue.Open(queue.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if _, err := New(st, nil, time.UTC, Options{PruneAt: "25:00"}, logx.Nop()); err == nil {
		t.Fatal("bad prune time accepted")
	}
}

func TestSweepKicksDispatcher(t *testing.T) {
	t.Parallel()
	st, err := queue.Open(queue.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	k := &fakeKicker{}
	j, err := New(st, k, time.UTC, Options{SweepInterval: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.Start()
	defer j.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for k.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep never kicked the dispatcher")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestPruneRemovesOldTerminalEvents(t *testing.T) {
	t.Parallel()
	st, err := queue.Open(queue.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	old := event.Event{
		ID:     "old-delivered",
		TaskID: "t1",
		Kind:   event.KindReminder,
		FireAt: time.Now().Add(-48 * time.Hour),
		Status: event.StatusPending,
	}
	if err := st.InsertEvent(ctx, old); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if err := st.UpdateStatus(ctx, old.ID, event.StatusDelivered, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	j, err := New(st, nil, time.UTC, Options{PruneAfter: time.Hour}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Direct call; the schedule itself belongs to cron.
	j.prune()

	pending, err := st.LoadPending(ctx)
	if err != nil {
		t.Fatalf("LoadPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after prune = %v", pending)
	}
	// A second prune finds nothing left to remove.
	n, err := st.PruneTerminal(ctx, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("second prune removed %d, err %v", n, err)
	}
}
