package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"smartplan/internal/event"
	logx "smartplan/pkg/logx"
)

var (
	// ErrDuplicateEvent means an event with the same id was already inserted.
	// This is an invariant violation: event ids are derived from task ids and
	// are unique by construction.
	ErrDuplicateEvent = errors.New("duplicate event id")

	ErrDisabled = errors.New("storage disabled")
)

// Config configures event persistence.
//
// Driver values:
//   - "sqlite": SQLite database file (survives restarts)
//   - "memory": process-local only (tests, throwaway runs)
//
// An empty Driver means "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one terminal delivery outcome.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time
	EventID string
	TaskID  string
	Kind    string
	Outcome string // "delivered" | "failed"

	NotificationOK bool
	EmailOK        bool
	Error          string
	TookMS         int64
}

// Store is the persistence API behind the event queue.
//
// Pending events must survive a process restart; terminal transitions are
// the dedup record that keeps an event from ever firing twice.
type Store interface {
	InsertEvent(ctx context.Context, ev event.Event) error
	DeleteEvent(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, st event.Status, lastErr string) error

	// LoadPending returns all non-terminal events ordered by fire instant,
	// then insertion order. Past-due events are included: they become
	// immediately due, not dropped.
	LoadPending(ctx context.Context) ([]event.Event, error)

	AppendAudit(ctx context.Context, e AuditEntry) error

	// PruneTerminal removes delivered/failed events whose fire instant is
	// before the cutoff. Returns the number of rows removed.
	PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return newMemoryStore(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
