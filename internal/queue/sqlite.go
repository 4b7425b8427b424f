package queue

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"smartplan/internal/event"
	logx "smartplan/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) InsertEvent(ctx context.Context, ev event.Event) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(id, task_id, kind, fire_at, description, recipient, deadline_text, reminders, status, last_error, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.TaskID, string(ev.Kind), ev.FireAt.UTC().UnixMilli(),
		ev.Payload.Description, ev.Payload.Recipient, ev.Payload.DeadlineText,
		nullStr(strings.Join(ev.Payload.Reminders, "\n")),
		string(event.StatusPending), nullStr(ev.LastError),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, ev.ID)
	}
	return err
}

func (s *sqliteStore) DeleteEvent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) UpdateStatus(ctx context.Context, id string, st event.Status, lastErr string) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, last_error = ? WHERE id = ?`,
		string(st), nullStr(lastErr), id,
	)
	return err
}

func (s *sqliteStore) LoadPending(ctx context.Context) ([]event.Event, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, kind, fire_at, description, recipient, deadline_text, reminders
		 FROM events WHERE status = ? ORDER BY fire_at, rowid`,
		string(event.StatusPending),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []event.Event
	for rows.Next() {
		var (
			ev        event.Event
			kind      string
			fireAt    int64
			reminders sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.TaskID, &kind, &fireAt,
			&ev.Payload.Description, &ev.Payload.Recipient, &ev.Payload.DeadlineText,
			&reminders); err != nil {
			return nil, err
		}
		ev.Kind = event.Kind(kind)
		ev.FireAt = time.UnixMilli(fireAt)
		ev.Status = event.StatusPending
		if reminders.Valid && reminders.String != "" {
			ev.Payload.Reminders = strings.Split(reminders.String, "\n")
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO delivery_audit(at, event_id, task_id, kind, outcome, notification_ok, email_ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.EventID, e.TaskID, e.Kind, e.Outcome,
		boolInt(e.NotificationOK), boolInt(e.EmailOK), nullStr(e.Error), e.TookMS,
	)
	return err
}

func (s *sqliteStore) PruneTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE status IN (?, ?) AND fire_at < ?`,
		string(event.StatusDelivered), string(event.StatusFailed), cutoff.UTC().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
