// Package app wires the scheduling daemon together: config, logging,
// storage, queue, delivery channels, dispatcher and maintenance.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smartplan/internal/config"
	"smartplan/internal/delivery"
	"smartplan/internal/dispatch"
	"smartplan/internal/eventbus"
	"smartplan/internal/mail"
	"smartplan/internal/maintenance"
	"smartplan/internal/notify"
	"smartplan/internal/queue"
	"smartplan/internal/task"
	"smartplan/internal/validate"
	logx "smartplan/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	store queue.Store
	q     *queue.Queue
	tasks *task.Service
	disp  *dispatch.Dispatcher
	jan   *maintenance.Janitor

	cancelBg   context.CancelFunc
	bgWG       sync.WaitGroup
	auditUnsub func()
}

// New builds the whole daemon from the config file. Nothing runs until
// Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(cfg.LogxConfig())
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	cfgm.SetValidator(func(ctx context.Context, c *config.Config) error {
		return validateUpdate(c)
	})

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	qc, err := cfg.QueueConfig()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(qc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	q, err := queue.New(store, log.With(logx.String("comp", "queue")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notifier, err := notify.Open(cfg.NotifyConfig(), log.With(logx.String("comp", "notify")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open notifier: %w", err)
	}
	mc, err := cfg.MailConfig()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	mailer, err := mail.New(mc, log.With(logx.String("comp", "mail")))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open mailer: %w", err)
	}

	opt, err := cfg.DeliveryOptions()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	deliver := delivery.New(notifier, mailer, opt, log.With(logx.String("comp", "delivery")))
	disp := dispatch.New(q, deliver, bus, log.With(logx.String("comp", "dispatch")))

	sweep, err := cfg.SweepInterval()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	retention, err := cfg.PruneAfter()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	jan, err := maintenance.New(store, disp, loc, maintenance.Options{
		SweepInterval: sweep,
		PruneAt:       cfg.Maintenance.PruneAt,
		PruneAfter:    retention,
	}, log.With(logx.String("comp", "maintenance")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	tasks := task.NewService(q, task.NewStore(), validate.New(loc), bus,
		log.With(logx.String("comp", "task")))

	return &App{
		cfgm:  cfgm,
		logs:  logSvc,
		log:   log,
		bus:   bus,
		store: store,
		q:     q,
		tasks: tasks,
		disp:  disp,
		jan:   jan,
	}, nil
}

// Tasks is the programmatic scheduling API.
func (a *App) Tasks() *task.Service { return a.tasks }

// Start launches the dispatcher, maintenance jobs, the config watcher and
// the audit subscriber.
func (a *App) Start(ctx context.Context) {
	a.disp.Start(ctx)
	a.jan.Start()

	bgCtx, cancel := context.WithCancel(context.Background())
	a.cancelBg = cancel

	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		_ = a.cfgm.Watch(bgCtx)
	}()

	updates := a.cfgm.Subscribe(4)
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-bgCtx.Done():
				return
			case cfg, ok := <-updates:
				if !ok {
					return
				}
				a.applyUpdate(cfg)
			}
		}
	}()

	a.startAudit()
	a.log.Info("smartplan started", logx.Int("pending_events", a.q.Len()))
}

// Stop shuts the daemon down: no new timers fire, in-flight deliveries run
// to completion bounded by ctx, then storage and logging close.
func (a *App) Stop(ctx context.Context) {
	a.jan.Stop()
	a.disp.Stop(ctx)

	if a.cancelBg != nil {
		a.cancelBg()
	}
	if a.auditUnsub != nil {
		a.auditUnsub()
	}
	a.bgWG.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
	a.log.Info("smartplan stopped")
	_ = a.logs.Close()
}

// applyUpdate handles a hot-reloaded config. Only logging is re-applied
// live; storage, channels and schedules need a restart.
func (a *App) applyUpdate(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(cfg.LogxConfig())
	a.log.Info("logging config re-applied", logx.String("level", cfg.Logging.Level))
}

// startAudit persists every terminal delivery outcome.
func (a *App) startAudit() {
	ch, unsub := a.bus.Subscribe(64)
	a.auditUnsub = unsub
	a.bgWG.Add(1)
	go func() {
		defer a.bgWG.Done()
		for e := range ch {
			out, ok := e.Data.(eventbus.DeliveryOutcome)
			if !ok {
				continue
			}
			var outcome string
			switch e.Type {
			case eventbus.TypeEventDelivered:
				outcome = "delivered"
			case eventbus.TypeEventFailed:
				outcome = "failed"
			default:
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := a.store.AppendAudit(ctx, queue.AuditEntry{
				At:             e.Time,
				EventID:        out.EventID,
				TaskID:         out.TaskID,
				Kind:           out.Kind,
				Outcome:        outcome,
				NotificationOK: out.NotificationOK,
				EmailOK:        out.EmailOK,
				Error:          out.Error,
				TookMS:         out.Took.Milliseconds(),
			})
			cancel()
			if err != nil {
				a.log.Warn("audit append failed", logx.String("event", out.EventID), logx.Err(err))
			}
		}
	}()
}

// validateUpdate rejects configs that would break a live re-apply.
func validateUpdate(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if _, err := cfg.DeliveryOptions(); err != nil {
		return err
	}
	if _, err := cfg.SweepInterval(); err != nil {
		return err
	}
	_, err := cfg.PruneAfter()
	return err
}
