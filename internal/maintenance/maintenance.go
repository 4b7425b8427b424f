// Package maintenance runs the background janitor jobs: a periodic
// catch-up sweep over the dispatcher and a daily prune of terminal events.
package maintenance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"smartplan/internal/queue"
	logx "smartplan/pkg/logx"
)

// Kicker is the dispatcher's re-check hook.
type Kicker interface {
	Kick()
}

type Options struct {
	// SweepInterval is how often the dispatcher is kicked to re-check for
	// due events. 0 means every minute.
	SweepInterval time.Duration

	// PruneAt is the daily prune time as "HH:MM". Empty means "03:30".
	PruneAt string

	// PruneAfter is how long terminal events are retained. 0 means 30 days.
	PruneAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if strings.TrimSpace(o.PruneAt) == "" {
		o.PruneAt = "03:30"
	}
	if o.PruneAfter <= 0 {
		o.PruneAfter = 720 * time.Hour
	}
	return o
}

// Janitor wraps the cron-backed maintenance jobs.
type Janitor struct {
	log   logx.Logger
	cron  *cron.Cron
	store queue.Store
	kick  Kicker
	opt   Options
}

func New(store queue.Store, kick Kicker, loc *time.Location, opt Options, log logx.Logger) (*Janitor, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	j := &Janitor{
		log:   log,
		cron:  cron.New(cron.WithLocation(loc), cron.WithSeconds()),
		store: store,
		kick:  kick,
		opt:   opt.withDefaults(),
	}

	sweepSpec := fmt.Sprintf("@every %ds", max(1, int(j.opt.SweepInterval.Seconds())))
	if _, err := j.cron.AddFunc(sweepSpec, j.sweep); err != nil {
		return nil, fmt.Errorf("register sweep: %w", err)
	}

	pruneSpec, err := buildDailySpec(j.opt.PruneAt)
	if err != nil {
		return nil, fmt.Errorf("prune_at: %w", err)
	}
	if _, err := j.cron.AddFunc(pruneSpec, j.prune); err != nil {
		return nil, fmt.Errorf("register prune: %w", err)
	}
	return j, nil
}

func (j *Janitor) Start() {
	j.cron.Start()
	j.log.Info("maintenance started",
		logx.Duration("sweep_interval", j.opt.SweepInterval),
		logx.String("prune_at", j.opt.PruneAt),
		logx.Duration("prune_after", j.opt.PruneAfter))
}

// Stop halts scheduling and waits for any running job to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

// sweep nudges the dispatcher. Timers can be missed across suspend/resume
// and clock jumps; the sweep guarantees due events still fire promptly.
func (j *Janitor) sweep() {
	if j.kick != nil {
		j.kick.Kick()
	}
}

func (j *Janitor) prune() {
	cutoff := time.Now().Add(-j.opt.PruneAfter)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := j.store.PruneTerminal(ctx, cutoff)
	if err != nil {
		j.log.Warn("prune failed", logx.Err(err))
		return
	}
	if n > 0 {
		j.log.Info("terminal events pruned", logx.Int64("removed", n), logx.Time("cutoff", cutoff))
	}
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// cron format: second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
