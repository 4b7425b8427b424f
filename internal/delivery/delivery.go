// Package delivery executes the side effects of a fired event: a local
// notification and a transactional email, as two independent channels.
//
// A channel failure never short-circuits the other channel, and an
// unavailable notification surface counts as a no-op success — the email
// is still sent. Each channel gets its own bounded retry budget.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"smartplan/internal/event"
	"smartplan/internal/mail"
	"smartplan/internal/notify"
	logx "smartplan/pkg/logx"
)

// Options bound one delivery attempt sequence.
type Options struct {
	RetryMax       int           // retries after the first attempt (default 2, i.e. 3 attempts)
	RetryBase      time.Duration // first backoff delay (default 500ms)
	RetryMaxDelay  time.Duration // backoff cap (default 15s)
	RetryJitter    float64       // 0.2 = 20%
	AttemptTimeout time.Duration // per-attempt bound (default 30s)
}

func (o Options) withDefaults() Options {
	if o.RetryMax < 0 {
		o.RetryMax = 0
	} else if o.RetryMax == 0 {
		o.RetryMax = 2
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 500 * time.Millisecond
	}
	if o.RetryMaxDelay <= 0 {
		o.RetryMaxDelay = 15 * time.Second
	}
	if o.RetryJitter <= 0 {
		o.RetryJitter = 0.2
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = 30 * time.Second
	}
	return o
}

// ChannelResult is the outcome of one delivery channel.
type ChannelResult struct {
	OK      bool
	Skipped bool // surface unavailable; treated as success
	Err     error
}

// Result is the per-channel outcome of delivering one event.
type Result struct {
	Notification ChannelResult
	Email        ChannelResult
}

// OK reports whether both channels succeeded (a skipped notification
// surface counts as success).
func (r Result) OK() bool {
	return r.Notification.Err == nil && r.Email.Err == nil
}

// Err joins the per-channel failures, tagged by channel.
func (r Result) Err() error {
	var errs []error
	if r.Notification.Err != nil {
		errs = append(errs, fmt.Errorf("notification: %w", r.Notification.Err))
	}
	if r.Email.Err != nil {
		errs = append(errs, fmt.Errorf("email: %w", r.Email.Err))
	}
	return errors.Join(errs...)
}

// Service performs both channels for a fired event.
type Service struct {
	log      logx.Logger
	notifier notify.Notifier
	mailer   mail.Mailer
	opt      Options
}

func New(notifier notify.Notifier, mailer mail.Mailer, opt Options, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		notifier: notifier,
		mailer:   mailer,
		opt:      opt.withDefaults(),
	}
}

// Deliver runs both channels for ev. It always attempts the email even when
// the notification channel failed or its surface was unavailable, and vice
// versa. The returned Result tells the caller exactly which channel failed.
func (s *Service) Deliver(ctx context.Context, ev event.Event) Result {
	content := Render(ev)
	var res Result

	res.Notification = s.attempt(ctx, "notification", ev.ID, func(actx context.Context) (bool, error) {
		available, err := s.notifier.Notify(actx, content.Title, content.Body)
		if err != nil {
			return false, err
		}
		return !available, nil
	})

	res.Email = s.attempt(ctx, "email", ev.ID, func(actx context.Context) (bool, error) {
		return false, s.mailer.Send(actx, ev.Payload.Recipient, content.EmailSubject, content.EmailBody)
	})

	return res
}

// attempt runs one channel with the retry budget. fn reports (skipped, err);
// a skip is success without a send.
func (s *Service) attempt(ctx context.Context, channel, eventID string, fn func(ctx context.Context) (bool, error)) ChannelResult {
	maxAttempts := 1 + s.opt.RetryMax

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, s.opt.AttemptTimeout)
		skipped, err := fn(actx)
		cancel()

		if err == nil {
			if skipped {
				s.log.Debug("channel unavailable, skipped",
					logx.String("channel", channel), logx.String("event", eventID))
			}
			return ChannelResult{OK: true, Skipped: skipped}
		}
		lastErr = err
		if attempt >= maxAttempts {
			break
		}

		delay := backoffDelay(s.opt, attempt)
		s.log.Debug("channel retry scheduled",
			logx.String("channel", channel),
			logx.String("event", eventID),
			logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay),
			logx.Err(err))

		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !tmr.Stop() {
				<-tmr.C
			}
			return ChannelResult{Err: ctx.Err()}
		case <-tmr.C:
		}
	}

	s.log.Warn("channel delivery failed",
		logx.String("channel", channel),
		logx.String("event", eventID),
		logx.Int("attempts", maxAttempts),
		logx.Err(lastErr))
	return ChannelResult{Err: lastErr}
}

func backoffDelay(opt Options, retry int) time.Duration {
	// retry starts at 1 (first retry)
	d := opt.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > opt.RetryMaxDelay {
			d = opt.RetryMaxDelay
			break
		}
	}
	// jitter [1-j, 1+j]
	if j := opt.RetryJitter; j > 0 {
		r := (randFloat64()*2 - 1) * j
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > opt.RetryMaxDelay {
		d = opt.RetryMaxDelay
	}
	return d
}

var rngMu sync.Mutex

func randFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rand.Float64()
}
