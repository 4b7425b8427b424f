// Package mail sends transactional email for fired events over SMTP.
package mail

import (
	"context"
	"errors"
	"strings"
	"time"

	gomail "github.com/wneessen/go-mail"
	"golang.org/x/time/rate"

	logx "smartplan/pkg/logx"
)

// Config configures the SMTP mailer.
//
// With Enabled=false the Nop mailer is used and every send fails fast,
// which surfaces as a failed email channel rather than a silent drop.
type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string

	// RatePerSec caps outbound sends; transactional providers throttle
	// aggressively. 0 means a default of 1/s.
	RatePerSec int

	// Timeout bounds one SMTP dial+send. 0 means 30s.
	Timeout time.Duration
}

var ErrDisabled = errors.New("mailer disabled")

// Mailer delivers one HTML email.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

// Nop returns a mailer that rejects every send with ErrDisabled.
func Nop() Mailer { return nopMailer{} }

type nopMailer struct{}

func (nopMailer) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	return ErrDisabled
}

type smtpMailer struct {
	client  *gomail.Client
	from    string
	name    string
	limiter *rate.Limiter
	timeout time.Duration
	log     logx.Logger
}

// New builds the configured mailer. A disabled config yields Nop().
func New(cfg Config, log logx.Logger) (Mailer, error) {
	if !cfg.Enabled {
		return Nop(), nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, errors.New("smtp from address is required")
	}

	port := cfg.Port
	if port <= 0 {
		port = 587
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}

	opts := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithTimeout(timeout),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, err
	}

	return &smtpMailer{
		client:  client,
		from:    cfg.From,
		name:    cfg.FromName,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		timeout: timeout,
		log:     log,
	}, nil
}

func (m *smtpMailer) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := gomail.NewMsg()
	if m.name != "" {
		if err := msg.FromFormat(m.name, m.from); err != nil {
			return err
		}
	} else if err := msg.From(m.from); err != nil {
		return err
	}
	if err := msg.To(recipient); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlBody)

	sctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.client.DialAndSendWithContext(sctx, msg); err != nil {
		return err
	}
	m.log.Debug("email sent", logx.String("to", recipient), logx.String("subject", subject))
	return nil
}
