// Package notify is the local-notification surface for fired events.
//
// The daemon has no OS notification tray; the console driver plays that
// role by default, and the telegram driver pushes to a chat. The "none"
// driver models a user who denied the notification capability: sends are
// reported unavailable, never failed.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "smartplan/pkg/logx"
)

// Config selects and configures the notification driver.
//
// Driver values: "console" (default), "telegram", "none".
type Config struct {
	Driver   string
	Telegram TelegramConfig
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Notifier presents a fired event on the notification surface.
//
// available=false means the surface is not usable (capability denied or
// not configured); that is not an error, and delivery treats it as a
// no-op success. err reports an actual send failure.
type Notifier interface {
	Notify(ctx context.Context, title, body string) (available bool, err error)
}

// Open initializes the configured driver.
func Open(cfg Config, log logx.Logger) (Notifier, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "console":
		return &consoleNotifier{log: log}, nil
	case "telegram":
		return newTelegramNotifier(cfg.Telegram, log)
	case "none":
		return Unavailable(), nil
	default:
		return nil, errors.New("unknown notify driver: " + driver)
	}
}

// Unavailable returns a notifier whose surface is never available.
func Unavailable() Notifier { return unavailableNotifier{} }

type unavailableNotifier struct{}

func (unavailableNotifier) Notify(ctx context.Context, title, body string) (bool, error) {
	return false, nil
}

// consoleNotifier surfaces notifications through the structured log, which
// is where a headless daemon's "tray" lives.
type consoleNotifier struct {
	log logx.Logger
}

func (n *consoleNotifier) Notify(ctx context.Context, title, body string) (bool, error) {
	n.log.Info("notification",
		logx.String("title", title),
		logx.String("body", body))
	return true, nil
}

type telegramNotifier struct {
	bot  *tele.Bot
	chat tele.ChatID
	log  logx.Logger
}

func newTelegramNotifier(cfg TelegramConfig, log logx.Logger) (Notifier, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram notify driver requires a token")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram notify driver requires a chat id")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		// The notifier only sends; polling is never started.
		Synchronous: true,
	})
	if err != nil {
		return nil, err
	}
	return &telegramNotifier{bot: bot, chat: tele.ChatID(cfg.ChatID), log: log}, nil
}

func (n *telegramNotifier) Notify(ctx context.Context, title, body string) (bool, error) {
	_, err := n.bot.Send(n.chat, "<b>"+title+"</b>\n"+body, tele.ModeHTML)
	if err != nil {
		return true, err
	}
	n.log.Debug("telegram notification sent", logx.String("title", title))
	return true, nil
}
