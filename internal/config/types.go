// Package config loads, validates and hot-reloads the daemon configuration
// from a JSON or YAML file.
package config

import (
	"fmt"
	"time"

	"smartplan/internal/delivery"
	"smartplan/internal/mail"
	"smartplan/internal/notify"
	"smartplan/internal/queue"
	logx "smartplan/pkg/logx"
)

// Config is the full on-disk configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Timezone resolves user-entered dates and times; empty means the
	// process's local zone.
	Timezone string `json:"timezone,omitempty"`

	Storage     StorageConfig     `json:"storage"`
	Notify      NotifyConfig      `json:"notify"`
	SMTP        SMTPConfig        `json:"smtp"`
	Delivery    DeliveryConfig    `json:"delivery,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls event persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./smartplan.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifyConfig selects the local-notification driver.
type NotifyConfig struct {
	Driver   string               `json:"driver"` // "console" (default), "telegram", "none"
	Telegram TelegramNotifyConfig `json:"telegram,omitempty"`
}

type TelegramNotifyConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

type SMTPConfig struct {
	Enabled    bool   `json:"enabled"`
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"` // do not log
	From       string `json:"from"`
	FromName   string `json:"from_name,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// DeliveryConfig bounds the per-channel retry budget.
type DeliveryConfig struct {
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
	AttemptTimeout string `json:"attempt_timeout,omitempty"`
}

// MaintenanceConfig controls the background sweeps.
type MaintenanceConfig struct {
	// SweepInterval is the catch-up sweep period (default "1m"); the sweep
	// is insurance against a missed dispatch timer.
	SweepInterval string `json:"sweep_interval,omitempty"`

	// PruneAt is the daily prune time "HH:MM" (default "03:30").
	PruneAt string `json:"prune_at,omitempty"`
	// PruneAfter is the retention for terminal events (default "720h").
	PruneAfter string `json:"prune_after,omitempty"`
}

// ---- derived component configs ----

func (c *Config) LogxConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) QueueConfig() (queue.Config, error) {
	busy, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	if err != nil {
		return queue.Config{}, err
	}
	return queue.Config{
		Driver:      c.Storage.Driver,
		Path:        c.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func (c *Config) NotifyConfig() notify.Config {
	return notify.Config{
		Driver: c.Notify.Driver,
		Telegram: notify.TelegramConfig{
			Token:  c.Notify.Telegram.Token,
			ChatID: c.Notify.Telegram.ChatID,
		},
	}
}

func (c *Config) MailConfig() (mail.Config, error) {
	timeout, err := ParseDurationField("smtp.timeout", c.SMTP.Timeout)
	if err != nil {
		return mail.Config{}, err
	}
	return mail.Config{
		Enabled:    c.SMTP.Enabled,
		Host:       c.SMTP.Host,
		Port:       c.SMTP.Port,
		Username:   c.SMTP.Username,
		Password:   c.SMTP.Password,
		From:       c.SMTP.From,
		FromName:   c.SMTP.FromName,
		RatePerSec: c.SMTP.RatePerSec,
		Timeout:    timeout,
	}, nil
}

func (c *Config) DeliveryOptions() (delivery.Options, error) {
	base, err := ParseDurationField("delivery.retry_base", c.Delivery.RetryBase)
	if err != nil {
		return delivery.Options{}, err
	}
	maxDelay, err := ParseDurationField("delivery.retry_max_delay", c.Delivery.RetryMaxDelay)
	if err != nil {
		return delivery.Options{}, err
	}
	attempt, err := ParseDurationField("delivery.attempt_timeout", c.Delivery.AttemptTimeout)
	if err != nil {
		return delivery.Options{}, err
	}
	return delivery.Options{
		RetryMax:       c.Delivery.RetryMax,
		RetryBase:      base,
		RetryMaxDelay:  maxDelay,
		AttemptTimeout: attempt,
	}, nil
}

// SweepInterval returns the catch-up sweep period, defaulted.
func (c *Config) SweepInterval() (time.Duration, error) {
	return ParseDurationOrDefault("maintenance.sweep_interval", c.Maintenance.SweepInterval, time.Minute)
}

// PruneAfter returns the terminal-event retention, defaulted to 30 days.
func (c *Config) PruneAfter() (time.Duration, error) {
	return ParseDurationOrDefault("maintenance.prune_after", c.Maintenance.PruneAfter, 720*time.Hour)
}
