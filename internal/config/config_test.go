package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"driver": "sqlite", "path": "./smartplan.db", "busy_timeout": "2s"},
		"notify":  {"driver": "console"},
		"smtp":    {"enabled": true, "host": "smtp.example.com", "from": "noreply@example.com", "timeout": "10s"},
		"delivery": {"retry_max": 1, "retry_base": "250ms"}
	}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}

	qc, err := cfg.QueueConfig()
	if err != nil {
		t.Fatalf("QueueConfig: %v", err)
	}
	if qc.Driver != "sqlite" || qc.BusyTimeout != 2*time.Second {
		t.Fatalf("queue config = %+v", qc)
	}

	mc, err := cfg.MailConfig()
	if err != nil {
		t.Fatalf("MailConfig: %v", err)
	}
	if !mc.Enabled || mc.Host != "smtp.example.com" || mc.Timeout != 10*time.Second {
		t.Fatalf("mail config = %+v", mc)
	}

	opt, err := cfg.DeliveryOptions()
	if err != nil {
		t.Fatalf("DeliveryOptions: %v", err)
	}
	if opt.RetryMax != 1 || opt.RetryBase != 250*time.Millisecond {
		t.Fatalf("delivery options = %+v", opt)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./smartplan.log
storage:
  driver: memory
notify:
  driver: none
smtp:
  enabled: false
maintenance:
  sweep_interval: 30s
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Logging.File.Enabled || cfg.Logging.File.Path != "./smartplan.log" {
		t.Fatalf("file logging = %+v", cfg.Logging.File)
	}
	if cfg.Notify.Driver != "none" {
		t.Fatalf("notify driver = %q", cfg.Notify.Driver)
	}
	iv, err := cfg.SweepInterval()
	if err != nil || iv != 30*time.Second {
		t.Fatalf("sweep interval = %v, %v", iv, err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"loging": {"level": "info"}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown field was accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"storage": {"driver": "memory"}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing data was accepted")
	}
}

func TestDurationDefaults(t *testing.T) {
	t.Parallel()
	var cfg Config
	iv, err := cfg.SweepInterval()
	if err != nil || iv != time.Minute {
		t.Fatalf("default sweep interval = %v, %v", iv, err)
	}
	ret, err := cfg.PruneAfter()
	if err != nil || ret != 720*time.Hour {
		t.Fatalf("default prune retention = %v, %v", ret, err)
	}
	if _, err := ParseDurationField("x", "not-a-duration"); err == nil {
		t.Fatal("bad duration accepted")
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}
}

func TestBadTimezone(t *testing.T) {
	t.Parallel()
	cfg := Config{Timezone: "Mars/Olympus"}
	if _, err := cfg.Location(); err == nil {
		t.Fatal("bad timezone accepted")
	}
	cfg.Timezone = ""
	loc, err := cfg.Location()
	if err != nil || loc == nil {
		t.Fatalf("empty timezone: %v, %v", loc, err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	_, err := NewManager(filepath.Join(t.TempDir(), "absent.json")).Load()
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}
}
