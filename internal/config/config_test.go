package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load 不应报错: %v", err)
	}
	if cfg.Steam.AppID != "4165890" {
		t.Fatalf("unexpected app id %q", cfg.Steam.AppID)
	}
	if cfg.Monitor.SuccessDelay != time.Minute || cfg.Monitor.FailureDelay != 30*time.Second {
		t.Fatalf("unexpected monitor delays: %+v", cfg.Monitor)
	}
	if cfg.Alerting.StandardSpacing != 800*time.Millisecond || cfg.Alerting.UrgentDeliveries != 3 {
		t.Fatalf("unexpected alerting defaults: %+v", cfg.Alerting)
	}
	if cfg.StorageDriver() != "sqlite" {
		t.Fatalf("without a DSN the driver should be sqlite, got %s", cfg.StorageDriver())
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	body := []byte(`
steam:
  app_id: "42"
  country: de
monitor:
  success_delay: 90s
  align_scheduled: true
alerting:
  channels: log,bark
  bark:
    enabled: true
    device_key: abc
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AVAILWATCH_STEAM_COUNTRY", "fr")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Steam.AppID != "42" {
		t.Fatalf("file value not applied: %q", cfg.Steam.AppID)
	}
	if cfg.Steam.Country != "fr" {
		t.Fatalf("环境变量应覆盖文件: %q", cfg.Steam.Country)
	}
	if cfg.Monitor.SuccessDelay != 90*time.Second {
		t.Fatalf("duration hook not applied: %s", cfg.Monitor.SuccessDelay)
	}
	if !cfg.Monitor.AlignScheduled {
		t.Fatal("monitor.align_scheduled not applied")
	}
	if len(cfg.Alerting.Channels) != 2 || cfg.Alerting.Channels[1] != "bark" {
		t.Fatalf("slice hook not applied: %v", cfg.Alerting.Channels)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		return Config{
			Steam:   SteamConfig{AppID: "1"},
			Storage: StorageConfig{Driver: "memory"},
			Monitor: MonitorConfig{ContinuousThresholdMinutes: 5, SuccessDelay: time.Minute, FailureDelay: time.Second, MaxAttempts: 3},
			Export:  ExportConfig{MaxDataPoints: 10},
		}
	}

	ok := base()
	if err := ok.Validate(); err != nil {
		t.Fatalf("baseline should validate: %v", err)
	}

	cases := map[string]func(c *Config){
		"missing app id":   func(c *Config) { c.Steam.AppID = " " },
		"postgres w/o dsn": func(c *Config) { c.Storage.Driver = "postgres" },
		"unknown driver":   func(c *Config) { c.Storage.Driver = "redis" },
		"zero attempts":    func(c *Config) { c.Monitor.MaxAttempts = 0 },
		"telegram no token": func(c *Config) {
			c.Alerting.Telegram.Enabled = true
			c.Alerting.Telegram.ChatID = "1"
		},
		"bark no key": func(c *Config) { c.Alerting.Bark.Enabled = true },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := Config{Export: ExportConfig{MaxDataPoints: 50}}
	if cfg.ResolveMaxPoints(0) != 50 || cfg.ResolveMaxPoints(7) != 7 {
		t.Fatal("override handling broken")
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
