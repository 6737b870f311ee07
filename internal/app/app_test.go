package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"availwatch/internal/config"
	"availwatch/internal/status"
	"availwatch/internal/storage"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "availwatch.db")},
		Steam: config.SteamConfig{
			AppID:       "4165890",
			ProductName: "Steam Frame",
			StoreURL:    "https://store.steampowered.com/sale/steamframe",
		},
		Monitor:  config.MonitorConfig{ContinuousThresholdMinutes: 5, MaxAttempts: 3},
		Alerting: config.AlertingConfig{Channels: []string{"log"}, StandardSpacing: time.Millisecond, UrgentSpacing: time.Millisecond, UrgentDeliveries: 1},
		Export:   config.ExportConfig{MaxDataPoints: 100},
	}
	out := &bytes.Buffer{}
	a := &App{Config: cfg, Logger: zerolog.Nop(), Out: out, Clock: clockwork.NewRealClock()}
	return a, out
}

func openBackend(t *testing.T, a *App) storage.Backend {
	t.Helper()
	backend, err := a.openStore(context.Background())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestEnableThenStatus(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	if err := a.Enable(ctx, 3); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if !strings.Contains(out.String(), "continuous mode") {
		t.Fatalf("3 minutes should be continuous: %q", out.String())
	}
	if err := a.Enable(ctx, 0); err == nil {
		t.Fatal("interval 0 应报错")
	}

	out.Reset()
	if err := a.Status(ctx); err != nil {
		t.Fatalf("Status: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "3 (continuous)") || !strings.Contains(text, "never") {
		t.Fatalf("status output missing fields: %q", text)
	}

	if err := a.Disable(ctx); err != nil {
		t.Fatal(err)
	}
	settings, err := storage.NewGateway(openBackend(t, a)).Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if settings.MonitoringEnabled || settings.CheckIntervalMinutes != 3 {
		t.Fatalf("unexpected persisted settings %+v", settings)
	}
}

func TestSetPartialSettings(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	count := 4
	alarm := false

	if err := a.Set(ctx, SetOptions{NotificationCount: &count, UseAlarmMode: &alarm}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	settings, _ := storage.NewGateway(openBackend(t, a)).Settings(ctx)
	if settings.NotificationCount != 4 || settings.UseAlarmMode || settings.CheckIntervalMinutes != storage.DefaultCheckIntervalMinutes {
		t.Fatalf("unexpected settings %+v", settings)
	}

	bad := 0
	if err := a.Set(ctx, SetOptions{NotificationCount: &bad}); err == nil {
		t.Fatal("notification count 0 should be rejected")
	}
}

func TestCheckNowAgainstStorefront(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"4165890": map[string]any{
				"success": true,
				"data": map[string]any{
					"release_date":   map[string]any{"coming_soon": false},
					"price_overview": map[string]any{"currency": "USD", "final": 59999},
					"package_groups": []any{map[string]any{"name": "default"}},
				},
			},
		})
	}))
	defer srv.Close()

	a, out := newTestApp(t)
	a.Config.Steam.BaseURL = srv.URL
	ctx := context.Background()
	count := 1
	if err := a.Set(ctx, SetOptions{NotificationCount: &count}); err != nil {
		t.Fatal(err)
	}

	out.Reset()
	if err := a.CheckNow(ctx); err != nil {
		t.Fatalf("CheckNow: %v", err)
	}
	if !strings.Contains(out.String(), "AVAILABLE") || !strings.Contains(out.String(), "fired") {
		t.Fatalf("expected a fired episode: %q", out.String())
	}

	backend := openBackend(t, a)
	rec, _ := storage.NewGateway(backend).Record(ctx)
	if rec.LastStatus != status.Available || rec.LastCheckTime.IsZero() {
		t.Fatalf("record not persisted: %+v", rec)
	}
	samples, err := backend.ListRecentSamples(ctx, 5)
	if err != nil || len(samples) != 1 {
		t.Fatalf("expected one sample: %v %v", samples, err)
	}
	if !samples[0].Price.Valid || !samples[0].Price.Decimal.Equal(decimal.RequireFromString("599.99")) {
		t.Fatalf("price not kept: %+v", samples[0].Price)
	}
	episodes, _ := backend.ListRecentEpisodes(ctx, 5)
	if len(episodes) != 1 {
		t.Fatalf("expected one episode, got %d", len(episodes))
	}
}

func TestShowAndExport(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()
	backend := openBackend(t, a)

	base := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Second)
	errMsg := "timeout\nreading body"
	seed := []storage.CheckSample{
		{CheckedAt: base, Status: status.NotAvailable, Trigger: storage.TriggerContinuous, Error: &errMsg},
		{CheckedAt: base.Add(time.Minute), Status: status.PreorderAvailable, Trigger: storage.TriggerContinuous,
			Price: decimal.NewNullDecimal(decimal.RequireFromString("599.99")), Currency: "USD"},
		{CheckedAt: base.Add(2 * time.Minute), Status: status.PreorderAvailable, Trigger: storage.TriggerManual},
	}
	for _, s := range seed {
		if err := backend.InsertSample(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	if err := a.Show(ctx, ShowOptions{Limit: 10}); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if !strings.Contains(out.String(), "599.99 USD") || strings.Contains(out.String(), "timeout\n") {
		t.Fatalf("unexpected show output: %q", out.String())
	}

	csvPath := filepath.Join(t.TempDir(), "out", "history.csv")
	if err := a.Export(ctx, ExportOptions{CSVPath: csvPath}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || rows[0][0] != "checked_at" {
		t.Fatalf("unexpected csv rows: %v", rows)
	}
	if rows[2][1] != "PREORDER_AVAILABLE" || rows[2][2] != "3" || rows[2][4] != "599.99" {
		t.Fatalf("unexpected csv row: %v", rows[2])
	}

	if err := a.Export(ctx, ExportOptions{}); err == nil {
		t.Fatal("export without outputs should fail")
	}
}

func TestDownsampleSamples(t *testing.T) {
	samples := make([]storage.CheckSample, 10)
	for i := range samples {
		samples[i].ID = int64(i)
	}
	got := downsampleSamples(samples, 4)
	if len(got) != 4 || got[0].ID != 0 || got[3].ID != 9 {
		t.Fatalf("unexpected downsample %+v", got)
	}
	if len(downsampleSamples(samples, 0)) != 10 {
		t.Fatal("max 0 keeps everything")
	}
	if got := downsampleSamples(samples, 1); len(got) != 1 || got[0].ID != 9 {
		t.Fatalf("max 1 should keep the newest: %+v", got)
	}
}

func TestSimulateTransition(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	if err := a.SimulateTransition(ctx, SimulateOptions{From: status.Available, To: status.SoldOut}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "not a significant upgrade") {
		t.Fatalf("regression should not alert: %q", out.String())
	}

	out.Reset()
	urgent := true
	if err := a.SimulateTransition(ctx, SimulateOptions{From: status.NotAvailable, To: status.Available, Count: 2, Urgent: &urgent}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "2 notification(s), urgent=true") {
		t.Fatalf("unexpected simulate output: %q", out.String())
	}
}

func TestTestAlertWaitsForPlan(t *testing.T) {
	a, out := newTestApp(t)
	if err := a.TestAlert(context.Background(), TestAlertOptions{Count: 2}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "2 notification(s)") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
