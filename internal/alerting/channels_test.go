package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"availwatch/internal/config"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	alert := Alert{Key: "k", Title: "Steam Frame Available Now!", Body: "go", Label: "1/3", Priority: PriorityHigh}

	if err := notifier.Deliver(context.Background(), alert); err != nil {
		t.Fatalf("Telegram Deliver 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text, _ := received["text"].(string)
	if !strings.Contains(text, "Steam Frame Available Now!") || !strings.Contains(text, "(1/3)") {
		t.Fatalf("text 内容不完整: %q", text)
	}
	if received["disable_notification"] != false {
		t.Fatalf("high priority alerts should not be silent: %#v", received)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Deliver(context.Background(), Alert{Title: "x"}); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestBarkNotifierLevels(t *testing.T) {
	var pushes []barkPush
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/push" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var push barkPush
		if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
			t.Fatalf("decode: %v", err)
		}
		pushes = append(pushes, push)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "success"})
	}))
	defer srv.Close()

	bark := NewBarkNotifier(srv.URL, "device", "availwatch", "alarm", time.Second, testLogger())
	ctx := context.Background()
	if err := bark.Deliver(ctx, Alert{Title: "a", Body: "b", Label: "1/2", Priority: PriorityHigh, ActionTarget: "https://store"}); err != nil {
		t.Fatal(err)
	}
	if err := bark.Deliver(ctx, Alert{Title: "u", Priority: PriorityMax, Urgent: true}); err != nil {
		t.Fatal(err)
	}
	if err := bark.Interrupt(ctx, "ring"); err != nil {
		t.Fatal(err)
	}

	if len(pushes) != 3 {
		t.Fatalf("expected 3 pushes, got %d", len(pushes))
	}
	if pushes[0].Level != "timeSensitive" || pushes[0].Body != "b (1/2)" || pushes[0].URL != "https://store" || pushes[0].DeviceKey != "device" {
		t.Fatalf("unexpected standard push %+v", pushes[0])
	}
	if pushes[1].Level != "critical" || pushes[1].Volume == 0 {
		t.Fatalf("urgent push should be critical: %+v", pushes[1])
	}
	if pushes[2].Call != "1" {
		t.Fatalf("interrupt should ring: %+v", pushes[2])
	}
}

func TestBarkNotifierErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if err := NewBarkNotifier(srv.URL, "device", "", "", time.Second, testLogger()).Deliver(context.Background(), Alert{}); err == nil {
		t.Fatal("HTTP 400 should error")
	}
	if err := NewBarkNotifier(srv.URL, "", "", "", time.Second, testLogger()).Deliver(context.Background(), Alert{}); err == nil {
		t.Fatal("empty key should error")
	}
}

type failingChannel struct{ err error }

func (f failingChannel) Deliver(ctx context.Context, alert Alert) error { return f.err }

func TestFanoutJoinsErrors(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	fan := NewFanout(failingChannel{first}, NewLogNotifier(testLogger()), failingChannel{second})

	err := fan.Deliver(context.Background(), Alert{})
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if err := fan.Interrupt(context.Background(), "x"); !errors.Is(err, ErrNoInterrupter) {
		t.Fatalf("no interrupt-capable channel should yield ErrNoInterrupter, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	fan, err := FromConfig(config.AlertingConfig{
		Channels: []string{"log", " LOG "},
		Bark:     config.BarkConfig{Enabled: true, DeviceKey: "k"},
	}, testLogger())
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if fan.Len() != 2 {
		t.Fatalf("expected log + bark, got %d channels", fan.Len())
	}

	if _, err := FromConfig(config.AlertingConfig{Channels: []string{"pager"}}, testLogger()); err == nil {
		t.Fatal("unknown channel should error")
	}
	if _, err := FromConfig(config.AlertingConfig{Channels: []string{"telegram"}}, testLogger()); err == nil {
		t.Fatal("telegram without credentials should error")
	}

	fan, err = FromConfig(config.AlertingConfig{}, testLogger())
	if err != nil || fan.Len() != 1 {
		t.Fatalf("empty config should fall back to the log channel: %v", err)
	}
}
