package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const barkAPIURL = "https://api.day.app"

// BarkNotifier pushes to an iOS device through a Bark server.
type BarkNotifier struct {
	serverURL string
	deviceKey string
	group     string
	sound     string
	client    *http.Client
	logger    zerolog.Logger
}

// NewBarkNotifier creates a Bark push channel.
func NewBarkNotifier(serverURL, deviceKey, group, sound string, timeout time.Duration, logger zerolog.Logger) *BarkNotifier {
	if serverURL == "" {
		serverURL = barkAPIURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BarkNotifier{
		serverURL: strings.TrimRight(serverURL, "/"),
		deviceKey: deviceKey,
		group:     group,
		sound:     sound,
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With().Str("component", "alert_bark").Logger(),
	}
}

type barkPush struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Group     string `json:"group,omitempty"`
	URL       string `json:"url,omitempty"`
	Level     string `json:"level,omitempty"`
	Sound     string `json:"sound,omitempty"`
	Volume    int    `json:"volume,omitempty"`
	Call      string `json:"call,omitempty"`
	IsArchive string `json:"isArchive,omitempty"`
}

// Deliver sends one push. Urgent alerts use the critical level, which rings through silent mode.
func (b *BarkNotifier) Deliver(ctx context.Context, alert Alert) error {
	body := alert.Body
	if alert.Label != "" {
		body = strings.TrimSpace(body + " (" + alert.Label + ")")
	}
	push := barkPush{
		Title: alert.Title,
		Body:  body,
		URL:   alert.ActionTarget,
		Level: barkLevel(alert),
		Sound: b.sound,
	}
	if alert.Urgent {
		push.Volume = 10
	}
	if alert.AutoDismiss {
		push.IsArchive = "0"
	}
	if err := b.push(ctx, push); err != nil {
		return err
	}
	b.logger.Debug().Str("key", alert.Key).Str("level", push.Level).Msg("bark push sent")
	return nil
}

// Interrupt sends a ringing push (call=1) that repeats its sound for about 30 seconds.
func (b *BarkNotifier) Interrupt(ctx context.Context, message string) error {
	return b.push(ctx, barkPush{
		Title:  message,
		Body:   "Open the store page now!",
		Level:  "critical",
		Volume: 10,
		Call:   "1",
	})
}

func (b *BarkNotifier) push(ctx context.Context, push barkPush) error {
	if b.deviceKey == "" {
		return fmt.Errorf("bark key is empty")
	}
	push.DeviceKey = b.deviceKey
	push.Group = b.group

	payload, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("marshal bark payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.serverURL+"/push", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Code != 0 && result.Code != http.StatusOK {
		return fmt.Errorf("bark error %d: %s", result.Code, result.Message)
	}
	return nil
}

func barkLevel(alert Alert) string {
	switch {
	case alert.Urgent:
		return "critical"
	case alert.Priority >= PriorityHigh:
		return "timeSensitive"
	default:
		return "active"
	}
}

var (
	_ Deliverer   = (*BarkNotifier)(nil)
	_ Interrupter = (*BarkNotifier)(nil)
)
