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

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Deliver 调用 sendMessage API 推送文本。普通告警静默推送，紧急告警带提醒音。
func (n *TelegramNotifier) Deliver(ctx context.Context, alert Alert) error {
	if err := n.send(ctx, alert.Text(), !alert.Urgent && alert.Priority < PriorityHigh); err != nil {
		return err
	}
	n.logger.Info().Str("key", alert.Key).
		Str("priority", alert.Priority.String()).
		Bool("urgent", alert.Urgent).
		Msg("告警已发送 (Telegram)")
	return nil
}

// Interrupt 发送一条带提醒音的紧急消息。
func (n *TelegramNotifier) Interrupt(ctx context.Context, message string) error {
	return n.send(ctx, "🚨🚨🚨 "+message, false)
}

func (n *TelegramNotifier) send(ctx context.Context, text string, silent bool) error {
	payload := map[string]any{
		"chat_id":              n.chatID,
		"text":                 text,
		"disable_notification": silent,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}
	return nil
}

var (
	_ Deliverer   = (*TelegramNotifier)(nil)
	_ Interrupter = (*TelegramNotifier)(nil)
)
