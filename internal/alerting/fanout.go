package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"availwatch/internal/config"
)

// Fanout delivers every alert to all channels and joins their errors.
type Fanout struct {
	channels []Deliverer
}

func NewFanout(channels ...Deliverer) *Fanout {
	return &Fanout{channels: channels}
}

// Len reports the number of channels.
func (f *Fanout) Len() int {
	return len(f.channels)
}

func (f *Fanout) Deliver(ctx context.Context, alert Alert) error {
	var errs []error
	for _, ch := range f.channels {
		if err := ch.Deliver(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Interrupt hands off to every channel that supports it.
func (f *Fanout) Interrupt(ctx context.Context, message string) error {
	var (
		errs    []error
		handled bool
	)
	for _, ch := range f.channels {
		in, ok := ch.(Interrupter)
		if !ok {
			continue
		}
		handled = true
		if err := in.Interrupt(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	if !handled {
		return ErrNoInterrupter
	}
	return errors.Join(errs...)
}

// FromConfig builds the channels named in cfg.Channels.
// Telegram and Bark are also added when their enabled flag is set.
func FromConfig(cfg config.AlertingConfig, logger zerolog.Logger) (*Fanout, error) {
	seen := make(map[string]bool)
	names := make([]string, 0, len(cfg.Channels)+2)
	for _, name := range cfg.Channels {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if cfg.Telegram.Enabled && !seen["telegram"] {
		names = append(names, "telegram")
	}
	if cfg.Bark.Enabled && !seen["bark"] {
		names = append(names, "bark")
	}

	channels := make([]Deliverer, 0, len(names))
	for _, name := range names {
		switch name {
		case "log":
			channels = append(channels, NewLogNotifier(logger))
		case "telegram":
			if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
				return nil, fmt.Errorf("alerting.telegram.bot_token 与 chat_id 必须配置")
			}
			channels = append(channels, NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, logger))
		case "bark":
			if cfg.Bark.DeviceKey == "" {
				return nil, fmt.Errorf("alerting.bark.device_key 必须配置")
			}
			channels = append(channels, NewBarkNotifier(cfg.Bark.ServerURL, cfg.Bark.DeviceKey, cfg.Bark.Group, cfg.Bark.Sound, 10*time.Second, logger))
		default:
			return nil, fmt.Errorf("unknown alert channel %q", name)
		}
	}
	if len(channels) == 0 {
		channels = append(channels, NewLogNotifier(logger))
	}
	return NewFanout(channels...), nil
}

var (
	_ Deliverer   = (*Fanout)(nil)
	_ Interrupter = (*Fanout)(nil)
)
