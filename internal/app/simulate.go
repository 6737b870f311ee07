package app

import (
	"context"
	"fmt"

	"availwatch/internal/detector"
	"availwatch/internal/status"
	"availwatch/internal/storage"
)

// SimulateOptions describe a fake transition.
type SimulateOptions struct {
	From  status.Status
	To    status.Status
	Count int
	// Urgent nil means the persisted use_alarm_mode setting.
	Urgent *bool
}

// SimulateTransition 模拟一次状态变化并走完整告警流程，不访问商店、不写入状态。
func (a *App) SimulateTransition(ctx context.Context, opts SimulateOptions) error {
	settings := storage.DefaultSettings()
	if err := a.withGateway(ctx, func(gw *storage.Gateway) error {
		s, err := gw.Settings(ctx)
		if err == nil {
			settings = s
		}
		return err
	}); err != nil {
		a.Logger.Warn().Err(err).Msg("settings unavailable; simulating with defaults")
	}

	count := settings.NotificationCount
	if opts.Count > 0 {
		count = opts.Count
	}
	urgent := settings.UseAlarmMode
	if opts.Urgent != nil {
		urgent = *opts.Urgent
	}

	ep, fired := detector.Detect(opts.From, opts.To, count, urgent)
	if !fired {
		fmt.Fprintf(a.Out, "%s -> %s is not a significant upgrade; no alert\n", opts.From.StorageKey(), opts.To.StorageKey())
		return nil
	}

	esc, err := a.newEscalator()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "simulated episode %s: %s -> %s, %d notification(s), urgent=%t\n",
		ep.ID, opts.From.StorageKey(), opts.To.StorageKey(), ep.Count, ep.Urgent)
	esc.Escalate(ctx, ep)
	esc.Wait()
	return nil
}
