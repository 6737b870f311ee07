package app

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"availwatch/internal/monitor"
	"availwatch/internal/storage"
)

// SetOptions carry a partial settings change; nil fields are left untouched.
type SetOptions struct {
	IntervalMinutes   *int
	NotificationCount *int
	UseAlarmMode      *bool
	TestMode          *bool
}

// TestAlertOptions configure a test notification run.
type TestAlertOptions struct {
	Count  int
	Urgent bool
	Delay  time.Duration
}

// CheckNow runs one manual cycle and waits for any alerts it fired.
func (a *App) CheckNow(ctx context.Context) error {
	rt, err := a.build(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	out, err := rt.monitor.CheckNow(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "status:   %s (%s)\n", out.Status.StorageKey(), out.Status.Display())
	fmt.Fprintf(a.Out, "previous: %s\n", out.Previous.StorageKey())
	if out.TestMode {
		fmt.Fprintln(a.Out, "test mode: lookup skipped")
	}
	if out.CheckErr != nil {
		fmt.Fprintf(a.Out, "lookup error: %s\n", sanitizeInline(out.CheckErr.Error()))
	}
	if out.Fired {
		fmt.Fprintf(a.Out, "alert episode %s fired; delivering...\n", out.EpisodeID)
	}
	return nil
}

// Enable persists monitoring on with the given interval. A running service picks it up on reconcile.
func (a *App) Enable(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: got %d", monitor.ErrInvalidInterval, minutes)
	}
	return a.withGateway(ctx, func(gw *storage.Gateway) error {
		if err := gw.SetMonitoring(ctx, true, minutes); err != nil {
			return err
		}
		fmt.Fprintf(a.Out, "monitoring enabled: every %d minute(s), %s mode\n", minutes, a.modeFor(minutes))
		return nil
	})
}

// Disable persists monitoring off.
func (a *App) Disable(ctx context.Context) error {
	return a.withGateway(ctx, func(gw *storage.Gateway) error {
		if err := gw.SetMonitoringEnabled(ctx, false); err != nil {
			return err
		}
		fmt.Fprintln(a.Out, "monitoring disabled")
		return nil
	})
}

// Set applies a partial settings change.
func (a *App) Set(ctx context.Context, opts SetOptions) error {
	return a.withGateway(ctx, func(gw *storage.Gateway) error {
		if opts.IntervalMinutes != nil {
			if err := gw.SetCheckInterval(ctx, *opts.IntervalMinutes); err != nil {
				return err
			}
		}
		if opts.NotificationCount != nil {
			if err := gw.SetNotificationCount(ctx, *opts.NotificationCount); err != nil {
				return err
			}
		}
		if opts.UseAlarmMode != nil {
			if err := gw.SetUseAlarmMode(ctx, *opts.UseAlarmMode); err != nil {
				return err
			}
		}
		if opts.TestMode != nil {
			if err := gw.SetTestModeEnabled(ctx, *opts.TestMode); err != nil {
				return err
			}
		}
		settings, err := gw.Settings(ctx)
		if err != nil {
			return err
		}
		a.writeSettings(settings)
		return nil
	})
}

// Status prints persisted settings and the last check record.
func (a *App) Status(ctx context.Context) error {
	return a.withGateway(ctx, func(gw *storage.Gateway) error {
		settings, record, err := gw.Snapshot(ctx)
		if err != nil {
			return err
		}
		a.writeSettings(settings)

		checked := "never"
		if !record.LastCheckTime.IsZero() {
			checked = record.LastCheckTime.Format(time.RFC3339)
		}
		w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Last status\t%s (%s)\n", record.LastStatus.StorageKey(), record.LastStatus.Display())
		fmt.Fprintf(w, "Last check (UTC)\t%s\n", checked)
		return w.Flush()
	})
}

// TestAlert sends a TEST titled plan through the configured channels and waits for it.
func (a *App) TestAlert(ctx context.Context, opts TestAlertOptions) error {
	esc, err := a.newEscalator()
	if err != nil {
		return err
	}
	count := opts.Count
	if count <= 0 {
		count = storage.DefaultNotificationCount
		_ = a.withGateway(ctx, func(gw *storage.Gateway) error {
			settings, err := gw.Settings(ctx)
			if err == nil {
				count = settings.NotificationCount
			}
			return err
		})
	}

	id := esc.Test(ctx, count, opts.Urgent, opts.Delay)
	fmt.Fprintf(a.Out, "test plan %s: %d notification(s), urgent=%t, delay=%s\n", id, count, opts.Urgent, opts.Delay)
	esc.Wait()
	return ctx.Err()
}

func (a *App) withGateway(ctx context.Context, fn func(gw *storage.Gateway) error) error {
	backend, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	return fn(storage.NewGateway(backend))
}

func (a *App) modeFor(minutes int) monitor.Mode {
	threshold := a.Config.Monitor.ContinuousThresholdMinutes
	if threshold < 1 {
		return monitor.ModeFor(minutes)
	}
	if minutes <= threshold {
		return monitor.ContinuousActive
	}
	return monitor.ScheduledInterval
}

func (a *App) writeSettings(s storage.Settings) {
	w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Monitoring\t%t\n", s.MonitoringEnabled)
	fmt.Fprintf(w, "Interval (min)\t%d (%s)\n", s.CheckIntervalMinutes, a.modeFor(s.CheckIntervalMinutes))
	fmt.Fprintf(w, "Notifications\t%d\n", s.NotificationCount)
	fmt.Fprintf(w, "Alarm mode\t%t\n", s.UseAlarmMode)
	fmt.Fprintf(w, "Test mode\t%t\n", s.TestModeEnabled)
	_ = w.Flush()
}
