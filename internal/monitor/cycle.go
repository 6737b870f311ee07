package monitor

import (
	"context"
	"fmt"
	"time"

	"availwatch/internal/checker"
	"availwatch/internal/detector"
	"availwatch/internal/status"
	"availwatch/internal/storage"
)

// Outcome describes one completed check cycle.
type Outcome struct {
	Trigger   string
	Skipped   bool
	Contended bool
	Previous  status.Status
	Status    status.Status
	Fired     bool
	EpisodeID string
	CheckedAt time.Time
	TestMode  bool
	// CheckErr is the swallowed lookup failure, if any.
	CheckErr error
	Attempts int
}

// runCycle executes one cycle with retries. Cycles never overlap.
func (m *Monitor) runCycle(ctx context.Context, trigger string, force bool) (Outcome, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return Outcome{Trigger: trigger}, err
	}

	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		out, err := m.safeCycle(ctx, trigger, force)
		if err == nil {
			out.Attempts = attempt
			m.markBeat()
			return out, nil
		}
		lastErr = err
		m.logger.Warn().Err(err).Str("trigger", trigger).Int("attempt", attempt).Int("max_attempts", m.opts.MaxAttempts).Msg("check cycle attempt failed")

		if attempt < m.opts.MaxAttempts && m.opts.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				return Outcome{Trigger: trigger, Attempts: attempt}, ctx.Err()
			case <-m.clock.After(m.opts.RetryDelay):
			}
		}
	}

	m.markBeat()
	m.logger.Error().Err(lastErr).Str("trigger", trigger).Msg("check cycle abandoned")
	return Outcome{Trigger: trigger, Attempts: m.opts.MaxAttempts}, fmt.Errorf("%w after %d attempts: %v", ErrCycleAbandoned, m.opts.MaxAttempts, lastErr)
}

func (m *Monitor) safeCycle(ctx context.Context, trigger string, force bool) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("check cycle panicked: %v", r)
		}
	}()
	return m.cycle(ctx, trigger, force)
}

func (m *Monitor) cycle(ctx context.Context, trigger string, force bool) (Outcome, error) {
	out := Outcome{Trigger: trigger}

	if locker, ok := m.gateway.Locker(); ok && m.opts.UseAdvisoryLock {
		unlock, acquired, err := locker.TryAdvisoryLock(ctx, m.opts.LockKey)
		if err != nil {
			return out, fmt.Errorf("acquire monitor lock: %w", err)
		}
		if !acquired {
			m.logger.Info().Str("trigger", trigger).Msg("another instance is checking; skipping")
			out.Skipped, out.Contended = true, true
			return out, nil
		}
		defer unlock()
	}

	// 每轮重新读取，不使用缓存配置
	settings, record, err := m.gateway.Snapshot(ctx)
	if err != nil {
		return out, err
	}
	out.Previous = record.LastStatus
	out.Status = record.LastStatus

	if !settings.MonitoringEnabled && !force {
		out.Skipped = true
		return out, nil
	}

	obs := m.checker.Observe(ctx, settings.TestModeEnabled)
	now := m.clock.Now().UTC()
	out.Status = obs.Status
	out.CheckedAt = now
	out.TestMode = obs.TestMode
	out.CheckErr = obs.Err

	if err := m.gateway.SaveLastCheckTime(ctx, now); err != nil {
		return out, err
	}

	ep, fired := detector.Detect(record.LastStatus, obs.Status, settings.NotificationCount, settings.UseAlarmMode)
	if fired {
		ep.DetectedAt = now
		if err := m.gateway.SaveLastStatus(ctx, obs.Status); err != nil {
			return out, err
		}
		m.recordEpisode(ctx, ep)
		m.escalator.Escalate(ctx, ep)
		out.Fired = true
		out.EpisodeID = ep.ID
	}

	m.recordSample(ctx, trigger, obs, now)

	m.logger.Info().
		Str("trigger", trigger).
		Str("previous", record.LastStatus.StorageKey()).
		Str("status", obs.Status.StorageKey()).
		Bool("fired", fired).
		Bool("test_mode", obs.TestMode).
		Msg("check cycle completed")
	return out, nil
}

func (m *Monitor) recordEpisode(ctx context.Context, ep detector.Episode) {
	store, ok := m.gateway.Episodes()
	if !ok {
		return
	}
	err := store.InsertEpisode(ctx, storage.EpisodeRecord{
		ID:         ep.ID,
		Previous:   ep.Previous,
		Triggering: ep.TriggeringStatus,
		Count:      ep.Count,
		Urgent:     ep.Urgent,
		DetectedAt: ep.DetectedAt,
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("episode", ep.ID).Msg("failed to record episode")
	}
}

func (m *Monitor) recordSample(ctx context.Context, trigger string, obs checker.Observation, at time.Time) {
	store, ok := m.gateway.Samples()
	if !ok {
		return
	}
	sample := storage.CheckSample{
		CheckedAt: at,
		Status:    obs.Status,
		Trigger:   trigger,
		Price:     obs.Price,
		Currency:  obs.Currency,
		TestMode:  obs.TestMode,
	}
	if obs.Err != nil {
		msg := obs.Err.Error()
		sample.Error = &msg
	}
	if err := store.InsertSample(ctx, sample); err != nil {
		m.logger.Warn().Err(err).Msg("failed to record check sample")
	}
}
