package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"availwatch/internal/checker"
	"availwatch/internal/detector"
	"availwatch/internal/scheduler"
	"availwatch/internal/storage"
)

// Checker is the availability lookup used by each cycle.
type Checker interface {
	Observe(ctx context.Context, testMode bool) checker.Observation
}

// Escalator receives fired episodes. Escalate must not block on delivery.
type Escalator interface {
	Escalate(ctx context.Context, ep detector.Episode)
}

// State is a point-in-time view of the loop.
type State struct {
	Mode        Mode
	Interval    int
	WorkerAlive bool
	LastBeat    time.Time
}

// Monitor owns the tiered check loop: a scheduler for long intervals,
// a dedicated worker plus backup timers for short ones.
type Monitor struct {
	gateway   *storage.Gateway
	checker   Checker
	probe     checker.Probe
	escalator Escalator
	clock     clockwork.Clock
	opts      Options
	logger    zerolog.Logger

	root     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup

	cycleMu sync.Mutex

	mu       sync.Mutex
	active   *activation
	interval int
	closed   bool

	lastBeat atomic.Int64
}

// activation is one armed mode; replaced wholesale on every transition.
type activation struct {
	mode     Mode
	interval int
	ctx      context.Context
	cancel   context.CancelFunc
	alive    atomic.Bool

	mu      sync.Mutex
	backups []clockwork.Timer
}

// New builds a stopped monitor. probe may be nil.
func New(gateway *storage.Gateway, chk Checker, probe checker.Probe, esc Escalator, clock clockwork.Clock, opts Options, logger zerolog.Logger) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Monitor{
		gateway:   gateway,
		checker:   chk,
		probe:     probe,
		escalator: esc,
		clock:     clock,
		opts:      opts.normalised(),
		logger:    logger.With().Str("component", "monitor").Logger(),
		root:      root,
		shutdown:  cancel,
		interval:  storage.DefaultCheckIntervalMinutes,
	}
}

// Mode reports the current state.
func (m *Monitor) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Stopped
	}
	return m.active.mode
}

// Interval reports the interval the monitor is (or was last) armed with.
func (m *Monitor) Interval() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// State returns mode, interval and worker liveness.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := State{Mode: Stopped, Interval: m.interval}
	if m.active != nil {
		st.Mode = m.active.mode
		st.WorkerAlive = m.active.mode == ContinuousActive && m.active.alive.Load()
	}
	if ms := m.lastBeat.Load(); ms > 0 {
		st.LastBeat = time.UnixMilli(ms).UTC()
	}
	return st
}

// Enable arms the mode implied by minutes, replacing any current mode.
func (m *Monitor) Enable(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, minutes)
	}
	m.swap(minutes, true)
	return nil
}

// SetInterval re-arms an active monitor for minutes; a stopped monitor only remembers it.
func (m *Monitor) SetInterval(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, minutes)
	}
	m.swap(minutes, false)
	return nil
}

// Disable stops every timer and the worker. Safe to call repeatedly.
func (m *Monitor) Disable() {
	m.mu.Lock()
	old := m.active
	m.active = nil
	m.mu.Unlock()

	if old == nil {
		return
	}
	old.stop()
	m.logger.Info().Str("previous_mode", old.mode.String()).Msg("monitoring stopped")
}

// CheckNow runs one forced cycle regardless of the enabled flag and reports its outcome.
func (m *Monitor) CheckNow(ctx context.Context) (Outcome, error) {
	return m.runCycle(ctx, storage.TriggerManual, true)
}

// Recover re-enters the persisted mode after a cold start.
func (m *Monitor) Recover(ctx context.Context) error {
	settings, err := m.gateway.Settings(ctx)
	if err != nil {
		return fmt.Errorf("recover monitor: %w", err)
	}
	if !settings.MonitoringEnabled {
		m.logger.Info().Msg("monitoring disabled in store; staying stopped")
		return nil
	}
	m.logger.Info().Int("interval_minutes", settings.CheckIntervalMinutes).Msg("recovering monitoring after start")
	return m.Enable(settings.CheckIntervalMinutes)
}

// Reconcile applies persisted settings written by other processes.
func (m *Monitor) Reconcile(ctx context.Context) error {
	settings, err := m.gateway.Settings(ctx)
	if err != nil {
		return fmt.Errorf("reconcile monitor: %w", err)
	}
	mode, interval := m.Mode(), m.Interval()
	switch {
	case !settings.MonitoringEnabled && mode != Stopped:
		m.Disable()
	case settings.MonitoringEnabled && mode == Stopped:
		return m.Enable(settings.CheckIntervalMinutes)
	case settings.MonitoringEnabled && interval != settings.CheckIntervalMinutes:
		return m.SetInterval(settings.CheckIntervalMinutes)
	}
	return nil
}

// Run recovers the persisted mode and reconciles periodically until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Recover(ctx); err != nil {
		m.logger.Error().Err(err).Msg("recover failed; waiting for reconcile")
	}

	sched := scheduler.New(scheduler.Options{
		Interval: m.opts.ReconcileInterval,
		Clock:    m.clock,
		Name:     "reconcile",
	}, m.logger)
	err := sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return m.Reconcile(ctx)
	})
	m.Close()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Close stops the monitor and waits for its goroutines.
func (m *Monitor) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.Disable()
	m.shutdown()
	m.wg.Wait()
}

func (m *Monitor) swap(minutes int, start bool) {
	m.mu.Lock()
	m.interval = minutes
	old := m.active
	if m.closed || (old == nil && !start) {
		m.mu.Unlock()
		return
	}
	next := m.armLocked(modeFor(minutes, m.opts.ContinuousThresholdMinutes), minutes)
	m.active = next
	m.mu.Unlock()

	if old != nil {
		old.stop()
	}
	m.logger.Info().Str("mode", next.mode.String()).Int("interval_minutes", minutes).Msg("monitoring armed")
}

func (m *Monitor) armLocked(mode Mode, minutes int) *activation {
	ctx, cancel := context.WithCancel(m.root)
	act := &activation{mode: mode, interval: minutes, ctx: ctx, cancel: cancel}

	switch mode {
	case ContinuousActive:
		act.alive.Store(true)
		m.spawnLocked(func() { m.runWorker(act) })
		act.mu.Lock()
		for i := 0; i < m.opts.BackupTimers; i++ {
			first := m.period(act) + time.Duration(i)*m.opts.BackupStagger
			act.backups = append(act.backups, m.armBackup(act, i, first))
		}
		act.mu.Unlock()
	case ScheduledInterval:
		m.spawnLocked(func() { m.runScheduled(act) })
	}
	return act
}

// spawnLocked must be called with m.mu held so Close cannot race the Add.
func (m *Monitor) spawnLocked(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

func (m *Monitor) runScheduled(act *activation) {
	sched := scheduler.New(scheduler.Options{
		Interval:     m.period(act),
		AlignToStart: m.opts.AlignScheduled,
		Clock:        m.clock,
		Name:         "interval",
	}, m.logger)
	_ = sched.Run(act.ctx, func(ctx context.Context, _ time.Time) error {
		_, err := m.runCycle(ctx, storage.TriggerScheduled, false)
		return err
	})
}

// runWorker is the continuous loop: connectivity check, cycle, sleep.
func (m *Monitor) runWorker(act *activation) {
	defer func() {
		if r := recover(); r != nil {
			act.alive.Store(false)
			m.logger.Error().Interface("panic", r).Msg("continuous worker died; backup timers will revive it")
		}
	}()

	for {
		delay := m.opts.SuccessDelay
		if err := m.iterate(act.ctx); err != nil {
			delay = m.opts.FailureDelay
		}
		select {
		case <-act.ctx.Done():
			act.alive.Store(false)
			return
		case <-m.clock.After(delay):
		}
	}
}

func (m *Monitor) iterate(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.probe != nil {
		if err := m.probe.Reachable(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// offline counts as a normal iteration; the next check waits the usual delay
			m.logger.Warn().Err(err).Msg("no connectivity; skipping this check")
			return nil
		}
	}
	_, err := m.runCycle(ctx, storage.TriggerContinuous, false)
	return err
}

func (m *Monitor) period(act *activation) time.Duration {
	return time.Duration(act.interval) * time.Minute
}

// armBackup schedules timer i. Timers first fire at interval+0, +stagger, +2*stagger
// and then repeat every interval, so they stay staggered.
func (m *Monitor) armBackup(act *activation, i int, after time.Duration) clockwork.Timer {
	return m.clock.AfterFunc(after, func() { m.onBackup(act, i) })
}

// onBackup revives a dead worker or runs a cycle when no cycle completed within the interval.
func (m *Monitor) onBackup(act *activation, i int) {
	m.mu.Lock()
	if m.closed || m.active != act || act.ctx.Err() != nil {
		m.mu.Unlock()
		return
	}
	window := m.period(act)
	stale := m.clock.Since(m.beat()) > window
	switch {
	case act.alive.CompareAndSwap(false, true):
		m.logger.Warn().Int("timer", i).Msg("backup timer reviving continuous worker")
		m.spawnLocked(func() { m.runWorker(act) })
	case stale:
		m.logger.Warn().Int("timer", i).Dur("window", window).Msg("no recent cycle; backup timer checking")
		m.spawnLocked(func() {
			_, _ = m.runCycle(act.ctx, storage.TriggerBackup, false)
		})
	}
	m.mu.Unlock()

	act.mu.Lock()
	if act.ctx.Err() == nil && i < len(act.backups) {
		act.backups[i] = m.armBackup(act, i, window)
	}
	act.mu.Unlock()
}

func (m *Monitor) markBeat() {
	m.lastBeat.Store(m.clock.Now().UnixMilli())
}

func (m *Monitor) beat() time.Time {
	ms := m.lastBeat.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (a *activation) stop() {
	a.cancel()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, t := range a.backups {
		t.Stop()
	}
	a.backups = nil
}
