package monitor

import (
	"errors"
	"time"
)

// ErrInvalidInterval is returned for intervals below one minute.
var ErrInvalidInterval = errors.New("monitor: interval must be at least 1 minute")

// ErrCycleAbandoned is returned when every attempt of a check cycle failed.
var ErrCycleAbandoned = errors.New("monitor: check cycle abandoned")

// Mode is the monitor state.
type Mode int

const (
	Stopped Mode = iota
	ScheduledInterval
	ContinuousActive
)

func (m Mode) String() string {
	switch m {
	case ScheduledInterval:
		return "scheduled"
	case ContinuousActive:
		return "continuous"
	default:
		return "stopped"
	}
}

// DefaultContinuousThreshold is the largest interval, in minutes, served by the continuous loop.
const DefaultContinuousThreshold = 5

// ModeFor maps an interval to the active mode using the default threshold.
func ModeFor(minutes int) Mode {
	return modeFor(minutes, DefaultContinuousThreshold)
}

func modeFor(minutes, threshold int) Mode {
	if minutes <= threshold {
		return ContinuousActive
	}
	return ScheduledInterval
}

// Options tune the monitor loop.
type Options struct {
	ContinuousThresholdMinutes int
	SuccessDelay               time.Duration
	FailureDelay               time.Duration
	BackupTimers               int
	BackupStagger              time.Duration
	MaxAttempts                int
	RetryDelay                 time.Duration
	ReconcileInterval          time.Duration
	AlignScheduled             bool
	UseAdvisoryLock            bool
	LockKey                    int64
}

// DefaultOptions: 60s between continuous checks, 30s after a failure, 3 backup timers 20s apart.
func DefaultOptions() Options {
	return Options{
		ContinuousThresholdMinutes: DefaultContinuousThreshold,
		SuccessDelay:               60 * time.Second,
		FailureDelay:               30 * time.Second,
		BackupTimers:               3,
		BackupStagger:              20 * time.Second,
		MaxAttempts:                3,
		RetryDelay:                 5 * time.Second,
		ReconcileInterval:          15 * time.Second,
	}
}

func (o Options) normalised() Options {
	def := DefaultOptions()
	if o.ContinuousThresholdMinutes < 1 {
		o.ContinuousThresholdMinutes = def.ContinuousThresholdMinutes
	}
	if o.SuccessDelay <= 0 {
		o.SuccessDelay = def.SuccessDelay
	}
	if o.FailureDelay <= 0 {
		o.FailureDelay = def.FailureDelay
	}
	if o.BackupTimers < 0 {
		o.BackupTimers = 0
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = def.ReconcileInterval
	}
	return o
}
