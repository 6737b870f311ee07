package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"availwatch/internal/status"
)

// ErrInvalidValue is returned by setters given out-of-range input.
var ErrInvalidValue = errors.New("storage: invalid value")

// Gateway is the typed view of persisted monitor state over a KV backend.
// Every setter persists immediately; values that fail to parse read as defaults.
type Gateway struct {
	kv KV
}

// NewGateway wraps a KV backend.
func NewGateway(kv KV) *Gateway {
	return &Gateway{kv: kv}
}

func (g *Gateway) getKV() (KV, error) {
	if g == nil || g.kv == nil {
		return nil, ErrNotConfigured
	}
	return g.kv, nil
}

// Settings reads the user options in one consistent snapshot.
func (g *Gateway) Settings(ctx context.Context) (Settings, error) {
	kv, err := g.getKV()
	if err != nil {
		return Settings{}, err
	}
	values, err := kv.GetValues(ctx, settingKeys...)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return decodeSettings(values), nil
}

// Record reads the last stored status and check time.
func (g *Gateway) Record(ctx context.Context) (CheckRecord, error) {
	kv, err := g.getKV()
	if err != nil {
		return CheckRecord{}, err
	}
	values, err := kv.GetValues(ctx, recordKeys...)
	if err != nil {
		return CheckRecord{}, fmt.Errorf("read check record: %w", err)
	}
	return decodeRecord(values), nil
}

// Snapshot reads settings and record together.
func (g *Gateway) Snapshot(ctx context.Context) (Settings, CheckRecord, error) {
	kv, err := g.getKV()
	if err != nil {
		return Settings{}, CheckRecord{}, err
	}
	keys := append(append([]string{}, settingKeys...), recordKeys...)
	values, err := kv.GetValues(ctx, keys...)
	if err != nil {
		return Settings{}, CheckRecord{}, fmt.Errorf("read snapshot: %w", err)
	}
	return decodeSettings(values), decodeRecord(values), nil
}

func (g *Gateway) SetMonitoringEnabled(ctx context.Context, enabled bool) error {
	return g.put(ctx, map[string]string{KeyMonitoringEnabled: strconv.FormatBool(enabled)})
}

func (g *Gateway) SetCheckInterval(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: check interval must be at least 1 minute, got %d", ErrInvalidValue, minutes)
	}
	return g.put(ctx, map[string]string{KeyCheckIntervalMinutes: strconv.Itoa(minutes)})
}

// SetMonitoring writes the enabled flag and interval in one transaction.
func (g *Gateway) SetMonitoring(ctx context.Context, enabled bool, minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: check interval must be at least 1 minute, got %d", ErrInvalidValue, minutes)
	}
	return g.put(ctx, map[string]string{
		KeyMonitoringEnabled:    strconv.FormatBool(enabled),
		KeyCheckIntervalMinutes: strconv.Itoa(minutes),
	})
}

func (g *Gateway) SetNotificationCount(ctx context.Context, count int) error {
	if count < 1 {
		return fmt.Errorf("%w: notification count must be at least 1, got %d", ErrInvalidValue, count)
	}
	return g.put(ctx, map[string]string{KeyNotificationCount: strconv.Itoa(count)})
}

func (g *Gateway) SetUseAlarmMode(ctx context.Context, enabled bool) error {
	return g.put(ctx, map[string]string{KeyUseAlarmMode: strconv.FormatBool(enabled)})
}

func (g *Gateway) SetTestModeEnabled(ctx context.Context, enabled bool) error {
	return g.put(ctx, map[string]string{KeyTestModeEnabled: strconv.FormatBool(enabled)})
}

// SaveSettings writes every option atomically.
func (g *Gateway) SaveSettings(ctx context.Context, s Settings) error {
	if s.CheckIntervalMinutes < 1 {
		return fmt.Errorf("%w: check interval must be at least 1 minute, got %d", ErrInvalidValue, s.CheckIntervalMinutes)
	}
	if s.NotificationCount < 1 {
		return fmt.Errorf("%w: notification count must be at least 1, got %d", ErrInvalidValue, s.NotificationCount)
	}
	return g.put(ctx, map[string]string{
		KeyMonitoringEnabled:    strconv.FormatBool(s.MonitoringEnabled),
		KeyCheckIntervalMinutes: strconv.Itoa(s.CheckIntervalMinutes),
		KeyNotificationCount:    strconv.Itoa(s.NotificationCount),
		KeyTestModeEnabled:      strconv.FormatBool(s.TestModeEnabled),
		KeyUseAlarmMode:         strconv.FormatBool(s.UseAlarmMode),
	})
}

// SaveLastCheckTime stores the completion time as epoch milliseconds.
func (g *Gateway) SaveLastCheckTime(ctx context.Context, at time.Time) error {
	return g.put(ctx, map[string]string{KeyLastCheckTime: strconv.FormatInt(at.UnixMilli(), 10)})
}

func (g *Gateway) SaveLastStatus(ctx context.Context, s status.Status) error {
	return g.put(ctx, map[string]string{KeyLastStatus: s.StorageKey()})
}

// Samples returns the history store when the backend keeps one.
func (g *Gateway) Samples() (SampleStore, bool) {
	store, ok := g.kv.(SampleStore)
	return store, ok
}

// Episodes returns the episode audit store when the backend keeps one.
func (g *Gateway) Episodes() (EpisodeStore, bool) {
	store, ok := g.kv.(EpisodeStore)
	return store, ok
}

// Locker returns the advisory lock helper when the backend supports one.
func (g *Gateway) Locker() (AdvisoryLocker, bool) {
	locker, ok := g.kv.(AdvisoryLocker)
	return locker, ok
}

func (g *Gateway) put(ctx context.Context, values map[string]string) error {
	kv, err := g.getKV()
	if err != nil {
		return err
	}
	if err := kv.PutValues(ctx, values); err != nil {
		return fmt.Errorf("write monitor state: %w", err)
	}
	return nil
}

func decodeSettings(values map[string]string) Settings {
	s := DefaultSettings()
	if v, ok := values[KeyMonitoringEnabled]; ok {
		s.MonitoringEnabled = v != "false"
	}
	if v, ok := values[KeyCheckIntervalMinutes]; ok {
		s.CheckIntervalMinutes = positiveOr(v, DefaultCheckIntervalMinutes)
	}
	if v, ok := values[KeyNotificationCount]; ok {
		s.NotificationCount = positiveOr(v, DefaultNotificationCount)
	}
	if v, ok := values[KeyTestModeEnabled]; ok {
		s.TestModeEnabled = v == "true"
	}
	if v, ok := values[KeyUseAlarmMode]; ok {
		s.UseAlarmMode = v != "false"
	}
	return s
}

func decodeRecord(values map[string]string) CheckRecord {
	rec := CheckRecord{LastStatus: status.Unknown}
	if v, ok := values[KeyLastStatus]; ok {
		rec.LastStatus = status.Parse(v)
	}
	if v, ok := values[KeyLastCheckTime]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			rec.LastCheckTime = time.UnixMilli(ms).UTC()
		}
	}
	return rec
}

func positiveOr(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
