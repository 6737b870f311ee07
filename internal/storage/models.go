package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"availwatch/internal/status"
)

// Logical keys of the persisted monitor state.
const (
	KeyLastStatus           = "last_status"
	KeyLastCheckTime        = "last_check_time"
	KeyMonitoringEnabled    = "monitoring_enabled"
	KeyCheckIntervalMinutes = "check_interval_minutes"
	KeyNotificationCount    = "notification_count"
	KeyTestModeEnabled      = "test_mode_enabled"
	KeyUseAlarmMode         = "use_alarm_mode"
)

var settingKeys = []string{
	KeyMonitoringEnabled,
	KeyCheckIntervalMinutes,
	KeyNotificationCount,
	KeyTestModeEnabled,
	KeyUseAlarmMode,
}

var recordKeys = []string{KeyLastStatus, KeyLastCheckTime}

const (
	DefaultCheckIntervalMinutes = 1
	DefaultNotificationCount    = 10
)

// Settings are the user-controlled monitor options.
type Settings struct {
	MonitoringEnabled    bool
	CheckIntervalMinutes int
	NotificationCount    int
	TestModeEnabled      bool
	UseAlarmMode         bool
}

// DefaultSettings mirrors what an empty store reads as.
func DefaultSettings() Settings {
	return Settings{
		MonitoringEnabled:    true,
		CheckIntervalMinutes: DefaultCheckIntervalMinutes,
		NotificationCount:    DefaultNotificationCount,
		TestModeEnabled:      false,
		UseAlarmMode:         true,
	}
}

// CheckRecord is the result state written by the monitor.
// LastCheckTime is zero when no check ever completed.
type CheckRecord struct {
	LastStatus    status.Status
	LastCheckTime time.Time
}

// Check triggers recorded in history.
const (
	TriggerContinuous = "continuous"
	TriggerScheduled  = "scheduled"
	TriggerBackup     = "backup"
	TriggerManual     = "manual"
)

// CheckSample is one historical availability observation.
type CheckSample struct {
	ID        int64
	CheckedAt time.Time
	Status    status.Status
	Trigger   string
	Price     decimal.NullDecimal
	Currency  string
	TestMode  bool
	Error     *string
}

// EpisodeRecord audits one detected significant upgrade.
type EpisodeRecord struct {
	ID         string
	Previous   status.Status
	Triggering status.Status
	Count      int
	Urgent     bool
	DetectedAt time.Time
}
