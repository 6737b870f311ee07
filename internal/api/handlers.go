package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"availwatch/internal/monitor"
	"availwatch/internal/storage"
)

// MonitorController is the part of the monitor loop the API drives.
type MonitorController interface {
	State() monitor.State
	CheckNow(ctx context.Context) (monitor.Outcome, error)
	Enable(minutes int) error
	SetInterval(minutes int) error
	Disable()
}

// AlertTester schedules TEST alert plans.
type AlertTester interface {
	Test(ctx context.Context, count int, urgent bool, delay time.Duration) string
}

// Handlers contains all API handlers
type Handlers struct {
	gateway    *storage.Gateway
	monitor    MonitorController
	tester     AlertTester
	background context.Context
	logger     zerolog.Logger
}

// NewHandlers builds the handlers. background bounds work that outlives a request.
func NewHandlers(background context.Context, gateway *storage.Gateway, mon MonitorController, tester AlertTester, logger zerolog.Logger) *Handlers {
	if background == nil {
		background = context.Background()
	}
	return &Handlers{
		gateway:    gateway,
		monitor:    mon,
		tester:     tester,
		background: background,
		logger:     logger.With().Str("component", "api").Logger(),
	}
}

type settingsView struct {
	MonitoringEnabled    bool `json:"monitoring_enabled"`
	CheckIntervalMinutes int  `json:"check_interval_minutes"`
	NotificationCount    int  `json:"notification_count"`
	UseAlarmMode         bool `json:"use_alarm_mode"`
	TestModeEnabled      bool `json:"test_mode_enabled"`
}

func viewSettings(s storage.Settings) settingsView {
	return settingsView{
		MonitoringEnabled:    s.MonitoringEnabled,
		CheckIntervalMinutes: s.CheckIntervalMinutes,
		NotificationCount:    s.NotificationCount,
		UseAlarmMode:         s.UseAlarmMode,
		TestModeEnabled:      s.TestModeEnabled,
	}
}

func viewState(st monitor.State) gin.H {
	out := gin.H{
		"mode":             st.Mode.String(),
		"interval_minutes": st.Interval,
		"worker_alive":     st.WorkerAlive,
	}
	if !st.LastBeat.IsZero() {
		out["last_cycle_at"] = st.LastBeat.Format(time.RFC3339)
	}
	return out
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// GetStatus returns persisted settings, the last check record and the loop state.
func (h *Handlers) GetStatus(c *gin.Context) {
	settings, record, err := h.gateway.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("read status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read monitor state"})
		return
	}

	last := gin.H{
		"status":  record.LastStatus.StorageKey(),
		"display": record.LastStatus.Display(),
	}
	if !record.LastCheckTime.IsZero() {
		last["checked_at"] = record.LastCheckTime.Format(time.RFC3339)
	}

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.JSON(http.StatusOK, gin.H{
		"settings": viewSettings(settings),
		"last":     last,
		"monitor":  viewState(h.monitor.State()),
	})
}

// TriggerCheck runs one manual check synchronously.
func (h *Handlers) TriggerCheck(c *gin.Context) {
	out, err := h.monitor.CheckNow(c.Request.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, storage.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error(), "attempts": out.Attempts})
		return
	}

	body := gin.H{
		"status":     out.Status.StorageKey(),
		"display":    out.Status.Display(),
		"previous":   out.Previous.StorageKey(),
		"fired":      out.Fired,
		"skipped":    out.Skipped,
		"test_mode":  out.TestMode,
		"attempts":   out.Attempts,
		"checked_at": out.CheckedAt.Format(time.RFC3339),
	}
	if out.EpisodeID != "" {
		body["episode_id"] = out.EpisodeID
	}
	if out.CheckErr != nil {
		body["check_error"] = out.CheckErr.Error()
	}
	c.JSON(http.StatusOK, body)
}

// SetMonitoring persists the enabled flag (and optional interval) then re-arms the loop.
func (h *Handlers) SetMonitoring(c *gin.Context) {
	var req struct {
		Enabled         *bool `json:"enabled" binding:"required"`
		IntervalMinutes *int  `json:"interval_minutes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	var err error
	if req.IntervalMinutes != nil {
		err = h.gateway.SetMonitoring(ctx, *req.Enabled, *req.IntervalMinutes)
	} else {
		err = h.gateway.SetMonitoringEnabled(ctx, *req.Enabled)
	}
	if err != nil {
		h.writeSettingError(c, err)
		return
	}

	settings, err := h.gateway.Settings(ctx)
	if err != nil {
		h.writeSettingError(c, err)
		return
	}
	if settings.MonitoringEnabled {
		if err := h.monitor.Enable(settings.CheckIntervalMinutes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		h.monitor.Disable()
	}

	c.JSON(http.StatusOK, gin.H{
		"settings": viewSettings(settings),
		"monitor":  viewState(h.monitor.State()),
	})
}

// UpdateSettings applies a partial settings change; each field persists immediately.
func (h *Handlers) UpdateSettings(c *gin.Context) {
	var req struct {
		CheckIntervalMinutes *int  `json:"check_interval_minutes"`
		NotificationCount    *int  `json:"notification_count"`
		UseAlarmMode         *bool `json:"use_alarm_mode"`
		TestModeEnabled      *bool `json:"test_mode_enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	if req.NotificationCount != nil {
		if err := h.gateway.SetNotificationCount(ctx, *req.NotificationCount); err != nil {
			h.writeSettingError(c, err)
			return
		}
	}
	if req.UseAlarmMode != nil {
		if err := h.gateway.SetUseAlarmMode(ctx, *req.UseAlarmMode); err != nil {
			h.writeSettingError(c, err)
			return
		}
	}
	if req.TestModeEnabled != nil {
		if err := h.gateway.SetTestModeEnabled(ctx, *req.TestModeEnabled); err != nil {
			h.writeSettingError(c, err)
			return
		}
	}
	if req.CheckIntervalMinutes != nil {
		if err := h.gateway.SetCheckInterval(ctx, *req.CheckIntervalMinutes); err != nil {
			h.writeSettingError(c, err)
			return
		}
		if err := h.monitor.SetInterval(*req.CheckIntervalMinutes); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	settings, err := h.gateway.Settings(ctx)
	if err != nil {
		h.writeSettingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": viewSettings(settings)})
}

// TriggerTestAlert schedules a TEST alert plan and returns its id.
func (h *Handlers) TriggerTestAlert(c *gin.Context) {
	var req struct {
		Count        int  `json:"count"`
		Urgent       bool `json:"urgent"`
		DelaySeconds int  `json:"delay_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.tester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "alerting not available"})
		return
	}
	if req.DelaySeconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delay_seconds must not be negative"})
		return
	}
	if req.Count <= 0 {
		settings, err := h.gateway.Settings(c.Request.Context())
		if err != nil {
			h.writeSettingError(c, err)
			return
		}
		req.Count = settings.NotificationCount
	}

	id := h.tester.Test(h.background, req.Count, req.Urgent, time.Duration(req.DelaySeconds)*time.Second)
	c.JSON(http.StatusAccepted, gin.H{
		"message": "test alerts scheduled",
		"plan_id": id,
		"count":   req.Count,
		"urgent":  req.Urgent,
	})
}

func (h *Handlers) writeSettingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidValue):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error().Err(err).Msg("settings write failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to persist settings"})
	}
}
