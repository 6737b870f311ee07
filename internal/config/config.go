package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"availwatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Steam        SteamConfig        `mapstructure:"steam"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	API          APIConfig          `mapstructure:"api"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LockKey         int64         `mapstructure:"lock_key"`
}

// StorageConfig selects the persistence backend.
// Driver is one of postgres, sqlite or memory; empty picks postgres when a DSN is set.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// SteamConfig covers the storefront lookup.
type SteamConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	AppID          string        `mapstructure:"app_id"`
	Country        string        `mapstructure:"country"`
	Language       string        `mapstructure:"language"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	StoreURL       string        `mapstructure:"store_url"`
	ProductName    string        `mapstructure:"product_name"`
}

// ConnectivityConfig 描述连续模式下的联网探测。
type ConnectivityConfig struct {
	ProbeURL string        `mapstructure:"probe_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MonitorConfig tunes the monitor loop.
type MonitorConfig struct {
	ContinuousThresholdMinutes int           `mapstructure:"continuous_threshold_minutes"`
	SuccessDelay               time.Duration `mapstructure:"success_delay"`
	FailureDelay               time.Duration `mapstructure:"failure_delay"`
	BackupTimers               int           `mapstructure:"backup_timers"`
	BackupStagger              time.Duration `mapstructure:"backup_stagger"`
	MaxAttempts                int           `mapstructure:"max_attempts"`
	RetryDelay                 time.Duration `mapstructure:"retry_delay"`
	ReconcileInterval          time.Duration `mapstructure:"reconcile_interval"`
	AlignScheduled             bool          `mapstructure:"align_scheduled"`
	UseAdvisoryLock            bool          `mapstructure:"use_advisory_lock"`
}

// AlertingConfig defines escalation pacing and routing.
type AlertingConfig struct {
	StandardSpacing  time.Duration  `mapstructure:"standard_spacing"`
	UrgentDeliveries int            `mapstructure:"urgent_deliveries"`
	UrgentSpacing    time.Duration  `mapstructure:"urgent_spacing"`
	Channels         []string       `mapstructure:"channels"`
	Telegram         TelegramConfig `mapstructure:"telegram"`
	Bark             BarkConfig     `mapstructure:"bark"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// BarkConfig 描述 Bark 推送参数。
type BarkConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ServerURL string `mapstructure:"server_url"`
	DeviceKey string `mapstructure:"device_key"`
	Group     string `mapstructure:"group"`
	Sound     string `mapstructure:"sound"`
}

// APIConfig controls the HTTP control surface.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("AVAILWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// .env 可选；不存在时静默跳过，已有环境变量优先。
func loadDotEnv() error {
	if err := godotenv.Load(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "availwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.lock_key", int64(0x61766c77))

	v.SetDefault("storage.driver", "")
	v.SetDefault("storage.sqlite_path", "data/availwatch.db")

	v.SetDefault("steam.base_url", "https://store.steampowered.com")
	v.SetDefault("steam.app_id", "4165890")
	v.SetDefault("steam.country", "us")
	v.SetDefault("steam.language", "english")
	v.SetDefault("steam.request_timeout", "10s")
	v.SetDefault("steam.user_agent", "availwatch/1.0")
	v.SetDefault("steam.store_url", "https://store.steampowered.com/sale/steamframe")
	v.SetDefault("steam.product_name", "Steam Frame")

	v.SetDefault("connectivity.probe_url", "https://store.steampowered.com")
	v.SetDefault("connectivity.timeout", "5s")

	v.SetDefault("monitor.continuous_threshold_minutes", 5)
	v.SetDefault("monitor.success_delay", "60s")
	v.SetDefault("monitor.failure_delay", "30s")
	v.SetDefault("monitor.backup_timers", 3)
	v.SetDefault("monitor.backup_stagger", "20s")
	v.SetDefault("monitor.max_attempts", 3)
	v.SetDefault("monitor.retry_delay", "5s")
	v.SetDefault("monitor.reconcile_interval", "15s")
	v.SetDefault("monitor.align_scheduled", false)
	v.SetDefault("monitor.use_advisory_lock", true)

	v.SetDefault("alerting.standard_spacing", "800ms")
	v.SetDefault("alerting.urgent_deliveries", 3)
	v.SetDefault("alerting.urgent_spacing", "5s")
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.bark.enabled", false)
	v.SetDefault("alerting.bark.server_url", "https://api.day.app")
	v.SetDefault("alerting.bark.group", "availwatch")

	v.SetDefault("api.enabled", false)
	v.SetDefault("api.addr", "127.0.0.1:8089")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if strings.TrimSpace(c.Steam.AppID) == "" {
		return fmt.Errorf("steam.app_id must be set")
	}
	switch c.StorageDriver() {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Monitor.ContinuousThresholdMinutes < 1 {
		return fmt.Errorf("monitor.continuous_threshold_minutes must be at least 1")
	}
	if c.Monitor.SuccessDelay <= 0 || c.Monitor.FailureDelay <= 0 {
		return fmt.Errorf("monitor.success_delay and monitor.failure_delay must be positive")
	}
	if c.Monitor.MaxAttempts < 1 {
		return fmt.Errorf("monitor.max_attempts must be at least 1")
	}
	if c.Monitor.BackupTimers < 0 {
		return fmt.Errorf("monitor.backup_timers cannot be negative")
	}
	if c.Alerting.UrgentDeliveries < 0 {
		return fmt.Errorf("alerting.urgent_deliveries cannot be negative")
	}
	if c.Alerting.StandardSpacing < 0 || c.Alerting.UrgentSpacing < 0 {
		return fmt.Errorf("alerting spacing cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Bark.Enabled && c.Alerting.Bark.DeviceKey == "" {
		return fmt.Errorf("alerting.bark.device_key 必须配置")
	}
	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api.addr must be set when the api is enabled")
	}
	return nil
}

// StorageDriver resolves the effective backend name.
func (c *Config) StorageDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if driver != "" {
		return driver
	}
	if c.Database.DSN != "" {
		return "postgres"
	}
	return "sqlite"
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
