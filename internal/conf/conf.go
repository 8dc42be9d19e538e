package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Timer backends
const (
	TimerBackendSQLite = "sqlite"
	TimerBackendRedis  = "redis"
)

// Config represents application configuration
type Config struct {
	// Inbox engine configuration
	Inbox InboxConfig

	// Remote inbox service
	Remote RemoteConfig

	// Durable timer configuration
	Timer TimerConfig

	// Redis configuration (timer backend)
	Redis RedisConfig

	// Feishu configuration (optional signal surface)
	Feishu FeishuConfig

	// Local HTTP API port
	HTTPPort int

	// Prometheus listen address, empty disables
	MetricsAddr string

	// Debug mode
	Debug bool
}

// InboxConfig contains inbox engine configuration
type InboxConfig struct {
	DBPath         string
	Enabled        bool // entitlement flag
	DeviceID       string
	RefreshMinutes int // periodic resync interval, 0 disables
	PageSize       int
}

// RemoteConfig contains the inbox service endpoint
type RemoteConfig struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
}

// TimerConfig contains durable timer configuration
type TimerConfig struct {
	Backend string
	TickMS  int
}

// RedisConfig contains Redis configuration
type RedisConfig struct {
	Addr     string
	Password string
	Key      string
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID       string
	AppSecret   string
	InboxChatID string // chat carrying inbox signals and presented notifications
	EventChatID string // chat receiving analytics events, empty logs only
}

// LoadFromEnv loads configuration from the settings file and environment variables.
// Environment variables win over the settings file.
func LoadFromEnv() (*Config, error) {
	settings, err := LoadSettings(os.Getenv("INBOX_SETTINGS_PATH"))
	if err != nil {
		return nil, err
	}

	dbPath := os.Getenv("INBOX_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".inboxsync", "inbox.db")
	}

	cfg := &Config{
		Inbox: InboxConfig{
			DBPath:         dbPath,
			Enabled:        envBool("INBOX_ENABLED", settings.Inbox.enabled()),
			DeviceID:       envString("INBOX_DEVICE_ID", settings.Inbox.DeviceID),
			RefreshMinutes: envInt("INBOX_REFRESH_MINUTES", *settings.Inbox.RefreshMinutes),
			PageSize:       envInt("INBOX_PAGE_SIZE", settings.Inbox.PageSize),
		},
		Remote: RemoteConfig{
			BaseURL:        envString("INBOX_API_BASE_URL", settings.Remote.BaseURL),
			Token:          os.Getenv("INBOX_API_TOKEN"),
			TimeoutSeconds: envInt("INBOX_API_TIMEOUT_SECONDS", settings.Remote.TimeoutSeconds),
		},
		Timer: TimerConfig{
			Backend: envString("INBOX_TIMER_BACKEND", settings.Timer.Backend),
			TickMS:  envInt("INBOX_TIMER_TICK_MS", settings.Timer.TickMS),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			Key:      envString("REDIS_TIMER_KEY", "inboxsync:timers"),
		},
		Feishu: FeishuConfig{
			AppID:       os.Getenv("FEISHU_APP_ID"),
			AppSecret:   os.Getenv("FEISHU_APP_SECRET"),
			InboxChatID: envString("FEISHU_INBOX_CHAT_ID", settings.Feishu.InboxChatID),
			EventChatID: envString("FEISHU_EVENT_CHAT_ID", settings.Feishu.EventChatID),
		},
		HTTPPort:    envInt("INBOX_HTTP_PORT", 9877),
		MetricsAddr: os.Getenv("INBOX_METRICS_ADDR"),
		Debug:       os.Getenv("DEBUG") == "true",
	}
	return cfg, nil
}

// FeishuEnabled reports whether the Feishu signal surface is configured
func (c *Config) FeishuEnabled() bool {
	return c.Feishu.AppID != "" && c.Feishu.AppSecret != ""
}

// RefreshInterval returns the periodic resync interval
func (c *InboxConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMinutes) * time.Minute
}

// Tick returns the durable timer poll interval
func (c *TimerConfig) Tick() time.Duration {
	return time.Duration(c.TickMS) * time.Millisecond
}

// Timeout returns the remote request timeout
func (c *RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Inbox.DeviceID == "" {
		return &ConfigError{Field: "INBOX_DEVICE_ID", Message: "required"}
	}
	if c.Remote.BaseURL == "" {
		return &ConfigError{Field: "INBOX_API_BASE_URL", Message: "required"}
	}
	if c.Inbox.RefreshMinutes < 0 {
		return &ConfigError{Field: "INBOX_REFRESH_MINUTES", Message: "must not be negative"}
	}
	if c.Inbox.PageSize <= 0 {
		return &ConfigError{Field: "INBOX_PAGE_SIZE", Message: "must be positive"}
	}
	if c.Timer.TickMS <= 0 {
		return &ConfigError{Field: "INBOX_TIMER_TICK_MS", Message: "must be positive"}
	}
	switch c.Timer.Backend {
	case TimerBackendSQLite:
	case TimerBackendRedis:
		if c.Redis.Addr == "" {
			return &ConfigError{Field: "REDIS_ADDR", Message: "required for redis timer backend"}
		}
	default:
		return &ConfigError{Field: "INBOX_TIMER_BACKEND", Message: "must be sqlite or redis"}
	}
	if (c.Feishu.AppID == "") != (c.Feishu.AppSecret == "") {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "must be set together"}
	}
	if c.FeishuEnabled() && c.Feishu.InboxChatID == "" {
		return &ConfigError{Field: "FEISHU_INBOX_CHAT_ID", Message: "required when Feishu is configured"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}
