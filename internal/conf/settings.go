package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings is the optional YAML settings file
type Settings struct {
	Inbox  InboxSettings  `yaml:"inbox"`
	Remote RemoteSettings `yaml:"remote"`
	Timer  TimerSettings  `yaml:"timer"`
	Feishu FeishuSettings `yaml:"feishu"`
}

// InboxSettings contains inbox feature flags
type InboxSettings struct {
	Enabled        *bool  `yaml:"enabled"`
	DeviceID       string `yaml:"device_id"`
	RefreshMinutes *int   `yaml:"refresh_minutes"` // 0 disables
	PageSize       int    `yaml:"page_size"`
}

// RemoteSettings contains the inbox service endpoint
type RemoteSettings struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// TimerSettings contains durable timer settings
type TimerSettings struct {
	Backend string `yaml:"backend"`
	TickMS  int    `yaml:"tick_ms"`
}

// FeishuSettings contains Feishu chat routing
type FeishuSettings struct {
	InboxChatID string `yaml:"inbox_chat_id"`
	EventChatID string `yaml:"event_chat_id"`
}

func (s InboxSettings) enabled() bool {
	if s.Enabled == nil {
		return true
	}
	return *s.Enabled
}

// LoadSettings loads the settings file, falling back to defaults when none exists.
// An explicitly given path must exist.
func LoadSettings(configPath string) (*Settings, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/inbox.yaml",
			"/etc/inboxsync/inbox.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "inbox.yaml"))
		}
	}

	var data []byte
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err == nil {
			data = b
			break
		}
		if configPath != "" || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read settings %s: %w", p, err)
		}
	}

	if data == nil {
		return DefaultSettings(), nil
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	settings.fillDefaults()
	return &settings, nil
}

// fillDefaults fills in default values for empty fields
func (s *Settings) fillDefaults() {
	defaults := DefaultSettings()

	if s.Inbox.RefreshMinutes == nil {
		s.Inbox.RefreshMinutes = defaults.Inbox.RefreshMinutes
	}
	if s.Inbox.PageSize == 0 {
		s.Inbox.PageSize = defaults.Inbox.PageSize
	}
	if s.Remote.TimeoutSeconds == 0 {
		s.Remote.TimeoutSeconds = defaults.Remote.TimeoutSeconds
	}
	if s.Timer.Backend == "" {
		s.Timer.Backend = defaults.Timer.Backend
	}
	if s.Timer.TickMS == 0 {
		s.Timer.TickMS = defaults.Timer.TickMS
	}
}

// DefaultSettings returns the default settings
func DefaultSettings() *Settings {
	return &Settings{
		Inbox: InboxSettings{
			RefreshMinutes: intPtr(15),
			PageSize:       100,
		},
		Remote: RemoteSettings{
			TimeoutSeconds: 30,
		},
		Timer: TimerSettings{
			Backend: TimerBackendSQLite,
			TickMS:  1000,
		},
	}
}

func intPtr(v int) *int {
	return &v
}
