package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Network      NetworkConfig      `mapstructure:"network"`
	Sources      []Catalog          `mapstructure:"sources"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	BaseDir        string        `mapstructure:"base_dir"`
	LogsDir        string        `mapstructure:"logs_dir"`
	Delay          time.Duration `mapstructure:"delay"`
	WifiOnly       bool          `mapstructure:"wifi_only"`
	MinDiskSpaceMB uint64        `mapstructure:"min_disk_space_mb"`
	MaxRetries     int           `mapstructure:"max_retries"`
	AutoRetry      bool          `mapstructure:"auto_retry"`
	AutoStart      bool          `mapstructure:"auto_start"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
}

// Settings returns the engine preferences carried by the download section
func (c DownloadConfig) Settings() DownloadSettings {
	return DownloadSettings{
		Delay:          c.Delay,
		WifiOnly:       c.WifiOnly,
		MinDiskSpaceMB: c.MinDiskSpaceMB,
		MaxRetries:     c.MaxRetries,
		AutoRetry:      c.AutoRetry,
	}
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	AutoExitOnEmpty bool          `mapstructure:"auto_exit_on_empty"`
	EmptyWaitTime   time.Duration `mapstructure:"empty_wait_time"`
}

// NetworkConfig controls how interfaces are classified
type NetworkConfig struct {
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	WifiInterfaces   []string      `mapstructure:"wifi_interfaces"`
	MobileInterfaces []string      `mapstructure:"mobile_interfaces"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

// Upper bounds of the download preferences
const (
	MaxRetriesLimit   = 10
	MaxMinDiskSpaceMB = 1 << 20
	MaxDownloadDelay  = time.Hour
)

// DownloadSettings are the preferences the engine reads at the start of a run
type DownloadSettings struct {
	Delay          time.Duration
	WifiOnly       bool
	MinDiskSpaceMB uint64
	MaxRetries     int
	AutoRetry      bool
}

// downloadSettingsJSON is the wire form of DownloadSettings. The delay is
// exchanged in milliseconds.
type downloadSettingsJSON struct {
	DelayMS        int64  `json:"delay_ms"`
	WifiOnly       bool   `json:"wifi_only"`
	MinDiskSpaceMB uint64 `json:"min_disk_space_mb"`
	MaxRetries     int    `json:"max_retries"`
	AutoRetry      bool   `json:"auto_retry"`
}

// MarshalJSON encodes the settings with the delay in milliseconds
func (s DownloadSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(downloadSettingsJSON{
		DelayMS:        s.Delay.Milliseconds(),
		WifiOnly:       s.WifiOnly,
		MinDiskSpaceMB: s.MinDiskSpaceMB,
		MaxRetries:     s.MaxRetries,
		AutoRetry:      s.AutoRetry,
	})
}

// UnmarshalJSON decodes the wire form. Fields missing from data keep the
// value already held by s.
func (s *DownloadSettings) UnmarshalJSON(data []byte) error {
	wire := downloadSettingsJSON{
		DelayMS:        s.Delay.Milliseconds(),
		WifiOnly:       s.WifiOnly,
		MinDiskSpaceMB: s.MinDiskSpaceMB,
		MaxRetries:     s.MaxRetries,
		AutoRetry:      s.AutoRetry,
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.DelayMS < 0 || wire.DelayMS > MaxDownloadDelay.Milliseconds() {
		return fmt.Errorf("delay_ms must be between 0 and %d", MaxDownloadDelay.Milliseconds())
	}
	s.Delay = time.Duration(wire.DelayMS) * time.Millisecond
	s.WifiOnly = wire.WifiOnly
	s.MinDiskSpaceMB = wire.MinDiskSpaceMB
	s.MaxRetries = wire.MaxRetries
	s.AutoRetry = wire.AutoRetry
	return nil
}

// Attempts returns how many fetch attempts a chapter gets
func (s DownloadSettings) Attempts() int {
	if !s.AutoRetry || s.MaxRetries < 1 {
		return 1
	}
	return s.MaxRetries
}

// MinDiskSpaceBytes returns the free space threshold in bytes
func (s DownloadSettings) MinDiskSpaceBytes() uint64 {
	return s.MinDiskSpaceMB * 1024 * 1024
}

// DefaultDownloadSettings returns the engine defaults
func DefaultDownloadSettings() DownloadSettings {
	return DefaultConfig().Download.Settings()
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			BaseDir:        "$HOME/Library/chapterdl/downloads",
			LogsDir:        "$HOME/Library/chapterdl/logs",
			Delay:          time.Second,
			WifiOnly:       false,
			MinDiskSpaceMB: 100,
			MaxRetries:     3,
			AutoRetry:      true,
			AutoStart:      true,
			FetchTimeout:   30 * time.Second,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/Library/chapterdl/chapterdl.db",
			CheckInterval:   10 * time.Second,
			AutoExitOnEmpty: false,
			EmptyWaitTime:   5 * time.Minute,
		},
		Network: NetworkConfig{
			PollInterval:     5 * time.Second,
			WifiInterfaces:   []string{"wlan", "wl", "wifi", "ath"},
			MobileInterfaces: []string{"wwan", "rmnet", "ppp", "ccmni"},
		},
		Notification: NotificationConfig{
			Enabled: true,
			Sound:   true,
			Method:  "osascript",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
