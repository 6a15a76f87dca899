package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	v := newViper(configPath)

	// Try to read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults
	}

	return decodeConfig(v)
}

// WatchConfig reloads the download preferences whenever the config file
// changes. It does nothing when no config file exists.
func WatchConfig(configPath string, prefs *Preferences, logger *zap.Logger) error {
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := decodeConfig(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change",
				zap.String("file", e.Name),
				zap.Error(err))
			return
		}
		if err := prefs.SetDownloadSettings(config.Download.Settings()); err != nil {
			logger.Warn("Ignoring invalid download settings", zap.Error(err))
			return
		}
		logger.Info("Download settings reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	logger.Info("Watching config file", zap.String("file", v.ConfigFileUsed()))
	return nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")

	// If config path is provided, use it
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.chapterdl")
		v.AddConfigPath("/etc/chapterdl")
	}

	setDefaults(v, domain.DefaultConfig())

	// Read environment variables
	v.SetEnvPrefix("CHAPTERDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// setDefaults registers every scalar key so environment overrides apply even
// when the config file omits it
func setDefaults(v *viper.Viper, config *domain.Config) {
	v.SetDefault("server.host", config.Server.Host)
	v.SetDefault("server.port", config.Server.Port)

	v.SetDefault("download.base_dir", config.Download.BaseDir)
	v.SetDefault("download.logs_dir", config.Download.LogsDir)
	v.SetDefault("download.delay", config.Download.Delay)
	v.SetDefault("download.wifi_only", config.Download.WifiOnly)
	v.SetDefault("download.min_disk_space_mb", config.Download.MinDiskSpaceMB)
	v.SetDefault("download.max_retries", config.Download.MaxRetries)
	v.SetDefault("download.auto_retry", config.Download.AutoRetry)
	v.SetDefault("download.auto_start", config.Download.AutoStart)
	v.SetDefault("download.fetch_timeout", config.Download.FetchTimeout)

	v.SetDefault("queue.database_path", config.Queue.DatabasePath)
	v.SetDefault("queue.check_interval", config.Queue.CheckInterval)
	v.SetDefault("queue.auto_exit_on_empty", config.Queue.AutoExitOnEmpty)
	v.SetDefault("queue.empty_wait_time", config.Queue.EmptyWaitTime)

	v.SetDefault("network.poll_interval", config.Network.PollInterval)
	v.SetDefault("network.wifi_interfaces", config.Network.WifiInterfaces)
	v.SetDefault("network.mobile_interfaces", config.Network.MobileInterfaces)

	v.SetDefault("notification.enabled", config.Notification.Enabled)
	v.SetDefault("notification.sound", config.Notification.Sound)
	v.SetDefault("notification.method", config.Notification.Method)

	v.SetDefault("logging.level", config.Logging.Level)
	v.SetDefault("logging.format", config.Logging.Format)
	v.SetDefault("logging.output_path", config.Logging.OutputPath)
}

func decodeConfig(v *viper.Viper) (*domain.Config, error) {
	// Start with default config
	config := domain.DefaultConfig()

	// Unmarshal into config struct
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Expand environment variables in paths
	config = expandPaths(config)

	// Validate config
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.BaseDir = expandPath(config.Download.BaseDir)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	// Expand environment variables, $HOME included
	return os.ExpandEnv(path)
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Download.BaseDir == "" {
		return fmt.Errorf("download base directory not configured")
	}

	if err := validateDownloadSettings(config.Download.Settings()); err != nil {
		return err
	}

	if config.Queue.DatabasePath == "" {
		return fmt.Errorf("queue database path not configured")
	}

	if config.Queue.CheckInterval <= 0 {
		return fmt.Errorf("queue check interval must be positive")
	}

	seen := make(map[int64]bool, len(config.Sources))
	for _, source := range config.Sources {
		if source.BaseURL == "" {
			return fmt.Errorf("source %d has no base_url", source.SourceID)
		}
		if seen[source.SourceID] {
			return fmt.Errorf("duplicate source id: %d", source.SourceID)
		}
		seen[source.SourceID] = true
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

func validateDownloadSettings(settings domain.DownloadSettings) error {
	if settings.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if settings.MaxRetries > domain.MaxRetriesLimit {
		return fmt.Errorf("max retries cannot exceed %d", domain.MaxRetriesLimit)
	}
	if settings.Delay < 0 {
		return fmt.Errorf("download delay cannot be negative")
	}
	if settings.Delay > domain.MaxDownloadDelay {
		return fmt.Errorf("download delay cannot exceed %s", domain.MaxDownloadDelay)
	}
	if settings.MinDiskSpaceMB > domain.MaxMinDiskSpaceMB {
		return fmt.Errorf("min disk space cannot exceed %d MB", domain.MaxMinDiskSpaceMB)
	}
	return nil
}
