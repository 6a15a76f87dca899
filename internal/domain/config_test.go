package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, time.Second, config.Download.Delay)
	assert.False(t, config.Download.WifiOnly)
	assert.Equal(t, uint64(100), config.Download.MinDiskSpaceMB)
	assert.Equal(t, 3, config.Download.MaxRetries)
	assert.True(t, config.Download.AutoRetry)
	assert.Equal(t, 10*time.Second, config.Queue.CheckInterval)
	assert.True(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestDownloadSettings_Attempts(t *testing.T) {
	tests := []struct {
		name     string
		settings DownloadSettings
		want     int
	}{
		{"auto retry", DownloadSettings{MaxRetries: 3, AutoRetry: true}, 3},
		{"auto retry off", DownloadSettings{MaxRetries: 3, AutoRetry: false}, 1},
		{"zero retries", DownloadSettings{MaxRetries: 0, AutoRetry: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.Attempts())
		})
	}
}

func TestDownloadSettings_JSONDelayInMilliseconds(t *testing.T) {
	settings := DownloadSettings{Delay: 2500 * time.Millisecond, MaxRetries: 3, AutoRetry: true}

	data, err := json.Marshal(settings)
	require.NoError(t, err)
	assert.JSONEq(t, `{"delay_ms":2500,"wifi_only":false,"min_disk_space_mb":0,"max_retries":3,"auto_retry":true}`, string(data))

	require.NoError(t, json.Unmarshal([]byte(`{"delay_ms":1000}`), &settings))
	assert.Equal(t, time.Second, settings.Delay)
	assert.Equal(t, 3, settings.MaxRetries)
	assert.True(t, settings.AutoRetry)

	assert.Error(t, json.Unmarshal([]byte(`{"delay_ms":-1}`), &settings))
	assert.Error(t, json.Unmarshal([]byte(`{"delay_ms":9223372036854775807}`), &settings))
	assert.Equal(t, time.Second, settings.Delay)
}

func TestDownloadSettings_MaxDiskThresholdFits(t *testing.T) {
	settings := DownloadSettings{MinDiskSpaceMB: MaxMinDiskSpaceMB}
	assert.Equal(t, uint64(1)<<40, settings.MinDiskSpaceBytes())
}

func TestDownloadSettings_MinDiskSpaceBytes(t *testing.T) {
	settings := DefaultDownloadSettings()
	assert.Equal(t, uint64(100*1024*1024), settings.MinDiskSpaceBytes())
}
