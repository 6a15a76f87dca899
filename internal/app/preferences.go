package app

import (
	"sync"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// Preferences holds the download settings shared by the engine, the config
// watcher and the HTTP API
type Preferences struct {
	mu       sync.RWMutex
	settings domain.DownloadSettings
}

// NewPreferences creates preferences with the given settings
func NewPreferences(settings domain.DownloadSettings) *Preferences {
	return &Preferences{settings: settings}
}

// DownloadSettings returns the current settings
func (p *Preferences) DownloadSettings() domain.DownloadSettings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// SetDownloadSettings replaces the settings after validation. A running
// engine picks them up on its next run.
func (p *Preferences) SetDownloadSettings(settings domain.DownloadSettings) error {
	if err := validateDownloadSettings(settings); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
	return nil
}
