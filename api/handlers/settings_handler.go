package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SettingsHandler exposes the download preferences
type SettingsHandler struct {
	settings SettingsStore
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(settings SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetSettings handles GET /api/v1/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.DownloadSettings())
}

// UpdateSettings handles PUT /api/v1/settings. Fields missing from the body
// keep their current value.
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	settings := h.settings.DownloadSettings()
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.settings.SetDownloadSettings(settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.settings.DownloadSettings())
}

