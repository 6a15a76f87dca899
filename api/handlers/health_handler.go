package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	supervisor Enqueuer
	queue      QueueService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(supervisor Enqueuer, queue QueueService) *HealthHandler {
	return &HealthHandler{
		supervisor: supervisor,
		queue:      queue,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Supervised  bool `json:"supervised"`
		Downloading bool `json:"downloading"`
		Paused      bool `json:"paused"`
	} `json:"queue"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	stats := h.queue.Stats()

	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Queue.Supervised = h.supervisor.IsRunning()
	response.Queue.Downloading = stats.IsRunning
	response.Queue.Paused = stats.IsPaused

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !h.supervisor.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue supervisor not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
