package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QueueHandler handles queue-related HTTP requests
type QueueHandler struct {
	queue    QueueService
	enqueuer Enqueuer
	logger   *zap.Logger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue QueueService, enqueuer Enqueuer, logger *zap.Logger) *QueueHandler {
	return &QueueHandler{
		queue:    queue,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// AddToQueueRequest queues chapters or whole books
type AddToQueueRequest struct {
	ChapterIDs []int64 `json:"chapter_ids,omitempty"`
	BookIDs    []int64 `json:"book_ids,omitempty"`
}

// ReorderRequest moves one queue entry
type ReorderRequest struct {
	From *int `json:"from" binding:"required"`
	To   *int `json:"to" binding:"required"`
}

// ListQueue handles GET /api/v1/queue
func (h *QueueHandler) ListQueue(c *gin.Context) {
	downloads := h.queue.Queue()
	c.JSON(http.StatusOK, gin.H{
		"count":     len(downloads),
		"downloads": downloads,
	})
}

// AddToQueue handles POST /api/v1/queue
func (h *QueueHandler) AddToQueue(c *gin.Context) {
	var req AddToQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.ChapterIDs) == 0 && len(req.BookIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "chapter_ids or book_ids is required"})
		return
	}

	queued := 0
	if len(req.ChapterIDs) > 0 {
		n, err := h.enqueuer.QueueChapters(c.Request.Context(), req.ChapterIDs)
		if err != nil {
			h.logger.Error("Failed to queue chapters", zap.Error(err))
			respondError(c, err)
			return
		}
		queued += n
	}
	if len(req.BookIDs) > 0 {
		n, err := h.enqueuer.QueueBooks(c.Request.Context(), req.BookIDs)
		if err != nil {
			h.logger.Error("Failed to queue books", zap.Error(err))
			respondError(c, err)
			return
		}
		queued += n
	}

	c.JSON(http.StatusCreated, gin.H{"queued": queued})
}

// RemoveFromQueue handles DELETE /api/v1/queue/:chapterId
func (h *QueueHandler) RemoveFromQueue(c *gin.Context) {
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}

	if err := h.queue.RemoveFromQueue(c.Request.Context(), chapterID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "removed from queue"})
}

// ClearQueue handles DELETE /api/v1/queue
func (h *QueueHandler) ClearQueue(c *gin.Context) {
	if err := h.queue.ClearQueue(c.Request.Context()); err != nil {
		h.logger.Error("Failed to clear queue", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "queue cleared"})
}

// Reorder handles POST /api/v1/queue/reorder
func (h *QueueHandler) Reorder(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.queue.ReorderDownloads(c.Request.Context(), *req.From, *req.To); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "queue reordered"})
}

// Start handles POST /api/v1/queue/start
func (h *QueueHandler) Start(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"started": h.queue.StartDownloads()})
}

// Pause handles POST /api/v1/queue/pause
func (h *QueueHandler) Pause(c *gin.Context) {
	h.queue.PauseDownloads()
	c.JSON(http.StatusOK, gin.H{"message": "downloads paused"})
}

// Resume handles POST /api/v1/queue/resume
func (h *QueueHandler) Resume(c *gin.Context) {
	h.queue.ResumeDownloads()
	c.JSON(http.StatusOK, gin.H{"message": "downloads resumed"})
}

// Cancel handles POST /api/v1/queue/cancel
func (h *QueueHandler) Cancel(c *gin.Context) {
	h.queue.CancelDownloads(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "downloads cancelled"})
}

// Retry handles POST /api/v1/queue/:chapterId/retry
func (h *QueueHandler) Retry(c *gin.Context) {
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}

	if err := h.queue.RetryDownload(c.Request.Context(), chapterID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download queued for retry"})
}

// RetryFailed handles POST /api/v1/queue/retry-failed
func (h *QueueHandler) RetryFailed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"retried": h.queue.RetryAllFailed(c.Request.Context())})
}

// ClearCompleted handles POST /api/v1/queue/clear-completed
func (h *QueueHandler) ClearCompleted(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": h.queue.ClearCompleted(c.Request.Context())})
}

// ClearFailed handles POST /api/v1/queue/clear-failed
func (h *QueueHandler) ClearFailed(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": h.queue.ClearFailed(c.Request.Context())})
}

// GetStats handles GET /api/v1/queue/stats
func (h *QueueHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Stats())
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
