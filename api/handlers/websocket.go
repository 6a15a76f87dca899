package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/pkg/logger"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Local tool, any origin
	},
}

// QueueMessage is one snapshot pushed to queue stream clients
type QueueMessage struct {
	Downloads []domain.Download    `json:"downloads"`
	Stats     domain.DownloadStats `json:"stats"`
}

// StreamHandler serves WebSocket streams of the queue and of log files
type StreamHandler struct {
	queue     QueueService
	logReader *logger.LogReader
	logger    *zap.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(queue QueueService, logsDir string, log *zap.Logger) *StreamHandler {
	return &StreamHandler{
		queue:     queue,
		logReader: logger.NewLogReader(logsDir),
		logger:    log,
	}
}

// QueueStream handles GET /api/v1/queue/ws. Every queue change is pushed as
// a QueueMessage; the current queue is sent on connect.
func (h *StreamHandler) QueueStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("Queue stream client connected", zap.String("remote_addr", c.Request.RemoteAddr))

	updates, cancel := h.queue.QueueUpdates().Subscribe()
	defer cancel()

	done := watchClose(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case downloads, ok := <-updates:
			if !ok {
				return
			}
			if downloads == nil {
				downloads = []domain.Download{}
			}
			msg := QueueMessage{Downloads: downloads, Stats: h.queue.Stats()}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("Queue stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// LogStream handles GET /api/v1/logs/:category/ws. The last 50 entries are
// sent first, then new entries as they are written.
func (h *StreamHandler) LogStream(c *gin.Context) {
	category, ok := logger.ValidCategory(c.Param("category"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	entries, err := h.logReader.ReadTodayLogs(category, 50)
	if err == nil {
		for _, entry := range entries {
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	entryChan := make(chan logger.LogEntry, 100)
	go func() {
		if err := h.logReader.TailLogs(ctx, category, entryChan); err != nil {
			h.logger.Error("Log tailing error", zap.Error(err))
		}
	}()

	done := watchClose(conn)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-entryChan:
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// watchClose reads and discards client frames and closes the returned
// channel once the connection fails
func watchClose(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
