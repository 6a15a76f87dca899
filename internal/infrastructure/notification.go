package infrastructure

import (
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// NotificationService handles sending desktop notifications
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		err = n.sendOSAScript(title, message)
	case "notify-send":
		err = n.run("notify-send", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// sendOSAScript sends notification using macOS osascript
func (n *NotificationService) sendOSAScript(title, message string) error {
	script := fmt.Sprintf("display notification %s with title %s",
		AppleScriptQuote(message), AppleScriptQuote(title))
	if n.config.Sound {
		script += ` sound name "Glass"`
	}
	return n.run("osascript", "-e", script)
}

// NotifyChaptersQueued sends notification when chapters are added to the queue
func (n *NotificationService) NotifyChaptersQueued(count int) {
	n.Send("Download Queued", fmt.Sprintf("Added %d chapter(s) to the queue", count))
}

// NotifyChapterFailed sends notification when a chapter exhausted its retries
func (n *NotificationService) NotifyChapterFailed(chapterName, bookTitle, message string) {
	title := "Download Failed"
	body := fmt.Sprintf("%s (%s): %s", truncateString(chapterName, 30), truncateString(bookTitle, 30), message)
	n.Send(title, body)
}

// NotifyQueueFinished sends notification when a run went through the queue
func (n *NotificationService) NotifyQueueFinished(completed, failed int) {
	title := "Downloads Finished"
	message := fmt.Sprintf("%d downloaded", completed)
	if failed > 0 {
		message += fmt.Sprintf(", %d failed", failed)
	}
	n.Send(title, message)
}
