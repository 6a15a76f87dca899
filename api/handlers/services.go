package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/pkg/observable"
)

// QueueService is the download manager surface used by the handlers
type QueueService interface {
	Queue() []domain.Download
	Stats() domain.DownloadStats
	QueueUpdates() *observable.Value[[]domain.Download]
	RemoveFromQueue(ctx context.Context, chapterID int64) error
	ClearQueue(ctx context.Context) error
	ReorderDownloads(ctx context.Context, from, to int) error
	StartDownloads() bool
	PauseDownloads()
	ResumeDownloads()
	CancelDownloads(ctx context.Context)
	RetryDownload(ctx context.Context, chapterID int64) error
	RetryAllFailed(ctx context.Context) int
	ClearCompleted(ctx context.Context) int
	ClearFailed(ctx context.Context) int
	DownloadedChapterIDs(bookID int64) map[int64]struct{}
	DeleteChapterContent(ctx context.Context, chapterID int64) error
}

// Enqueuer resolves chapter and book IDs into queue entries
type Enqueuer interface {
	QueueChapters(ctx context.Context, chapterIDs []int64) (int, error)
	QueueBooks(ctx context.Context, bookIDs []int64) (int, error)
	IsRunning() bool
}

// LibraryImporter stores a book with its chapters
type LibraryImporter interface {
	ImportBook(ctx context.Context, book *domain.Book, chapters []*domain.Chapter) error
}

// SettingsStore reads and replaces the download preferences
type SettingsStore interface {
	DownloadSettings() domain.DownloadSettings
	SetDownloadSettings(settings domain.DownloadSettings) error
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotInQueue),
		errors.Is(err, domain.ErrChapterNotFound),
		errors.Is(err, domain.ErrBookNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotFailed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidIndex),
		errors.Is(err, domain.ErrNoChaptersToQueue),
		errors.Is(err, domain.ErrNoBooksToQueue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}
