package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/pkg/logger"
)

// QueueManager resolves chapter and book IDs into queue entries and
// supervises the engine so that a restored or retried queue keeps moving
type QueueManager struct {
	chapters    domain.ChapterRepository
	books       domain.BookRepository
	downloadMgr *DownloadManager
	config      *domain.QueueConfig
	autoStart   bool
	multiLogger *logger.MultiLogger

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	exitChan chan struct{}
	workerWg sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	chapters domain.ChapterRepository,
	books domain.BookRepository,
	downloadMgr *DownloadManager,
	config *domain.QueueConfig,
	autoStart bool,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		chapters:    chapters,
		books:       books,
		downloadMgr: downloadMgr,
		config:      config,
		autoStart:   autoStart,
		multiLogger: multiLogger,
		exitChan:    make(chan struct{}),
	}
}

// Start starts the queue supervisor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	qm.stopChan = make(chan struct{})
	qm.mu.Unlock()

	qm.logEvent("queue_started", zap.Duration("check_interval", qm.config.CheckInterval))

	qm.workerWg.Add(1)
	go qm.supervise(ctx, qm.stopChan)

	return nil
}

// Stop stops the queue supervisor. The engine keeps its state.
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	close(qm.stopChan)
	qm.mu.Unlock()

	qm.logEvent("queue_stopped")
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the supervisor is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// WaitForExit is closed when the queue stayed empty for the configured time
// and auto exit is enabled
func (qm *QueueManager) WaitForExit() <-chan struct{} {
	return qm.exitChan
}

// QueueChapters queues chapters by ID and starts downloading. Chapters that
// already hold content are skipped.
func (qm *QueueManager) QueueChapters(ctx context.Context, chapterIDs []int64) (int, error) {
	if len(chapterIDs) == 0 {
		return 0, domain.ErrNoChaptersToQueue
	}

	var chapters []*domain.Chapter
	books := make(map[int64]*domain.Book)
	for _, id := range chapterIDs {
		chapter, err := qm.chapters.FindByID(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("chapter %d: %w", id, err)
		}
		if chapter.HasContent() {
			continue
		}
		if _, ok := books[chapter.BookID]; !ok {
			book, err := qm.books.FindByID(ctx, chapter.BookID)
			if err != nil {
				return 0, fmt.Errorf("book %d: %w", chapter.BookID, err)
			}
			books[book.ID] = book
		}
		chapters = append(chapters, chapter)
	}

	return qm.enqueue(ctx, chapters, books)
}

// QueueBooks queues every chapter of the given books that has no content yet
func (qm *QueueManager) QueueBooks(ctx context.Context, bookIDs []int64) (int, error) {
	if len(bookIDs) == 0 {
		return 0, domain.ErrNoBooksToQueue
	}

	var chapters []*domain.Chapter
	books := make(map[int64]*domain.Book)
	for _, id := range bookIDs {
		book, err := qm.books.FindByID(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("book %d: %w", id, err)
		}
		books[book.ID] = book

		bookChapters, err := qm.chapters.FindByBookID(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("chapters of book %d: %w", id, err)
		}
		for _, chapter := range bookChapters {
			if !chapter.HasContent() {
				chapters = append(chapters, chapter)
			}
		}
	}

	return qm.enqueue(ctx, chapters, books)
}

func (qm *QueueManager) enqueue(ctx context.Context, chapters []*domain.Chapter, books map[int64]*domain.Book) (int, error) {
	bookList := make([]*domain.Book, 0, len(books))
	for _, book := range books {
		bookList = append(bookList, book)
	}

	added, err := qm.downloadMgr.AddToQueue(ctx, chapters, bookList)
	if err != nil {
		qm.logError("Failed to queue chapters", zap.Error(err))
		return added, err
	}

	qm.logEvent("chapters_queued",
		zap.Int("requested", len(chapters)),
		zap.Int("added", added))

	if added > 0 {
		qm.downloadMgr.StartDownloads()
	}
	return added, nil
}

// supervise starts the engine when QUEUE entries wait and it is idle, and
// tracks how long nothing has been left to download
func (qm *QueueManager) supervise(ctx context.Context, stop <-chan struct{}) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	emptyStartTime := time.Time{}

	for {
		select {
		case <-ctx.Done():
			qm.logEvent("queue_supervisor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-stop:
			qm.logEvent("queue_supervisor_stopped", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			engine := qm.downloadMgr.Downloader()
			queued := qm.downloadMgr.HasQueued()

			if !queued && !engine.IsRunning() {
				if emptyStartTime.IsZero() {
					emptyStartTime = time.Now()
					qm.logEvent("queue_empty")
				} else if qm.config.AutoExitOnEmpty && time.Since(emptyStartTime) > qm.config.EmptyWaitTime {
					qm.logEvent("queue_auto_exit", zap.String("reason", "empty_timeout"))
					close(qm.exitChan)
					return
				}
				continue
			}

			// Reset empty timer
			emptyStartTime = time.Time{}

			if queued && qm.autoStart && !engine.IsRunning() && !engine.IsPaused() {
				if qm.downloadMgr.StartDownloads() {
					qm.logEvent("queue_resumed", zap.Int("entries", len(qm.downloadMgr.Queue())))
				}
			}
		}
	}
}

func (qm *QueueManager) logEvent(event string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent(event, fields...)
	}
}

func (qm *QueueManager) logError(msg string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogAppError(msg, fields...)
	}
}
