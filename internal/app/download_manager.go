package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/pkg/observable"
)

// Notifier receives user-facing queue events
type Notifier interface {
	NotifyChaptersQueued(count int)
	NotifyChapterFailed(chapterName, bookTitle, message string)
	NotifyQueueFinished(completed, failed int)
}

// DownloadManagerDeps are the collaborators of the download manager
type DownloadManagerDeps struct {
	Downloader *Downloader
	Cache      domain.DownloadCache
	Store      domain.DownloadStore
	Saved      domain.SavedDownloadRepository
	Provider   domain.DownloadProvider
	Chapters   domain.ChapterRepository
	Books      domain.BookRepository
	Notifier   Notifier
}

// DownloadManager owns the canonical download queue and drives the engine
type DownloadManager struct {
	deps   DownloadManagerDeps
	logger *zap.Logger

	mu          sync.Mutex
	queue       []*domain.DownloadState
	initialized bool

	// persistMu orders full-snapshot writes; acquire before mu, never after
	persistMu sync.Mutex

	queueValue *observable.Value[[]domain.Download]
	completed  *observable.Value[int]
	failed     *observable.Value[int]
}

// NewDownloadManager creates a download manager with an empty queue
func NewDownloadManager(deps DownloadManagerDeps, logger *zap.Logger) *DownloadManager {
	return &DownloadManager{
		deps:       deps,
		logger:     logger,
		queueValue: observable.NewValue([]domain.Download{}),
		completed:  observable.NewValue(0),
		failed:     observable.NewValue(0),
	}
}

// Init restores the persisted queue and warms the cache. Safe to call twice.
func (m *DownloadManager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true

	items := m.deps.Store.RestoreQueue(ctx)
	queue := make([]*domain.DownloadState, 0, len(items))
	interrupted := 0
	for _, item := range items {
		download := item.ToDownload()
		// A crash mid-fetch leaves entries DOWNLOADING
		if download.Status == domain.StatusDownloading {
			download.Status = domain.StatusQueue
			download.Progress = 0
			interrupted++
		}
		queue = append(queue, domain.NewDownloadState(download))
	}
	m.queue = queue
	m.mu.Unlock()

	m.logger.Info("Download queue restored",
		zap.Int("entries", len(queue)),
		zap.Int("interrupted", interrupted))

	if interrupted > 0 {
		m.persistQueue(ctx)
	}
	m.publish()

	if !m.deps.Cache.IsInitialized() {
		if err := m.deps.Cache.Refresh(ctx); err != nil {
			return fmt.Errorf("failed to refresh download cache: %w", err)
		}
	}
	return nil
}

// AddToQueue appends chapters that are neither downloaded nor queued and
// returns how many were admitted. Chapters whose book is missing are skipped.
func (m *DownloadManager) AddToQueue(ctx context.Context, chapters []*domain.Chapter, books []*domain.Book) (int, error) {
	bookByID := make(map[int64]*domain.Book, len(books))
	for _, book := range books {
		bookByID[book.ID] = book
	}

	m.mu.Lock()
	queued := make(map[int64]struct{}, len(m.queue))
	for _, state := range m.queue {
		queued[state.ChapterID()] = struct{}{}
	}

	var saved []*domain.SavedDownload
	for _, chapter := range chapters {
		if _, ok := queued[chapter.ID]; ok {
			continue
		}
		if m.deps.Cache.IsChapterDownloaded(chapter.BookID, chapter.ID) {
			continue
		}
		book, ok := bookByID[chapter.BookID]
		if !ok {
			m.logger.Warn("Skipping chapter without book",
				zap.Int64("chapter_id", chapter.ID),
				zap.Int64("book_id", chapter.BookID))
			continue
		}

		m.queue = append(m.queue, domain.NewDownloadState(*domain.NewDownload(chapter, book)))
		queued[chapter.ID] = struct{}{}
		saved = append(saved, domain.NewSavedDownload(chapter, book))
	}
	m.mu.Unlock()

	if len(saved) == 0 {
		return 0, nil
	}

	m.persistQueue(ctx)
	m.publish()

	if err := m.deps.Saved.InsertAll(ctx, saved); err != nil {
		return len(saved), fmt.Errorf("failed to save download records: %w", err)
	}

	m.logger.Info("Chapters added to queue", zap.Int("count", len(saved)))
	if m.deps.Notifier != nil {
		m.deps.Notifier.NotifyChaptersQueued(len(saved))
	}
	return len(saved), nil
}

// AddChapterToQueue queues a single chapter and reports whether it was admitted
func (m *DownloadManager) AddChapterToQueue(ctx context.Context, chapter *domain.Chapter, book *domain.Book) (bool, error) {
	added, err := m.AddToQueue(ctx, []*domain.Chapter{chapter}, []*domain.Book{book})
	return added == 1, err
}

// RemoveFromQueue drops a chapter from the queue and its saved record
func (m *DownloadManager) RemoveFromQueue(ctx context.Context, chapterID int64) error {
	m.mu.Lock()
	index := m.indexOf(chapterID)
	if index < 0 {
		m.mu.Unlock()
		return domain.ErrNotInQueue
	}
	m.queue = append(m.queue[:index], m.queue[index+1:]...)
	m.mu.Unlock()

	if err := m.deps.Saved.Delete(ctx, chapterID); err != nil {
		m.logger.Warn("Failed to delete download record", zap.Int64("chapter_id", chapterID), zap.Error(err))
	}

	m.persistQueue(ctx)
	m.publish()
	m.logger.Info("Chapter removed from queue", zap.Int64("chapter_id", chapterID))
	return nil
}

// ClearQueue stops the engine and empties the queue, the store and the
// saved records
func (m *DownloadManager) ClearQueue(ctx context.Context) error {
	m.deps.Downloader.Stop()

	m.persistMu.Lock()
	m.mu.Lock()
	m.queue = nil
	m.mu.Unlock()
	err := m.deps.Store.Clear(ctx)
	m.persistMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to clear persisted queue: %w", err)
	}

	if err := m.deps.Saved.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to clear download records: %w", err)
	}

	m.completed.Set(0)
	m.failed.Set(0)
	m.publish()
	m.logger.Info("Download queue cleared")
	return nil
}

// StartDownloads runs the engine over every QUEUE and ERROR entry. It reports
// whether a run was started.
func (m *DownloadManager) StartDownloads() bool {
	m.mu.Lock()
	pending := make([]*domain.DownloadState, 0, len(m.queue))
	for _, state := range m.queue {
		if state.Status().IsPending() {
			pending = append(pending, state)
		}
	}
	m.mu.Unlock()

	if len(pending) == 0 {
		return false
	}

	return m.deps.Downloader.Start(pending, domain.DownloadCallbacks{
		OnProgress: m.onProgress,
		OnComplete: m.onComplete,
		OnError:    m.onError,
	})
}

// PauseDownloads pauses the engine after the current chapter
func (m *DownloadManager) PauseDownloads() {
	m.deps.Downloader.Pause()
}

// ResumeDownloads clears every pause flag of the engine
func (m *DownloadManager) ResumeDownloads() {
	m.deps.Downloader.Resume()
}

// CancelDownloads stops the engine and puts interrupted entries back in the queue
func (m *DownloadManager) CancelDownloads(ctx context.Context) {
	m.deps.Downloader.Stop()

	m.mu.Lock()
	for _, state := range m.queue {
		if state.Status() == domain.StatusDownloading {
			state.Update(func(d *domain.Download) {
				d.Status = domain.StatusQueue
				d.Progress = 0
			})
		}
	}
	m.mu.Unlock()

	m.persistQueue(ctx)
	m.publish()
}

// RetryDownload puts a failed entry back in the queue and restarts the engine
// when idle
func (m *DownloadManager) RetryDownload(ctx context.Context, chapterID int64) error {
	m.mu.Lock()
	index := m.indexOf(chapterID)
	if index < 0 {
		m.mu.Unlock()
		return domain.ErrNotInQueue
	}
	state := m.queue[index]
	if state.Status() != domain.StatusError {
		m.mu.Unlock()
		return domain.ErrNotFailed
	}
	state.Update(func(d *domain.Download) { d.ResetToQueue() })
	m.mu.Unlock()

	m.persistQueue(ctx)
	m.publish()
	m.logger.Info("Retrying chapter", zap.Int64("chapter_id", chapterID))

	if !m.deps.Downloader.IsRunning() {
		m.StartDownloads()
	}
	return nil
}

// RetryAllFailed puts every failed entry back in the queue and returns how
// many were reset
func (m *DownloadManager) RetryAllFailed(ctx context.Context) int {
	m.mu.Lock()
	reset := 0
	for _, state := range m.queue {
		if state.Status() == domain.StatusError {
			state.Update(func(d *domain.Download) { d.ResetToQueue() })
			reset++
		}
	}
	m.mu.Unlock()

	if reset == 0 {
		return 0
	}

	m.persistQueue(ctx)
	m.publish()
	m.logger.Info("Retrying failed chapters", zap.Int("count", reset))

	if !m.deps.Downloader.IsRunning() {
		m.StartDownloads()
	}
	return reset
}

// ClearCompleted removes DOWNLOADED entries and resets the completed counter
func (m *DownloadManager) ClearCompleted(ctx context.Context) int {
	removed := m.removeWhere(func(d domain.Download) bool { return d.Status == domain.StatusDownloaded })
	m.completed.Set(0)
	m.persistQueue(ctx)
	m.publish()
	return len(removed)
}

// ClearFailed removes ERROR entries with their saved records and resets the
// failed counter
func (m *DownloadManager) ClearFailed(ctx context.Context) int {
	removed := m.removeWhere(func(d domain.Download) bool { return d.Status == domain.StatusError })
	for _, download := range removed {
		if err := m.deps.Saved.Delete(ctx, download.ChapterID); err != nil {
			m.logger.Warn("Failed to delete download record",
				zap.Int64("chapter_id", download.ChapterID), zap.Error(err))
		}
	}
	m.failed.Set(0)
	m.persistQueue(ctx)
	m.publish()
	return len(removed)
}

// ReorderDownloads moves the entry at from to position to
func (m *DownloadManager) ReorderDownloads(ctx context.Context, from, to int) error {
	m.mu.Lock()
	if from < 0 || from >= len(m.queue) || to < 0 || to >= len(m.queue) {
		size := len(m.queue)
		m.mu.Unlock()
		return fmt.Errorf("%w: from=%d to=%d size=%d", domain.ErrInvalidIndex, from, to, size)
	}
	state := m.queue[from]
	m.queue = append(m.queue[:from], m.queue[from+1:]...)
	m.queue = append(m.queue[:to], append([]*domain.DownloadState{state}, m.queue[to:]...)...)
	m.mu.Unlock()

	m.persistQueue(ctx)
	m.publish()
	return nil
}

// IsChapterDownloaded answers from the cache without I/O
func (m *DownloadManager) IsChapterDownloaded(bookID, chapterID int64) bool {
	return m.deps.Cache.IsChapterDownloaded(bookID, chapterID)
}

// DownloadedChapterIDs answers from the cache without I/O
func (m *DownloadManager) DownloadedChapterIDs(bookID int64) map[int64]struct{} {
	return m.deps.Cache.DownloadedChapterIDs(bookID)
}

// DeleteChapterContent removes the local content of a chapter. The stored text
// is cleared too so that a later download fetches it again.
func (m *DownloadManager) DeleteChapterContent(ctx context.Context, chapterID int64) error {
	chapter, err := m.deps.Chapters.FindByID(ctx, chapterID)
	if err != nil {
		return err
	}
	book, err := m.deps.Books.FindByID(ctx, chapter.BookID)
	if err != nil {
		return err
	}

	if err := m.deps.Provider.DeleteChapter(book.SourceID, book.Title, chapter.Name); err != nil {
		return fmt.Errorf("failed to delete chapter content: %w", err)
	}
	if chapter.Content != "" {
		if err := m.deps.Chapters.UpdateContent(ctx, chapter.ID, ""); err != nil {
			return fmt.Errorf("failed to clear chapter content: %w", err)
		}
	}
	m.deps.Cache.RemoveDownloadedChapter(book.ID, chapter.ID)

	m.logger.Info("Chapter content deleted", zap.Int64("chapter_id", chapterID))
	return nil
}

// Queue returns a snapshot of the queue in order
func (m *DownloadManager) Queue() []domain.Download {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// HasPending reports whether any entry is QUEUE or ERROR
func (m *DownloadManager) HasPending() bool {
	return m.hasStatus(domain.DownloadStatus.IsPending)
}

// HasQueued reports whether any entry is waiting in QUEUE. Failed entries
// only run again on an explicit start or retry.
func (m *DownloadManager) HasQueued() bool {
	return m.hasStatus(func(s domain.DownloadStatus) bool { return s == domain.StatusQueue })
}

func (m *DownloadManager) hasStatus(match func(domain.DownloadStatus) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, state := range m.queue {
		if match(state.Status()) {
			return true
		}
	}
	return false
}

// QueueUpdates publishes a queue snapshot after every change
func (m *DownloadManager) QueueUpdates() *observable.Value[[]domain.Download] { return m.queueValue }

// CompletedCount counts chapters downloaded since the last reset
func (m *DownloadManager) CompletedCount() *observable.Value[int] { return m.completed }

// FailedCount counts chapters that failed since the last reset
func (m *DownloadManager) FailedCount() *observable.Value[int] { return m.failed }

// Downloader exposes the engine state for observers
func (m *DownloadManager) Downloader() *Downloader { return m.deps.Downloader }

// Stats summarizes the queue and the engine
func (m *DownloadManager) Stats() domain.DownloadStats {
	stats := domain.DownloadStats{
		CompletedCount:         m.completed.Get(),
		FailedCount:            m.failed.Get(),
		IsRunning:              m.deps.Downloader.IsRunning(),
		IsPaused:               m.deps.Downloader.IsPaused(),
		IsPausedDueToNetwork:   m.deps.Downloader.PausedDueToNetwork().Get(),
		IsPausedDueToDiskSpace: m.deps.Downloader.PausedDueToDiskSpace().Get(),
		CurrentDownload:        m.deps.Downloader.CurrentDownload().Get(),
	}

	for _, download := range m.Queue() {
		stats.Total++
		switch download.Status {
		case domain.StatusQueue:
			stats.Queued++
		case domain.StatusDownloading:
			stats.Downloading++
		case domain.StatusDownloaded:
			stats.Downloaded++
		case domain.StatusError:
			stats.Failed++
		}
	}

	if space, err := m.deps.Provider.AvailableSpace(); err == nil {
		stats.AvailableSpace = space
	}
	return stats
}

func (m *DownloadManager) onProgress(download domain.Download) {
	m.updateEntry(download)
	if download.Status == domain.StatusDownloaded {
		m.completed.Update(func(n int) int { return n + 1 })
	}
	m.persistQueue(context.Background())
	m.publish()
}

func (m *DownloadManager) onError(download domain.Download, message string) {
	m.updateEntry(download)

	// A chapter skipped for disk space keeps its status and is not a failure
	if download.Status == domain.StatusError {
		m.failed.Update(func(n int) int { return n + 1 })
		if m.deps.Notifier != nil {
			m.deps.Notifier.NotifyChapterFailed(download.ChapterName, download.BookTitle, message)
		}
	}

	m.logger.Warn("Chapter download error",
		zap.Int64("chapter_id", download.ChapterID),
		zap.String("status", download.Status.String()),
		zap.String("message", message))

	m.persistQueue(context.Background())
	m.publish()
}

func (m *DownloadManager) onComplete() {
	ctx := context.Background()

	var downloaded []int64
	for _, download := range m.Queue() {
		if download.Status == domain.StatusDownloaded {
			downloaded = append(downloaded, download.ChapterID)
		}
	}
	for _, chapterID := range downloaded {
		if err := m.deps.Saved.Delete(ctx, chapterID); err != nil {
			m.logger.Warn("Failed to delete download record", zap.Int64("chapter_id", chapterID), zap.Error(err))
		}
	}

	m.persistQueue(ctx)
	m.publish()

	completed, failed := m.completed.Get(), m.failed.Get()
	m.logger.Info("Download queue finished",
		zap.Int("completed", completed),
		zap.Int("failed", failed))
	if m.deps.Notifier != nil {
		m.deps.Notifier.NotifyQueueFinished(completed, failed)
	}
}

// updateEntry stores download in the queue entry with the same chapter
func (m *DownloadManager) updateEntry(download domain.Download) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index := m.indexOf(download.ChapterID); index >= 0 {
		m.queue[index].Set(download)
	}
}

func (m *DownloadManager) removeWhere(match func(domain.Download) bool) []domain.Download {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []domain.Download
	kept := m.queue[:0]
	for _, state := range m.queue {
		snapshot := state.Snapshot()
		if match(snapshot) {
			removed = append(removed, snapshot)
			continue
		}
		kept = append(kept, state)
	}
	m.queue = kept
	return removed
}

// indexOf must be called with m.mu held
func (m *DownloadManager) indexOf(chapterID int64) int {
	for i, state := range m.queue {
		if state.ChapterID() == chapterID {
			return i
		}
	}
	return -1
}

// snapshotLocked must be called with m.mu held
func (m *DownloadManager) snapshotLocked() []domain.Download {
	snapshot := make([]domain.Download, len(m.queue))
	for i, state := range m.queue {
		snapshot[i] = state.Snapshot()
	}
	return snapshot
}

// persistQueue writes the full queue. Failures are logged, the in-memory
// queue stays authoritative.
func (m *DownloadManager) persistQueue(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	items := make([]domain.DownloadQueueItem, len(m.queue))
	for i, state := range m.queue {
		items[i] = domain.QueueItemFromDownload(state.Snapshot(), i)
	}
	m.mu.Unlock()

	if err := m.deps.Store.SaveQueue(ctx, items); err != nil {
		m.logger.Error("Failed to persist download queue", zap.Error(err))
	}
}

// publish sets the snapshot while m.mu is held so that concurrent
// publishers cannot overwrite a newer queue with an older one
func (m *DownloadManager) publish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueValue.Set(m.snapshotLocked())
}
