package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/pkg/observable"
)

const (
	pausePollInterval   = 500 * time.Millisecond
	networkPollInterval = time.Second

	notEnoughDiskSpace = "Not enough disk space"
)

// BackoffDelay returns the wait before the attempt following a failed one:
// 2s, 4s, 8s...
func BackoffDelay(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// DownloaderDeps are the collaborators of the download engine
type DownloaderDeps struct {
	Chapters    domain.ChapterRepository
	Books       domain.BookRepository
	Catalogs    domain.CatalogStore
	Fetcher     domain.RemoteFetcher
	Provider    domain.DownloadProvider
	Cache       domain.DownloadCache
	Network     domain.NetworkStateProvider
	Preferences domain.PreferencesProvider
}

// Downloader fetches chapters one at a time from a captured queue snapshot
type Downloader struct {
	deps   DownloaderDeps
	logger *zap.Logger

	running       *observable.Value[bool]
	paused        *observable.Value[bool]
	pausedNetwork *observable.Value[bool]
	pausedDisk    *observable.Value[bool]
	current       *observable.Value[*domain.Download]

	// reportMu serializes state reports with Stop. Lock order is reportMu
	// before mu.
	reportMu sync.Mutex

	mu             sync.Mutex
	cancel         context.CancelFunc
	generation     uint64
	lastCompletion time.Time

	pausePoll   time.Duration
	networkPoll time.Duration
	backoff     func(attempt int) time.Duration
}

// NewDownloader creates an idle download engine
func NewDownloader(deps DownloaderDeps, logger *zap.Logger) *Downloader {
	return &Downloader{
		deps:          deps,
		logger:        logger,
		running:       observable.NewValue(false),
		paused:        observable.NewValue(false),
		pausedNetwork: observable.NewValue(false),
		pausedDisk:    observable.NewValue(false),
		current:       observable.NewValue[*domain.Download](nil),
		pausePoll:     pausePollInterval,
		networkPoll:   networkPollInterval,
		backoff:       BackoffDelay,
	}
}

// Running is true while a run is in progress
func (d *Downloader) Running() *observable.Value[bool] { return d.running }

// Paused is the user pause flag
func (d *Downloader) Paused() *observable.Value[bool] { return d.paused }

// PausedDueToNetwork is set while the engine waits for an allowed connection
func (d *Downloader) PausedDueToNetwork() *observable.Value[bool] { return d.pausedNetwork }

// PausedDueToDiskSpace is set after a chapter was skipped for lack of space
func (d *Downloader) PausedDueToDiskSpace() *observable.Value[bool] { return d.pausedDisk }

// CurrentDownload is the chapter being processed, nil between chapters
func (d *Downloader) CurrentDownload() *observable.Value[*domain.Download] { return d.current }

func (d *Downloader) IsRunning() bool { return d.running.Get() }
func (d *Downloader) IsPaused() bool  { return d.paused.Get() }

// Start launches a run over queue. It returns false when a run is already in
// progress. The order of queue is the order of processing.
func (d *Downloader) Start(queue []*domain.DownloadState, callbacks domain.DownloadCallbacks) bool {
	d.mu.Lock()
	if d.running.Get() {
		d.mu.Unlock()
		d.logger.Debug("Downloader already running, start ignored")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.generation++
	gen := d.generation
	d.running.Set(true)
	d.mu.Unlock()

	settings := d.settings()
	d.logger.Info("Download run started",
		zap.Int("chapters", len(queue)),
		zap.Duration("delay", settings.Delay),
		zap.Bool("wifi_only", settings.WifiOnly),
		zap.Int("attempts", settings.Attempts()))

	go d.run(ctx, gen, queue, settings, callbacks)
	return true
}

// Pause sets the user pause flag. The current chapter finishes first.
func (d *Downloader) Pause() {
	d.paused.Set(true)
	d.logger.Info("Downloads paused")
}

// Resume clears the user, network and disk pause flags
func (d *Downloader) Resume() {
	d.paused.Set(false)
	d.pausedNetwork.Set(false)
	d.pausedDisk.Set(false)
	d.logger.Info("Downloads resumed")
}

// Stop cancels the active run. OnComplete is not invoked for a stopped run.
func (d *Downloader) Stop() {
	d.reportMu.Lock()
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	// Invalidate the run so its cleanup leaves the new state alone
	d.generation++
	d.lastCompletion = time.Time{}
	d.running.Set(false)
	d.mu.Unlock()
	d.reportMu.Unlock()

	d.paused.Set(false)
	d.pausedNetwork.Set(false)
	d.pausedDisk.Set(false)
	d.current.Set(nil)
	d.logger.Info("Downloads stopped")
}

func (d *Downloader) settings() domain.DownloadSettings {
	if d.deps.Preferences == nil {
		return domain.DefaultDownloadSettings()
	}
	return d.deps.Preferences.DownloadSettings()
}

func (d *Downloader) run(
	ctx context.Context,
	gen uint64,
	queue []*domain.DownloadState,
	settings domain.DownloadSettings,
	callbacks domain.DownloadCallbacks,
) {
	for _, state := range queue {
		if ctx.Err() != nil {
			break
		}
		if !d.waitWhilePaused(ctx) {
			break
		}
		if !d.waitForNetwork(ctx, settings.WifiOnly) {
			break
		}
		if !d.hasEnoughSpace(settings) {
			d.report(gen, state, nil, func(snapshot domain.Download) {
				d.logger.Warn("Skipping chapter, not enough disk space",
					zap.Int64("chapter_id", snapshot.ChapterID),
					zap.Uint64("min_disk_space_mb", settings.MinDiskSpaceMB))
				callbacks.Error(snapshot, notEnoughDiskSpace)
			})
			continue
		}
		if !d.waitForRateLimit(ctx, settings.Delay) {
			break
		}

		snapshot := state.Snapshot()
		d.current.Set(&snapshot)
		d.downloadWithRetry(ctx, gen, state, settings, callbacks)

		d.mu.Lock()
		if d.generation == gen {
			d.lastCompletion = time.Now()
		}
		d.mu.Unlock()
	}

	completed := ctx.Err() == nil
	if !d.finish(gen) {
		return
	}
	if completed {
		d.logger.Info("Download run finished", zap.Int("chapters", len(queue)))
		callbacks.Complete()
	}
}

// report applies update to state and passes the result to emit while gen is
// the active run. A run superseded by Stop leaves the state untouched, so a
// late report cannot undo the caller's reset of interrupted entries.
func (d *Downloader) report(
	gen uint64,
	state *domain.DownloadState,
	update func(dl *domain.Download),
	emit func(snapshot domain.Download),
) (domain.Download, bool) {
	d.reportMu.Lock()
	defer d.reportMu.Unlock()

	d.mu.Lock()
	active := d.generation == gen
	d.mu.Unlock()
	if !active {
		return domain.Download{}, false
	}

	var snapshot domain.Download
	if update != nil {
		snapshot = state.Update(update)
	} else {
		snapshot = state.Snapshot()
	}
	emit(snapshot)
	return snapshot, true
}

// finish resets the engine state if gen is still the active run
func (d *Downloader) finish(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.generation != gen {
		return false
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.running.Set(false)
	d.pausedNetwork.Set(false)
	d.current.Set(nil)
	return true
}

func (d *Downloader) waitWhilePaused(ctx context.Context) bool {
	for d.paused.Get() {
		if !sleepContext(ctx, d.pausePoll) {
			return false
		}
	}
	return true
}

func (d *Downloader) waitForNetwork(ctx context.Context, wifiOnly bool) bool {
	if d.deps.Network == nil || d.deps.Network.ShouldAllowDownload(wifiOnly) {
		return true
	}

	d.pausedNetwork.Set(true)
	d.logger.Info("Waiting for network",
		zap.Bool("wifi_only", wifiOnly),
		zap.Stringer("connection", d.deps.Network.ConnectionType()))

	for !d.deps.Network.ShouldAllowDownload(wifiOnly) {
		if !sleepContext(ctx, d.networkPoll) {
			return false
		}
	}

	d.pausedNetwork.Set(false)
	d.logger.Info("Network available, continuing",
		zap.Stringer("connection", d.deps.Network.ConnectionType()))
	return true
}

func (d *Downloader) hasEnoughSpace(settings domain.DownloadSettings) bool {
	available, err := d.deps.Provider.AvailableSpace()
	if err != nil {
		d.logger.Warn("Failed to query free disk space", zap.Error(err))
		return true
	}

	if available < settings.MinDiskSpaceBytes() {
		d.pausedDisk.Set(true)
		d.logger.Warn("Low disk space",
			zap.String("available", humanize.IBytes(available)),
			zap.String("required", humanize.IBytes(settings.MinDiskSpaceBytes())))
		return false
	}

	d.pausedDisk.Set(false)
	return true
}

func (d *Downloader) waitForRateLimit(ctx context.Context, delay time.Duration) bool {
	d.mu.Lock()
	last := d.lastCompletion
	d.mu.Unlock()

	if last.IsZero() || delay <= 0 {
		return true
	}
	wait := delay - time.Since(last)
	if wait <= 0 {
		return true
	}
	return sleepContext(ctx, wait)
}

func (d *Downloader) downloadWithRetry(
	ctx context.Context,
	gen uint64,
	state *domain.DownloadState,
	settings domain.DownloadSettings,
	callbacks domain.DownloadCallbacks,
) {
	attempts := settings.Attempts()
	var lastMessage string

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}

		snapshot, ok := d.report(gen, state,
			func(dl *domain.Download) { dl.MarkDownloading(attempt) },
			func(snapshot domain.Download) {
				d.current.Set(&snapshot)
				callbacks.Progress(snapshot)
			})
		if !ok {
			return
		}

		d.logger.Debug("Fetching chapter",
			zap.Int64("chapter_id", snapshot.ChapterID),
			zap.String("chapter", snapshot.ChapterName),
			zap.Int("attempt", attempt))

		err := d.fetchChapter(ctx, snapshot)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			d.deps.Cache.AddDownloadedChapter(snapshot.BookID, snapshot.ChapterID)
			snapshot, ok = d.report(gen, state,
				func(dl *domain.Download) { dl.MarkDownloaded() },
				func(snapshot domain.Download) {
					d.current.Set(&snapshot)
					callbacks.Progress(snapshot)
				})
			if !ok {
				return
			}

			d.logger.Info("Chapter downloaded",
				zap.Int64("chapter_id", snapshot.ChapterID),
				zap.String("book", snapshot.BookTitle),
				zap.String("chapter", snapshot.ChapterName),
				zap.Int("attempt", attempt))
			return
		}

		lastMessage = domain.UserFriendlyMessage(err)
		d.logger.Warn("Chapter fetch attempt failed",
			zap.Int64("chapter_id", snapshot.ChapterID),
			zap.Int("attempt", attempt),
			zap.Int("attempts", attempts),
			zap.String("message", lastMessage),
			zap.Error(err))

		if attempt < attempts {
			if !sleepContext(ctx, d.backoff(attempt)) {
				return
			}
		}
	}

	d.report(gen, state,
		func(dl *domain.Download) { dl.MarkFailed(lastMessage, attempts) },
		func(snapshot domain.Download) {
			d.logger.Error("Chapter download failed",
				zap.Int64("chapter_id", snapshot.ChapterID),
				zap.String("chapter", snapshot.ChapterName),
				zap.String("message", lastMessage))
			callbacks.Error(snapshot, lastMessage)
		})
}

// fetchChapter resolves the chapter, fetches its content when missing and
// persists it. Error texts must not carry IDs, they are classified by content.
func (d *Downloader) fetchChapter(ctx context.Context, download domain.Download) error {
	chapter, err := d.deps.Chapters.FindByID(ctx, download.ChapterID)
	if err != nil {
		return fmt.Errorf("load chapter: %w", err)
	}
	book, err := d.deps.Books.FindByID(ctx, download.BookID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}

	if chapter.HasContent() {
		if !d.deps.Provider.ChapterContentExists(book.SourceID, book.Title, chapter.Name) {
			if err := d.deps.Provider.WriteChapterContent(book.SourceID, book.Title, chapter.Name, chapter.Content); err != nil {
				d.logger.Warn("Failed to mirror stored content", zap.Int64("chapter_id", chapter.ID), zap.Error(err))
			}
		}
		return nil
	}

	catalog, err := d.deps.Catalogs.FindBySourceID(book.SourceID)
	if err != nil {
		return fmt.Errorf("resolve source: %w", err)
	}

	content, err := d.deps.Fetcher.Fetch(ctx, chapter, catalog)
	if err != nil {
		return fmt.Errorf("fetch chapter: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return domain.ErrNoContent
	}
	if length := domain.ContentLength(content); length < domain.MinContentLength {
		return fmt.Errorf("%w (%d characters)", domain.ErrContentTooShort, length)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := d.deps.Chapters.UpdateContent(ctx, chapter.ID, content); err != nil {
		return fmt.Errorf("save chapter content: %w", err)
	}

	// The row may have been renamed while the fetch was in flight
	if current, err := d.deps.Chapters.FindByID(ctx, chapter.ID); err == nil {
		chapter = current
	}
	if current, err := d.deps.Books.FindByID(ctx, book.ID); err == nil {
		book = current
	}
	if err := d.deps.Provider.WriteChapterContent(book.SourceID, book.Title, chapter.Name, content); err != nil {
		return fmt.Errorf("write content file: %w", err)
	}
	return nil
}

// sleepContext waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
