package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

const waitTimeout = 2 * time.Second

type engineFixture struct {
	lib      *fakeLibrary
	fetcher  *fakeFetcher
	provider *fakeProvider
	cache    *fakeCache
	network  *fakeNetwork
	prefs    *Preferences
	engine   *Downloader

	backoffMu sync.Mutex
	backoffs  []int
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		lib:      newFakeLibrary(),
		fetcher:  &fakeFetcher{},
		provider: newFakeProvider(),
		cache:    newFakeCache(),
		network:  &fakeNetwork{connection: domain.ConnectionWifi},
		prefs: NewPreferences(domain.DownloadSettings{
			MinDiskSpaceMB: 100,
			MaxRetries:     3,
			AutoRetry:      true,
		}),
	}
	f.engine = NewDownloader(DownloaderDeps{
		Chapters:    fakeChapterRepo{f.lib},
		Books:       fakeBookRepo{f.lib},
		Catalogs:    fakeCatalogs{},
		Fetcher:     f.fetcher,
		Provider:    f.provider,
		Cache:       f.cache,
		Network:     f.network,
		Preferences: f.prefs,
	}, zap.NewNop())
	f.engine.pausePoll = 5 * time.Millisecond
	f.engine.networkPoll = 5 * time.Millisecond
	f.engine.backoff = func(attempt int) time.Duration {
		f.backoffMu.Lock()
		defer f.backoffMu.Unlock()
		f.backoffs = append(f.backoffs, attempt)
		return time.Millisecond
	}
	t.Cleanup(f.engine.Stop)
	return f
}

// queue creates n chapters of one book with IDs 1..n and returns their states
func (f *engineFixture) queue(n int) []*domain.DownloadState {
	book := f.lib.addBook(1, 5, "Book")
	states := make([]*domain.DownloadState, 0, n)
	for i := 1; i <= n; i++ {
		chapter := f.lib.addChapter(int64(i), book.ID, "Chapter "+string(rune('A'+i-1)), "")
		states = append(states, domain.NewDownloadState(*domain.NewDownload(chapter, book)))
	}
	return states
}

func (f *engineFixture) backoffAttempts() []int {
	f.backoffMu.Lock()
	defer f.backoffMu.Unlock()
	return append([]int(nil), f.backoffs...)
}

func TestBackoffDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, BackoffDelay(1))
	assert.Equal(t, 4*time.Second, BackoffDelay(2))
	assert.Equal(t, 8*time.Second, BackoffDelay(3))
	assert.Positive(t, BackoffDelay(domain.MaxRetriesLimit))
}

func TestDownloader_ProcessesQueueSequentially(t *testing.T) {
	f := newEngineFixture(t)
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return validContent(chapter.Name), nil
	}
	states := f.queue(3)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))

	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []int64{1, 2, 3}, f.fetcher.callIDs())
	assert.Equal(t, 1, f.fetcher.maxInFlight)
	assert.False(t, f.engine.IsRunning())
	assert.Nil(t, f.engine.CurrentDownload().Get())

	for _, state := range states {
		d := state.Snapshot()
		assert.Equal(t, domain.StatusDownloaded, d.Status)
		assert.Equal(t, 100, d.Progress)
		assert.True(t, f.cache.IsChapterDownloaded(1, d.ChapterID))
		assert.True(t, f.provider.ChapterContentExists(5, "Book", d.ChapterName))
		assert.Equal(t, validContent(d.ChapterName), f.lib.chapter(d.ChapterID).Content)
	}
	assert.Empty(t, rec.errorMessages())
}

func TestDownloader_StartWhileRunningIsRejected(t *testing.T) {
	f := newEngineFixture(t)
	release := make(chan struct{})
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		<-release
		return validContent(chapter.Name), nil
	}
	states := f.queue(1)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	assert.False(t, f.engine.Start(states, rec.callbacks()))
	close(release)

	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 1, f.fetcher.callCount())
}

func TestDownloader_RetriesThenSucceeds(t *testing.T) {
	f := newEngineFixture(t)
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		if call <= 2 {
			return "", &domain.FetchError{StatusCode: 503}
		}
		return validContent(chapter.Name), nil
	}
	states := f.queue(1)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, 3, f.fetcher.callCount())
	assert.Equal(t, []int{1, 2}, f.backoffAttempts())

	var retryCounts []int
	for _, d := range rec.progressFor(1) {
		if d.Status == domain.StatusDownloading {
			retryCounts = append(retryCounts, d.RetryCount)
		}
	}
	assert.Equal(t, []int{0, 1, 2}, retryCounts)

	final := states[0].Snapshot()
	assert.Equal(t, domain.StatusDownloaded, final.Status)
	assert.Equal(t, 2, final.RetryCount)
	assert.Nil(t, final.ErrorMessage)
	assert.Empty(t, rec.errorMessages())
}

func TestDownloader_ExhaustedRetriesReportError(t *testing.T) {
	f := newEngineFixture(t)
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		return "", &domain.FetchError{StatusCode: 404}
	}
	states := f.queue(2)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, 6, f.fetcher.callCount())
	assert.Equal(t, []string{"Chapter not found", "Chapter not found"}, rec.errorMessages())

	for _, state := range states {
		d := state.Snapshot()
		assert.Equal(t, domain.StatusError, d.Status)
		assert.Equal(t, 3, d.RetryCount)
		assert.Equal(t, "Chapter not found", d.ErrorText())
		assert.False(t, f.cache.IsChapterDownloaded(1, d.ChapterID))
	}
}

func TestDownloader_NoRetryWhenAutoRetryDisabled(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.prefs.SetDownloadSettings(domain.DownloadSettings{MaxRetries: 3, AutoRetry: false}))
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		return "", &domain.FetchError{StatusCode: 429}
	}
	states := f.queue(1)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, 1, f.fetcher.callCount())
	assert.Empty(t, f.backoffAttempts())
	assert.Equal(t, []string{"Too many requests"}, rec.errorMessages())
	assert.Equal(t, 1, states[0].Snapshot().RetryCount)
}

func TestDownloader_ExistingContentSkipsFetch(t *testing.T) {
	f := newEngineFixture(t)
	book := f.lib.addBook(1, 5, "Book")
	chapter := f.lib.addChapter(1, 1, "Stored", strings.Repeat("x", domain.MinContentLength))
	states := []*domain.DownloadState{domain.NewDownloadState(*domain.NewDownload(chapter, book))}
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, 0, f.fetcher.callCount())
	assert.Equal(t, 0, f.lib.updateCount())
	assert.Equal(t, domain.StatusDownloaded, states[0].Snapshot().Status)
	assert.True(t, f.cache.IsChapterDownloaded(1, 1))
	assert.True(t, f.provider.ChapterContentExists(5, "Book", "Stored"))
}

func TestDownloader_ShortContentIsFailure(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.prefs.SetDownloadSettings(domain.DownloadSettings{MaxRetries: 1, AutoRetry: true}))
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		return strings.Repeat("x", domain.MinContentLength-1), nil
	}
	states := f.queue(1)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, []string{"Chapter content not available"}, rec.errorMessages())
	assert.Equal(t, 0, f.lib.updateCount())
	assert.False(t, f.provider.ChapterContentExists(5, "Book", states[0].Snapshot().ChapterName))
}

func TestDownloader_EmptyContentIsFailure(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.prefs.SetDownloadSettings(domain.DownloadSettings{MaxRetries: 1, AutoRetry: true}))
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		return "   \n ", nil
	}
	states := f.queue(1)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, []string{"Chapter content not available"}, rec.errorMessages())
}

func TestDownloader_PreservesIdentity(t *testing.T) {
	f := newEngineFixture(t)
	states := f.queue(1)
	before := states[0].Snapshot()
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	after := states[0].Snapshot()
	assert.Equal(t, before.ChapterID, after.ChapterID)
	assert.Equal(t, before.BookID, after.BookID)
	assert.Equal(t, before.SourceID, after.SourceID)
	assert.Equal(t, before.ChapterName, after.ChapterName)
	assert.Equal(t, before.BookTitle, after.BookTitle)

	stored := f.lib.chapter(before.ChapterID)
	assert.Equal(t, "/c/"+before.ChapterName, stored.Key)
	assert.Equal(t, before.ChapterName, stored.Name)
}

func TestDownloader_KeepsChapterChangesMadeDuringFetch(t *testing.T) {
	f := newEngineFixture(t)
	states := f.queue(1)
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		f.lib.mu.Lock()
		stored := f.lib.chapters[chapter.ID]
		stored.Name = "Renamed by import"
		stored.Key = "/c/renamed"
		stored.Bookmark = true
		f.lib.mu.Unlock()
		return validContent("fetched"), nil
	}
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	stored := f.lib.chapter(1)
	assert.Equal(t, "Renamed by import", stored.Name)
	assert.Equal(t, "/c/renamed", stored.Key)
	assert.True(t, stored.Bookmark)
	assert.Equal(t, validContent("fetched"), stored.Content)
	assert.True(t, f.provider.ChapterContentExists(5, "Book", "Renamed by import"))
	assert.False(t, f.provider.ChapterContentExists(5, "Book", "Chapter A"))
}

func TestDownloader_WaitsForWifi(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.prefs.SetDownloadSettings(domain.DownloadSettings{WifiOnly: true, MaxRetries: 3, AutoRetry: true}))
	f.network.set(domain.ConnectionMobile)
	states := f.queue(3)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))

	require.Eventually(t, func() bool { return f.engine.PausedDueToNetwork().Get() }, waitTimeout, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, f.fetcher.callCount())
	assert.Empty(t, rec.progressFor(1))
	for _, state := range states {
		assert.Equal(t, domain.StatusQueue, state.Snapshot().Status)
	}

	f.network.set(domain.ConnectionWifi)

	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.False(t, f.engine.PausedDueToNetwork().Get())
	assert.Equal(t, []int64{1, 2, 3}, f.fetcher.callIDs())
	for _, state := range states {
		assert.Equal(t, domain.StatusDownloaded, state.Snapshot().Status)
	}
}

func TestDownloader_NoConnectionBlocksEvenWithoutWifiOnly(t *testing.T) {
	f := newEngineFixture(t)
	f.network.set(domain.ConnectionNone)
	states := f.queue(1)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return f.engine.PausedDueToNetwork().Get() }, waitTimeout, 5*time.Millisecond)

	f.network.set(domain.ConnectionMobile)
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)
}

func TestDownloader_LowDiskSpaceSkipsChapters(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.setAvailable(10 * 1024 * 1024)
	states := f.queue(2)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, []string{"Not enough disk space", "Not enough disk space"}, rec.errorMessages())
	assert.Equal(t, 0, f.fetcher.callCount())
	assert.True(t, f.engine.PausedDueToDiskSpace().Get())
	for _, state := range states {
		assert.Equal(t, domain.StatusQueue, state.Snapshot().Status)
	}
}

func TestDownloader_DiskSpaceRecoveryClearsFlag(t *testing.T) {
	f := newEngineFixture(t)
	f.provider.setAvailable(10 * 1024 * 1024)
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		return validContent(chapter.Name), nil
	}
	states := f.queue(2)
	rec := &recorder{}
	callbacks := rec.callbacks()
	onError := callbacks.OnError
	callbacks.OnError = func(d domain.Download, message string) {
		onError(d, message)
		f.provider.setAvailable(10 << 30)
	}

	require.True(t, f.engine.Start(states, callbacks))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, []string{"Not enough disk space"}, rec.errorMessages())
	assert.Equal(t, []int64{2}, f.fetcher.callIDs())
	assert.False(t, f.engine.PausedDueToDiskSpace().Get())
}

func TestDownloader_StopSuppressesCompletion(t *testing.T) {
	f := newEngineFixture(t)
	started := make(chan struct{}, 1)
	f.fetcher.fetch = func(ctx context.Context, chapter *domain.Chapter, call int) (string, error) {
		started <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}
	states := f.queue(2)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	<-started

	f.engine.Stop()

	assert.False(t, f.engine.IsRunning())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, rec.completions())
	assert.Empty(t, rec.errorMessages())
	assert.Equal(t, 1, f.fetcher.callCount())

	// A new run can start after a stop
	f.fetcher.fetch = nil
	rec2 := &recorder{}
	require.True(t, f.engine.Start(states, rec2.callbacks()))
	require.Eventually(t, func() bool { return rec2.completions() == 1 }, waitTimeout, 5*time.Millisecond)
}

func TestDownloader_StaleRunCannotReportAfterStop(t *testing.T) {
	f := newEngineFixture(t)
	states := f.queue(1)

	f.engine.mu.Lock()
	gen := f.engine.generation
	f.engine.mu.Unlock()
	f.engine.Stop()

	emitted := false
	_, ok := f.engine.report(gen, states[0],
		func(dl *domain.Download) { dl.MarkDownloading(1) },
		func(domain.Download) { emitted = true })

	assert.False(t, ok)
	assert.False(t, emitted)
	assert.Equal(t, domain.StatusQueue, states[0].Snapshot().Status)
}

func TestDownloader_StopWaitsForInFlightReport(t *testing.T) {
	f := newEngineFixture(t)
	states := f.queue(1)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	callbacks := domain.DownloadCallbacks{
		OnProgress: func(d domain.Download) {
			once.Do(func() {
				close(entered)
				<-release
			})
		},
	}

	require.True(t, f.engine.Start(states, callbacks))
	<-entered

	stopped := make(chan struct{})
	go func() {
		f.engine.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a report was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return")
	}

	// The DOWNLOADING report landed before Stop, so a reset afterwards is final
	states[0].Update(func(d *domain.Download) { d.ResetToQueue() })
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, domain.StatusQueue, states[0].Snapshot().Status)
}

func TestDownloader_PauseAndResume(t *testing.T) {
	f := newEngineFixture(t)
	states := f.queue(2)
	rec := &recorder{}

	f.engine.Pause()
	require.True(t, f.engine.Start(states, rec.callbacks()))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, f.fetcher.callCount())
	assert.True(t, f.engine.IsRunning())
	assert.True(t, f.engine.IsPaused())

	f.engine.Resume()

	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 2, f.fetcher.callCount())
}

func TestDownloader_ResumeClearsAllPauseFlags(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Pause()
	f.engine.PausedDueToNetwork().Set(true)
	f.engine.PausedDueToDiskSpace().Set(true)

	f.engine.Resume()

	assert.False(t, f.engine.IsPaused())
	assert.False(t, f.engine.PausedDueToNetwork().Get())
	assert.False(t, f.engine.PausedDueToDiskSpace().Get())
}

func TestDownloader_RateLimitBetweenChapters(t *testing.T) {
	f := newEngineFixture(t)
	delay := 40 * time.Millisecond
	require.NoError(t, f.prefs.SetDownloadSettings(domain.DownloadSettings{Delay: delay, MaxRetries: 1, AutoRetry: true}))
	states := f.queue(3)
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	f.fetcher.mu.Lock()
	defer f.fetcher.mu.Unlock()
	require.Len(t, f.fetcher.startedAt, 3)
	for i := 1; i < len(f.fetcher.startedAt); i++ {
		assert.GreaterOrEqual(t, f.fetcher.startedAt[i].Sub(f.fetcher.startedAt[i-1]), delay)
	}
}

func TestDownloader_MissingChapterFails(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.prefs.SetDownloadSettings(domain.DownloadSettings{MaxRetries: 1, AutoRetry: true}))
	book := f.lib.addBook(1, 5, "Book")
	ghost := &domain.Chapter{ID: 42, BookID: 1, Name: "Ghost"}
	states := []*domain.DownloadState{domain.NewDownloadState(*domain.NewDownload(ghost, book))}
	rec := &recorder{}

	require.True(t, f.engine.Start(states, rec.callbacks()))
	require.Eventually(t, func() bool { return rec.completions() == 1 }, waitTimeout, 5*time.Millisecond)

	messages := rec.errorMessages()
	require.Len(t, messages, 1)
	assert.True(t, strings.HasPrefix(messages[0], "Download failed: "))
	assert.Equal(t, 0, f.fetcher.callCount())
}
