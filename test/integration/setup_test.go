//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/api"
	"github.com/yourusername/chapterdl-go/internal/app"
	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/internal/infrastructure"
	"github.com/yourusername/chapterdl-go/pkg/logger"
)

const sourceID = 1

// staticNetwork reports a fixed connection type
type staticNetwork struct {
	mu sync.Mutex
	ct domain.ConnectionType
}

func (n *staticNetwork) ConnectionType() domain.ConnectionType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ct
}

func (n *staticNetwork) ShouldAllowDownload(wifiOnly bool) bool {
	return domain.ShouldAllowDownload(n.ConnectionType(), wifiOnly)
}

// chapterSource serves chapter text by key; unknown keys return 404
type chapterSource struct {
	mu       sync.Mutex
	chapters map[string]string
	hits     map[string]int
}

func newChapterSource() *chapterSource {
	return &chapterSource{chapters: map[string]string{}, hits: map[string]int{}}
}

func (s *chapterSource) set(key, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[key] = text
}

func (s *chapterSource) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

func (s *chapterSource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	key := strings.TrimPrefix(r.URL.Path, "/")
	s.hits[key]++
	text, ok := s.chapters[key]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

// stack is the server wiring over a temp dir, minus signal handling
type stack struct {
	dir        string
	repo       *infrastructure.SQLiteRepository
	provider   *infrastructure.FileDownloadProvider
	cache      *infrastructure.MemoryDownloadCache
	prefs      *app.Preferences
	downloader *app.Downloader
	manager    *app.DownloadManager
	queue      *app.QueueManager
	api        *httptest.Server
}

func newStack(t *testing.T, dir string, source *httptest.Server) *stack {
	t.Helper()
	log := zap.NewNop()

	repo, err := infrastructure.NewSQLiteRepository(filepath.Join(dir, "queue.db"))
	require.NoError(t, err)

	ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "info", LogsDir: filepath.Join(dir, "logs")})
	require.NoError(t, err)

	settings := domain.DefaultDownloadSettings()
	settings.Delay = 0
	settings.MinDiskSpaceMB = 1
	settings.MaxRetries = 1
	prefs := app.NewPreferences(settings)

	provider := infrastructure.NewFileDownloadProvider(filepath.Join(dir, "library"))
	cache := infrastructure.NewMemoryDownloadCache(repo.Books(), repo.Chapters(), provider, log)
	catalogs := infrastructure.NewConfigCatalogStore([]domain.Catalog{
		{SourceID: sourceID, Name: "Test Source", BaseURL: source.URL},
	})

	downloader := app.NewDownloader(app.DownloaderDeps{
		Chapters:    repo.Chapters(),
		Books:       repo.Books(),
		Catalogs:    catalogs,
		Fetcher:     infrastructure.NewHTTPContentFetcher(0),
		Provider:    provider,
		Cache:       cache,
		Network:     &staticNetwork{ct: domain.ConnectionWifi},
		Preferences: prefs,
	}, logger.ForCategory(log, ml, logger.CategoryDownload))

	manager := app.NewDownloadManager(app.DownloadManagerDeps{
		Downloader: downloader,
		Cache:      cache,
		Store:      infrastructure.NewSQLiteDownloadStore(repo, log),
		Saved:      repo,
		Provider:   provider,
		Chapters:   repo.Chapters(),
		Books:      repo.Books(),
		Notifier:   infrastructure.NewNotificationService(&domain.NotificationConfig{Enabled: false}, log),
	}, logger.ForCategory(log, ml, logger.CategoryQueue))
	require.NoError(t, manager.Init(context.Background()))

	queueCfg := domain.DefaultConfig().Queue
	queue := app.NewQueueManager(repo.Chapters(), repo.Books(), manager, &queueCfg, false, ml)

	router := api.SetupRouter(api.Services{
		Queue:    manager,
		Enqueuer: queue,
		Library:  repo,
		Settings: prefs,
		LogsDir:  ml.GetLogsDir(),
	}, log)

	s := &stack{
		dir:        dir,
		repo:       repo,
		provider:   provider,
		cache:      cache,
		prefs:      prefs,
		downloader: downloader,
		manager:    manager,
		queue:      queue,
		api:        httptest.NewServer(router),
	}
	t.Cleanup(func() { s.close() })
	return s
}

// close is idempotent so tests can restart a stack over the same dir
func (s *stack) close() {
	if s.api == nil {
		return
	}
	s.downloader.Stop()
	s.api.Close()
	s.repo.Close()
	s.api = nil
}
