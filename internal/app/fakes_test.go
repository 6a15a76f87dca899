package app

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// fakeLibrary backs the chapter and book repositories
type fakeLibrary struct {
	mu       sync.Mutex
	books    map[int64]*domain.Book
	chapters map[int64]*domain.Chapter
	updates  []domain.Chapter
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		books:    make(map[int64]*domain.Book),
		chapters: make(map[int64]*domain.Chapter),
	}
}

func (l *fakeLibrary) addBook(id, sourceID int64, title string) *domain.Book {
	l.mu.Lock()
	defer l.mu.Unlock()
	book := &domain.Book{ID: id, SourceID: sourceID, Title: title}
	l.books[id] = book
	return book
}

func (l *fakeLibrary) addChapter(id, bookID int64, name, content string) *domain.Chapter {
	l.mu.Lock()
	defer l.mu.Unlock()
	chapter := &domain.Chapter{ID: id, BookID: bookID, Key: "/c/" + name, Name: name, SourceOrder: int(id), Content: content}
	l.chapters[id] = chapter
	return chapter
}

func (l *fakeLibrary) chapter(id int64) domain.Chapter {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.chapters[id]
}

func (l *fakeLibrary) updateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}

type fakeChapterRepo struct{ lib *fakeLibrary }

func (r fakeChapterRepo) FindByID(ctx context.Context, id int64) (*domain.Chapter, error) {
	r.lib.mu.Lock()
	defer r.lib.mu.Unlock()
	chapter, ok := r.lib.chapters[id]
	if !ok {
		return nil, domain.ErrChapterNotFound
	}
	c := *chapter
	return &c, nil
}

func (r fakeChapterRepo) FindByBookID(ctx context.Context, bookID int64) ([]*domain.Chapter, error) {
	r.lib.mu.Lock()
	defer r.lib.mu.Unlock()
	var chapters []*domain.Chapter
	for id := int64(0); id < 1000; id++ {
		if chapter, ok := r.lib.chapters[id]; ok && chapter.BookID == bookID {
			c := *chapter
			chapters = append(chapters, &c)
		}
	}
	return chapters, nil
}

func (r fakeChapterRepo) UpdateContent(ctx context.Context, chapterID int64, content string) error {
	r.lib.mu.Lock()
	defer r.lib.mu.Unlock()
	chapter, ok := r.lib.chapters[chapterID]
	if !ok {
		return domain.ErrChapterNotFound
	}
	chapter.Content = content
	r.lib.updates = append(r.lib.updates, *chapter)
	return nil
}

type fakeBookRepo struct{ lib *fakeLibrary }

func (r fakeBookRepo) FindByID(ctx context.Context, id int64) (*domain.Book, error) {
	r.lib.mu.Lock()
	defer r.lib.mu.Unlock()
	book, ok := r.lib.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	b := *book
	return &b, nil
}

func (r fakeBookRepo) FindAll(ctx context.Context) ([]*domain.Book, error) {
	r.lib.mu.Lock()
	defer r.lib.mu.Unlock()
	var books []*domain.Book
	for _, book := range r.lib.books {
		b := *book
		books = append(books, &b)
	}
	return books, nil
}

type fakeCatalogs struct{}

func (fakeCatalogs) FindBySourceID(sourceID int64) (*domain.Catalog, error) {
	if sourceID == 0 {
		return nil, domain.ErrSourceNotFound
	}
	return &domain.Catalog{SourceID: sourceID, Name: "source", BaseURL: "https://source.example"}, nil
}

// fakeFetcher records calls and the maximum number of concurrent fetches
type fakeFetcher struct {
	mu          sync.Mutex
	fetch       func(ctx context.Context, chapter *domain.Chapter, call int) (string, error)
	calls       []int64
	startedAt   []time.Time
	inFlight    int
	maxInFlight int
}

func (f *fakeFetcher) Fetch(ctx context.Context, chapter *domain.Chapter, catalog *domain.Catalog) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, chapter.ID)
	f.startedAt = append(f.startedAt, time.Now())
	call := len(f.calls)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.fetch == nil {
		return validContent(chapter.Name), nil
	}
	return f.fetch(ctx, chapter, call)
}

func (f *fakeFetcher) callIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func validContent(name string) string {
	return "Content of " + name + ". It is long enough to be accepted by the downloader."
}

// fakeProvider keeps content files in memory
type fakeProvider struct {
	mu        sync.Mutex
	files     map[string]string
	available uint64
	spaceErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{files: make(map[string]string), available: 10 << 30}
}

func (p *fakeProvider) setAvailable(bytes uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = bytes
}

func (p *fakeProvider) RootDir() string                        { return "/root" }
func (p *fakeProvider) SourceDir(sourceID int64) string         { return "/root/source" }
func (p *fakeProvider) BookDir(sourceID int64, title string) string { return "/root/" + title }
func (p *fakeProvider) ChapterDir(sourceID int64, title, name string) string {
	return "/root/" + title + "/" + name
}
func (p *fakeProvider) ChapterContentPath(sourceID int64, title, name string) string {
	return p.ChapterDir(sourceID, title, name) + "/content.txt"
}
func (p *fakeProvider) EnsureDir(path string) error { return nil }
func (p *fakeProvider) DirExists(path string) bool  { return true }

func (p *fakeProvider) ChapterContentExists(sourceID int64, title, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.files[p.ChapterContentPath(sourceID, title, name)]
	return ok
}

func (p *fakeProvider) WriteChapterContent(sourceID int64, title, name, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[p.ChapterContentPath(sourceID, title, name)] = content
	return nil
}

func (p *fakeProvider) DeleteChapter(sourceID int64, title, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.files, p.ChapterContentPath(sourceID, title, name))
	return nil
}

func (p *fakeProvider) DeleteBook(sourceID int64, title string) error { return nil }

func (p *fakeProvider) AvailableSpace() (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available, p.spaceErr
}

type fakeCache struct {
	mu          sync.Mutex
	downloaded  map[int64]map[int64]struct{}
	initialized bool
	refreshes   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{downloaded: make(map[int64]map[int64]struct{})}
}

func (c *fakeCache) IsChapterDownloaded(bookID, chapterID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.downloaded[bookID][chapterID]
	return ok
}

func (c *fakeCache) DownloadedChapterIDs(bookID int64) map[int64]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make(map[int64]struct{})
	for id := range c.downloaded[bookID] {
		ids[id] = struct{}{}
	}
	return ids
}

func (c *fakeCache) AddDownloadedChapter(bookID, chapterID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.downloaded[bookID] == nil {
		c.downloaded[bookID] = make(map[int64]struct{})
	}
	c.downloaded[bookID][chapterID] = struct{}{}
}

func (c *fakeCache) RemoveDownloadedChapter(bookID, chapterID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.downloaded[bookID], chapterID)
}

func (c *fakeCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloaded = make(map[int64]map[int64]struct{})
	c.initialized = false
}

func (c *fakeCache) InvalidateBook(bookID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.downloaded, bookID)
}

func (c *fakeCache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	c.refreshes++
	return nil
}

func (c *fakeCache) IsInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized
}

func (c *fakeCache) DownloadedCount(bookID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.downloaded[bookID])
}

func (c *fakeCache) TotalCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, ids := range c.downloaded {
		total += len(ids)
	}
	return total
}

type fakeNetwork struct {
	mu         sync.Mutex
	connection domain.ConnectionType
}

func (n *fakeNetwork) set(connection domain.ConnectionType) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connection = connection
}

func (n *fakeNetwork) ConnectionType() domain.ConnectionType {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connection
}

func (n *fakeNetwork) ShouldAllowDownload(wifiOnly bool) bool {
	return domain.ShouldAllowDownload(n.ConnectionType(), wifiOnly)
}

// fakeStore keeps the last saved snapshot
type fakeStore struct {
	mu    sync.Mutex
	items []domain.DownloadQueueItem
	saves int
}

func (s *fakeStore) SaveQueue(ctx context.Context, items []domain.DownloadQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]domain.DownloadQueueItem(nil), items...)
	s.saves++
	return nil
}

func (s *fakeStore) RestoreQueue(ctx context.Context) []domain.DownloadQueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DownloadQueueItem{}, s.items...)
}

func (s *fakeStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	return nil
}

func (s *fakeStore) HasPersistedQueue(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) > 0
}

func (s *fakeStore) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var statuses []string
	for _, item := range s.items {
		statuses = append(statuses, item.Status)
	}
	return statuses
}

type fakeSaved struct {
	mu      sync.Mutex
	records map[int64]*domain.SavedDownload
}

func newFakeSaved() *fakeSaved {
	return &fakeSaved{records: make(map[int64]*domain.SavedDownload)}
}

func (s *fakeSaved) InsertAll(ctx context.Context, downloads []*domain.SavedDownload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range downloads {
		s.records[d.ChapterID] = d
	}
	return nil
}

func (s *fakeSaved) Delete(ctx context.Context, chapterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, chapterID)
	return nil
}

func (s *fakeSaved) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[int64]*domain.SavedDownload)
	return nil
}

func (s *fakeSaved) FindAll(ctx context.Context) ([]*domain.SavedDownload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*domain.SavedDownload
	for _, d := range s.records {
		all = append(all, d)
	}
	return all, nil
}

func (s *fakeSaved) has(chapterID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[chapterID]
	return ok
}

type fakeNotifier struct {
	mu       sync.Mutex
	queued   []int
	failed   []string
	finished int
}

func (n *fakeNotifier) NotifyChaptersQueued(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.queued = append(n.queued, count)
}

func (n *fakeNotifier) NotifyChapterFailed(chapterName, bookTitle, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, message)
}

func (n *fakeNotifier) NotifyQueueFinished(completed, failed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finished++
}

func (n *fakeNotifier) finishedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finished
}

// recorder collects engine callbacks
type recorder struct {
	mu        sync.Mutex
	progress  []domain.Download
	errors    []string
	errored   []domain.Download
	completed int
}

func (r *recorder) callbacks() domain.DownloadCallbacks {
	return domain.DownloadCallbacks{
		OnProgress: func(d domain.Download) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.progress = append(r.progress, d)
		},
		OnComplete: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.completed++
		},
		OnError: func(d domain.Download, message string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errored = append(r.errored, d)
			r.errors = append(r.errors, message)
		},
	}
}

func (r *recorder) completions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed
}

func (r *recorder) errorMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recorder) progressFor(chapterID int64) []domain.Download {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Download
	for _, d := range r.progress {
		if d.ChapterID == chapterID {
			out = append(out, d)
		}
	}
	return out
}
