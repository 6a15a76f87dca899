package domain

import "context"

// ChapterRepository provides access to stored chapters
type ChapterRepository interface {
	// FindByID returns the chapter or ErrChapterNotFound
	FindByID(ctx context.Context, id int64) (*Chapter, error)

	// FindByBookID returns all chapters of a book ordered by source order
	FindByBookID(ctx context.Context, bookID int64) ([]*Chapter, error)

	// UpdateContent replaces the content of a chapter and leaves every other
	// field untouched. Returns ErrChapterNotFound for an unknown ID.
	UpdateContent(ctx context.Context, chapterID int64, content string) error
}

// BookRepository provides access to stored books
type BookRepository interface {
	// FindByID returns the book or ErrBookNotFound
	FindByID(ctx context.Context, id int64) (*Book, error)

	// FindAll returns every book in the library
	FindAll(ctx context.Context) ([]*Book, error)
}

// CatalogStore resolves content sources
type CatalogStore interface {
	// FindBySourceID returns the catalog or ErrSourceNotFound
	FindBySourceID(sourceID int64) (*Catalog, error)
}

// SavedDownloadRepository persists the display records of queued chapters
type SavedDownloadRepository interface {
	InsertAll(ctx context.Context, downloads []*SavedDownload) error
	Delete(ctx context.Context, chapterID int64) error
	DeleteAll(ctx context.Context) error
	FindAll(ctx context.Context) ([]*SavedDownload, error)
}

// DownloadStore persists the download queue across restarts
type DownloadStore interface {
	// SaveQueue replaces the persisted queue with items
	SaveQueue(ctx context.Context, items []DownloadQueueItem) error

	// RestoreQueue returns the persisted queue in order. Missing or corrupted
	// data yields an empty list.
	RestoreQueue(ctx context.Context) []DownloadQueueItem

	// Clear removes the persisted queue
	Clear(ctx context.Context) error

	// HasPersistedQueue reports whether a non-empty queue is stored
	HasPersistedQueue(ctx context.Context) bool
}

// DownloadCache answers whether chapters have local content without I/O
type DownloadCache interface {
	IsChapterDownloaded(bookID, chapterID int64) bool
	DownloadedChapterIDs(bookID int64) map[int64]struct{}
	AddDownloadedChapter(bookID, chapterID int64)
	RemoveDownloadedChapter(bookID, chapterID int64)

	// Invalidate drops every entry and marks the cache uninitialized
	Invalidate()
	InvalidateBook(bookID int64)

	// Refresh rebuilds the index from the filesystem. Expensive.
	Refresh(ctx context.Context) error
	IsInitialized() bool

	DownloadedCount(bookID int64) int
	TotalCount() int
}

// DownloadProvider maps sources, books and chapters to filesystem paths
type DownloadProvider interface {
	RootDir() string
	SourceDir(sourceID int64) string
	BookDir(sourceID int64, bookTitle string) string
	ChapterDir(sourceID int64, bookTitle, chapterName string) string
	ChapterContentPath(sourceID int64, bookTitle, chapterName string) string

	EnsureDir(path string) error
	DirExists(path string) bool

	// ChapterContentExists reports whether the content file of a chapter exists
	ChapterContentExists(sourceID int64, bookTitle, chapterName string) bool
	WriteChapterContent(sourceID int64, bookTitle, chapterName, content string) error
	DeleteChapter(sourceID int64, bookTitle, chapterName string) error
	DeleteBook(sourceID int64, bookTitle string) error

	// AvailableSpace returns the free bytes on the volume holding the root
	AvailableSpace() (uint64, error)
}

// RemoteFetcher retrieves chapter content from a source
type RemoteFetcher interface {
	Fetch(ctx context.Context, chapter *Chapter, catalog *Catalog) (string, error)
}

// PreferencesProvider exposes the current download preferences
type PreferencesProvider interface {
	DownloadSettings() DownloadSettings
}
