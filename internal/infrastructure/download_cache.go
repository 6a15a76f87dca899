package infrastructure

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// MemoryDownloadCache indexes downloaded chapters per book. Queries never
// touch the filesystem; Refresh rebuilds the index from it.
type MemoryDownloadCache struct {
	books    domain.BookRepository
	chapters domain.ChapterRepository
	provider domain.DownloadProvider
	logger   *zap.Logger

	mu          sync.RWMutex
	downloaded  map[int64]map[int64]struct{}
	initialized bool
}

// NewMemoryDownloadCache creates an empty, uninitialized cache
func NewMemoryDownloadCache(
	books domain.BookRepository,
	chapters domain.ChapterRepository,
	provider domain.DownloadProvider,
	logger *zap.Logger,
) *MemoryDownloadCache {
	return &MemoryDownloadCache{
		books:      books,
		chapters:   chapters,
		provider:   provider,
		logger:     logger,
		downloaded: make(map[int64]map[int64]struct{}),
	}
}

func (c *MemoryDownloadCache) IsChapterDownloaded(bookID, chapterID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.downloaded[bookID][chapterID]
	return ok
}

// DownloadedChapterIDs returns a copy of the downloaded chapter set of a book
func (c *MemoryDownloadCache) DownloadedChapterIDs(bookID int64) map[int64]struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make(map[int64]struct{}, len(c.downloaded[bookID]))
	for id := range c.downloaded[bookID] {
		ids[id] = struct{}{}
	}
	return ids
}

func (c *MemoryDownloadCache) AddDownloadedChapter(bookID, chapterID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chapters, ok := c.downloaded[bookID]
	if !ok {
		chapters = make(map[int64]struct{})
		c.downloaded[bookID] = chapters
	}
	chapters[chapterID] = struct{}{}
}

func (c *MemoryDownloadCache) RemoveDownloadedChapter(bookID, chapterID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chapters, ok := c.downloaded[bookID]
	if !ok {
		return
	}
	delete(chapters, chapterID)
	if len(chapters) == 0 {
		delete(c.downloaded, bookID)
	}
}

func (c *MemoryDownloadCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.downloaded = make(map[int64]map[int64]struct{})
	c.initialized = false
}

func (c *MemoryDownloadCache) InvalidateBook(bookID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.downloaded, bookID)
}

// Refresh scans the content files of every library chapter and swaps in the
// new index
func (c *MemoryDownloadCache) Refresh(ctx context.Context) error {
	books, err := c.books.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list books: %w", err)
	}

	index := make(map[int64]map[int64]struct{})
	total := 0
	for _, book := range books {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !c.provider.DirExists(c.provider.BookDir(book.SourceID, book.Title)) {
			continue
		}

		chapters, err := c.chapters.FindByBookID(ctx, book.ID)
		if err != nil {
			return fmt.Errorf("failed to list chapters of book %d: %w", book.ID, err)
		}
		for _, chapter := range chapters {
			if !c.provider.ChapterContentExists(book.SourceID, book.Title, chapter.Name) {
				continue
			}
			if index[book.ID] == nil {
				index[book.ID] = make(map[int64]struct{})
			}
			index[book.ID][chapter.ID] = struct{}{}
			total++
		}
	}

	c.mu.Lock()
	c.downloaded = index
	c.initialized = true
	c.mu.Unlock()

	c.logger.Info("Download cache refreshed",
		zap.Int("books", len(index)),
		zap.Int("chapters", total))
	return nil
}

func (c *MemoryDownloadCache) IsInitialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

func (c *MemoryDownloadCache) DownloadedCount(bookID int64) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.downloaded[bookID])
}

func (c *MemoryDownloadCache) TotalCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, chapters := range c.downloaded {
		total += len(chapters)
	}
	return total
}
