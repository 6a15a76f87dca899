package infrastructure

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryDownloadCache_Membership(t *testing.T) {
	cache := NewMemoryDownloadCache(nil, nil, nil, zap.NewNop())

	assert.False(t, cache.IsInitialized())
	assert.False(t, cache.IsChapterDownloaded(1, 10))

	cache.AddDownloadedChapter(1, 10)
	cache.AddDownloadedChapter(1, 11)
	cache.AddDownloadedChapter(2, 20)

	assert.True(t, cache.IsChapterDownloaded(1, 10))
	assert.False(t, cache.IsChapterDownloaded(2, 10))
	assert.Equal(t, 2, cache.DownloadedCount(1))
	assert.Equal(t, 3, cache.TotalCount())
	assert.Equal(t, map[int64]struct{}{10: {}, 11: {}}, cache.DownloadedChapterIDs(1))

	cache.RemoveDownloadedChapter(1, 10)
	assert.False(t, cache.IsChapterDownloaded(1, 10))
	assert.Equal(t, 1, cache.DownloadedCount(1))

	cache.InvalidateBook(2)
	assert.Equal(t, 0, cache.DownloadedCount(2))

	cache.Invalidate()
	assert.Equal(t, 0, cache.TotalCount())
	assert.False(t, cache.IsInitialized())
}

func TestMemoryDownloadCache_DownloadedChapterIDsIsCopy(t *testing.T) {
	cache := NewMemoryDownloadCache(nil, nil, nil, zap.NewNop())
	cache.AddDownloadedChapter(1, 10)

	ids := cache.DownloadedChapterIDs(1)
	ids[99] = struct{}{}

	assert.False(t, cache.IsChapterDownloaded(1, 99))
}

func TestMemoryDownloadCache_Refresh(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	book, chapters := seedBook(t, repo)

	provider := NewFileDownloadProvider(t.TempDir())
	require.NoError(t, provider.WriteChapterContent(book.SourceID, book.Title, chapters[0].Name, "text"))
	require.NoError(t, provider.WriteChapterContent(book.SourceID, book.Title, chapters[2].Name, "text"))

	cache := NewMemoryDownloadCache(repo.Books(), repo.Chapters(), provider, zap.NewNop())
	cache.AddDownloadedChapter(99, 1) // stale entry dropped by refresh

	require.NoError(t, cache.Refresh(context.Background()))

	assert.True(t, cache.IsInitialized())
	assert.True(t, cache.IsChapterDownloaded(book.ID, chapters[0].ID))
	assert.False(t, cache.IsChapterDownloaded(book.ID, chapters[1].ID))
	assert.True(t, cache.IsChapterDownloaded(book.ID, chapters[2].ID))
	assert.False(t, cache.IsChapterDownloaded(99, 1))
	assert.Equal(t, 2, cache.TotalCount())
}

func TestMemoryDownloadCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryDownloadCache(nil, nil, nil, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			cache.AddDownloadedChapter(1, id)
		}(int64(i))
		go func(id int64) {
			defer wg.Done()
			cache.IsChapterDownloaded(1, id)
			cache.TotalCount()
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 50, cache.DownloadedCount(1))
}
