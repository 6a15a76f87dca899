package infrastructure

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// SQLiteDownloadStore persists the download queue as ordered rows in the
// download_queue_items table
type SQLiteDownloadStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewSQLiteDownloadStore creates a store sharing the repository's database
func NewSQLiteDownloadStore(repo *SQLiteRepository, logger *zap.Logger) *SQLiteDownloadStore {
	return &SQLiteDownloadStore{db: repo.db, logger: logger}
}

// SaveQueue replaces the stored queue with items in one transaction. Items
// are expected to carry distinct positions.
func (s *SQLiteDownloadStore) SaveQueue(ctx context.Context, items []domain.DownloadQueueItem) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&domain.DownloadQueueItem{}).Error; err != nil {
			return fmt.Errorf("failed to clear queue: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(items, 100).Error; err != nil {
			return fmt.Errorf("failed to save queue: %w", err)
		}
		return nil
	})
}

// RestoreQueue returns the stored queue in order, or an empty list when the
// table cannot be read
func (s *SQLiteDownloadStore) RestoreQueue(ctx context.Context) []domain.DownloadQueueItem {
	var items []domain.DownloadQueueItem
	if err := s.db.WithContext(ctx).Order("position ASC").Find(&items).Error; err != nil {
		s.logger.Warn("Failed to restore download queue, starting empty", zap.Error(err))
		return []domain.DownloadQueueItem{}
	}
	if items == nil {
		items = []domain.DownloadQueueItem{}
	}
	return items
}

// Clear removes the stored queue
func (s *SQLiteDownloadStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.DownloadQueueItem{}).Error
}

// HasPersistedQueue reports whether any queue row is stored
func (s *SQLiteDownloadStore) HasPersistedQueue(ctx context.Context) bool {
	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.DownloadQueueItem{}).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}
