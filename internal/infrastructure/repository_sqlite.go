package infrastructure

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// SQLiteRepository implements the library repositories and the saved download
// records using SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository opens the database and migrates the schema
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Book{},
		&domain.Chapter{},
		&domain.SavedDownload{},
		&domain.DownloadQueueItem{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// ============================================================================
// BookRepository implementation
// ============================================================================

// FindBookByID finds a book by ID
func (r *SQLiteRepository) FindBookByID(ctx context.Context, id int64) (*domain.Book, error) {
	var book domain.Book
	err := r.db.WithContext(ctx).First(&book, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrBookNotFound
		}
		return nil, err
	}
	return &book, nil
}

// FindAllBooks returns every book ordered by title
func (r *SQLiteRepository) FindAllBooks(ctx context.Context) ([]*domain.Book, error) {
	var books []*domain.Book
	err := r.db.WithContext(ctx).Order("title ASC").Find(&books).Error
	return books, err
}

// ImportBook inserts or updates a book with its chapters. Existing chapter
// content is left untouched.
func (r *SQLiteRepository) ImportBook(ctx context.Context, book *domain.Book, chapters []*domain.Chapter) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"source_id", "title", "key", "cover_url", "favorite", "updated_at"}),
		}).Create(book).Error; err != nil {
			return fmt.Errorf("failed to save book: %w", err)
		}

		if len(chapters) == 0 {
			return nil
		}
		for _, chapter := range chapters {
			chapter.BookID = book.ID
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"book_id", "key", "name", "translator", "number", "source_order", "date_upload"}),
		}).Create(&chapters).Error; err != nil {
			return fmt.Errorf("failed to save chapters: %w", err)
		}
		return nil
	})
}

// ============================================================================
// ChapterRepository implementation
// ============================================================================

// FindChapterByID finds a chapter by ID
func (r *SQLiteRepository) FindChapterByID(ctx context.Context, id int64) (*domain.Chapter, error) {
	var chapter domain.Chapter
	err := r.db.WithContext(ctx).First(&chapter, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChapterNotFound
		}
		return nil, err
	}
	return &chapter, nil
}

// FindChaptersByBookID returns the chapters of a book in source order
func (r *SQLiteRepository) FindChaptersByBookID(ctx context.Context, bookID int64) ([]*domain.Chapter, error) {
	var chapters []*domain.Chapter
	err := r.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("source_order ASC, id ASC").
		Find(&chapters).Error
	return chapters, err
}

// UpdateChapterContent writes only the content column of a chapter
func (r *SQLiteRepository) UpdateChapterContent(ctx context.Context, chapterID int64, content string) error {
	result := r.db.WithContext(ctx).
		Model(&domain.Chapter{}).
		Where("id = ?", chapterID).
		Update("content", content)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrChapterNotFound
	}
	return nil
}

// ============================================================================
// SavedDownloadRepository implementation
// ============================================================================

// InsertAll stores saved download records, replacing existing ones
func (r *SQLiteRepository) InsertAll(ctx context.Context, downloads []*domain.SavedDownload) error {
	if len(downloads) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&downloads).Error
}

// Delete removes the saved record of a chapter
func (r *SQLiteRepository) Delete(ctx context.Context, chapterID int64) error {
	return r.db.WithContext(ctx).Delete(&domain.SavedDownload{}, "chapter_id = ?", chapterID).Error
}

// DeleteAll removes every saved record
func (r *SQLiteRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.SavedDownload{}).Error
}

// FindAll returns saved records ordered by priority and creation time
func (r *SQLiteRepository) FindAll(ctx context.Context) ([]*domain.SavedDownload, error) {
	var downloads []*domain.SavedDownload
	err := r.db.WithContext(ctx).Order("priority DESC, created_at ASC").Find(&downloads).Error
	return downloads, err
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Chapters adapts the repository to domain.ChapterRepository
func (r *SQLiteRepository) Chapters() domain.ChapterRepository { return chapterRepository{r} }

// Books adapts the repository to domain.BookRepository
func (r *SQLiteRepository) Books() domain.BookRepository { return bookRepository{r} }

type chapterRepository struct{ r *SQLiteRepository }

func (c chapterRepository) FindByID(ctx context.Context, id int64) (*domain.Chapter, error) {
	return c.r.FindChapterByID(ctx, id)
}

func (c chapterRepository) FindByBookID(ctx context.Context, bookID int64) ([]*domain.Chapter, error) {
	return c.r.FindChaptersByBookID(ctx, bookID)
}

func (c chapterRepository) UpdateContent(ctx context.Context, chapterID int64, content string) error {
	return c.r.UpdateChapterContent(ctx, chapterID, content)
}

type bookRepository struct{ r *SQLiteRepository }

func (b bookRepository) FindByID(ctx context.Context, id int64) (*domain.Book, error) {
	return b.r.FindBookByID(ctx, id)
}

func (b bookRepository) FindAll(ctx context.Context) ([]*domain.Book, error) {
	return b.r.FindAllBooks(ctx)
}
