package domain

import (
	"time"
	"unicode/utf8"
)

// MinContentLength is the number of characters below which chapter content is
// considered missing
const MinContentLength = 50

// ContentLength returns the number of characters in chapter content
func ContentLength(content string) int {
	return utf8.RuneCountInString(content)
}

// Book is a library entry that owns chapters
type Book struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	SourceID  int64     `json:"source_id" gorm:"not null;index"`
	Title     string    `json:"title" gorm:"not null"`
	Key       string    `json:"key"`
	CoverURL  string    `json:"cover_url,omitempty"`
	Favorite  bool      `json:"favorite"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Chapter is a single downloadable unit of book content
type Chapter struct {
	ID           int64      `json:"id" gorm:"primaryKey"`
	BookID       int64      `json:"book_id" gorm:"not null;index"`
	Key          string     `json:"key" gorm:"not null"`
	Name         string     `json:"name"`
	Translator   string     `json:"translator,omitempty"`
	Number       float64    `json:"number"`
	SourceOrder  int        `json:"source_order"`
	Read         bool       `json:"read"`
	Bookmark     bool       `json:"bookmark"`
	LastPageRead int        `json:"last_page_read"`
	Content      string     `json:"content,omitempty" gorm:"type:text"`
	DateUpload   *time.Time `json:"date_upload,omitempty"`
	DateFetch    *time.Time `json:"date_fetch,omitempty"`
}

// HasContent reports whether the chapter already holds usable content
func (c *Chapter) HasContent() bool {
	return ContentLength(c.Content) >= MinContentLength
}

// Catalog is a content source that chapters are fetched from
type Catalog struct {
	SourceID int64  `json:"source_id" mapstructure:"id"`
	Name     string `json:"name" mapstructure:"name"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
}

// SavedDownload is the long-lived record of a queued chapter kept for display
// independently of the in-memory queue
type SavedDownload struct {
	ChapterID   int64     `json:"chapter_id" gorm:"primaryKey;autoIncrement:false"`
	BookID      int64     `json:"book_id" gorm:"not null;index"`
	Priority    int       `json:"priority"`
	ChapterName string    `json:"chapter_name"`
	ChapterKey  string    `json:"chapter_key"`
	Translator  string    `json:"translator,omitempty"`
	BookName    string    `json:"book_name"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (SavedDownload) TableName() string {
	return "saved_downloads"
}

// NewSavedDownload builds the display record for a queued chapter
func NewSavedDownload(chapter *Chapter, book *Book) *SavedDownload {
	return &SavedDownload{
		ChapterID:   chapter.ID,
		BookID:      book.ID,
		Priority:    1,
		ChapterName: chapter.Name,
		ChapterKey:  chapter.Key,
		Translator:  chapter.Translator,
		BookName:    book.Title,
	}
}
