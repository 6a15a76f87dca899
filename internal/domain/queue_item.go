package domain

// DownloadQueueItem is the flat persisted form of a Download
type DownloadQueueItem struct {
	Position        int     `json:"position" gorm:"primaryKey;autoIncrement:false"`
	ChapterID       int64   `json:"chapter_id" gorm:"not null;index"`
	BookID          int64   `json:"book_id" gorm:"not null"`
	SourceID        int64   `json:"source_id"`
	ChapterName     string  `json:"chapter_name"`
	BookTitle       string  `json:"book_title"`
	CoverURL        string  `json:"cover_url"`
	Status          string  `json:"status" gorm:"not null"`
	Progress        int     `json:"progress"`
	DownloadedPages int     `json:"downloaded_pages"`
	TotalPages      int     `json:"total_pages"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	RetryCount      int     `json:"retry_count"`
	Priority        int     `json:"priority"`
}

// TableName specifies the table name for GORM
func (DownloadQueueItem) TableName() string {
	return "download_queue_items"
}

// QueueItemFromDownload projects a download into its persisted form
func QueueItemFromDownload(d Download, position int) DownloadQueueItem {
	d = d.Clone()
	return DownloadQueueItem{
		Position:        position,
		ChapterID:       d.ChapterID,
		BookID:          d.BookID,
		SourceID:        d.SourceID,
		ChapterName:     d.ChapterName,
		BookTitle:       d.BookTitle,
		CoverURL:        d.CoverURL,
		Status:          d.Status.String(),
		Progress:        d.Progress,
		DownloadedPages: d.DownloadedPages,
		TotalPages:      d.TotalPages,
		ErrorMessage:    d.ErrorMessage,
		RetryCount:      d.RetryCount,
		Priority:        d.Priority,
	}
}

// ToDownload restores a live download. Unknown status tags become StatusQueue.
func (item DownloadQueueItem) ToDownload() Download {
	d := Download{
		ChapterID:       item.ChapterID,
		BookID:          item.BookID,
		SourceID:        item.SourceID,
		ChapterName:     item.ChapterName,
		BookTitle:       item.BookTitle,
		CoverURL:        item.CoverURL,
		Status:          ParseDownloadStatus(item.Status),
		Progress:        item.Progress,
		DownloadedPages: item.DownloadedPages,
		TotalPages:      item.TotalPages,
		ErrorMessage:    item.ErrorMessage,
		RetryCount:      item.RetryCount,
		Priority:        item.Priority,
	}
	return d.Clone()
}
