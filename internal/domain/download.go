package domain

import (
	"strings"
	"sync"
)

// DownloadStatus represents the lifecycle state of a chapter download
type DownloadStatus int

const (
	StatusQueue DownloadStatus = iota
	StatusDownloading
	StatusDownloaded
	StatusError
)

// String returns the persistence tag of the status
func (s DownloadStatus) String() string {
	switch s {
	case StatusQueue:
		return "QUEUE"
	case StatusDownloading:
		return "DOWNLOADING"
	case StatusDownloaded:
		return "DOWNLOADED"
	case StatusError:
		return "ERROR"
	default:
		return "QUEUE"
	}
}

// MarshalText encodes the status as its tag
func (s DownloadStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status tag, falling back to StatusQueue
func (s *DownloadStatus) UnmarshalText(text []byte) error {
	*s = ParseDownloadStatus(string(text))
	return nil
}

// ParseDownloadStatus decodes a persisted tag. Unknown tags decode to StatusQueue.
func ParseDownloadStatus(tag string) DownloadStatus {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "DOWNLOADING":
		return StatusDownloading
	case "DOWNLOADED":
		return StatusDownloaded
	case "ERROR":
		return StatusError
	default:
		return StatusQueue
	}
}

var allowedTransitions = map[DownloadStatus][]DownloadStatus{
	StatusQueue: {StatusDownloading},
	// DOWNLOADING -> DOWNLOADING is the next retry attempt,
	// DOWNLOADING -> QUEUE is a run interrupted by cancel or restart.
	StatusDownloading: {StatusDownloading, StatusDownloaded, StatusError, StatusQueue},
	StatusError:       {StatusQueue, StatusDownloading},
	StatusDownloaded:  nil,
}

// CanTransitionTo reports whether a download may move from s to next
func (s DownloadStatus) CanTransitionTo(next DownloadStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsPending reports whether a run should pick the download up
func (s DownloadStatus) IsPending() bool {
	return s == StatusQueue || s == StatusError
}

// Download represents one chapter fetch in the queue
type Download struct {
	ChapterID       int64          `json:"chapter_id"`
	BookID          int64          `json:"book_id"`
	SourceID        int64          `json:"source_id"`
	ChapterName     string         `json:"chapter_name"`
	BookTitle       string         `json:"book_title"`
	CoverURL        string         `json:"cover_url,omitempty"`
	Status          DownloadStatus `json:"status"`
	Progress        int            `json:"progress"`
	DownloadedPages int            `json:"downloaded_pages"`
	TotalPages      int            `json:"total_pages"`
	ErrorMessage    *string        `json:"error_message,omitempty"`
	RetryCount      int            `json:"retry_count"`
	Priority        int            `json:"priority"`
}

// NewDownload creates a queued download for a chapter of a book
func NewDownload(chapter *Chapter, book *Book) *Download {
	return &Download{
		ChapterID:   chapter.ID,
		BookID:      book.ID,
		SourceID:    book.SourceID,
		ChapterName: chapter.Name,
		BookTitle:   book.Title,
		CoverURL:    book.CoverURL,
		Status:      StatusQueue,
	}
}

// MarkDownloading marks the start of a fetch attempt (1-based)
func (d *Download) MarkDownloading(attempt int) {
	d.Status = StatusDownloading
	d.RetryCount = attempt - 1
}

// MarkDownloaded marks the download as successfully completed
func (d *Download) MarkDownloaded() {
	d.Status = StatusDownloaded
	d.Progress = 100
	d.ErrorMessage = nil
}

// MarkFailed marks the download as failed after the given number of attempts
func (d *Download) MarkFailed(message string, attempts int) {
	d.Status = StatusError
	d.ErrorMessage = &message
	d.RetryCount = attempts
}

// ResetToQueue puts the download back in the queue with a clean failure state
func (d *Download) ResetToQueue() {
	d.Status = StatusQueue
	d.ErrorMessage = nil
	d.RetryCount = 0
	d.Progress = 0
}

// ErrorText returns the error message or an empty string
func (d *Download) ErrorText() string {
	if d.ErrorMessage == nil {
		return ""
	}
	return *d.ErrorMessage
}

// Clone returns a deep copy of the download
func (d Download) Clone() Download {
	if d.ErrorMessage != nil {
		msg := *d.ErrorMessage
		d.ErrorMessage = &msg
	}
	return d
}

// DownloadState is a mutable holder around one Download. The engine updates
// progress through it while the manager keeps the same holder in its queue.
type DownloadState struct {
	mu       sync.RWMutex
	download Download
}

// NewDownloadState wraps a download
func NewDownloadState(download Download) *DownloadState {
	return &DownloadState{download: download.Clone()}
}

// Snapshot returns a copy of the current download
func (s *DownloadState) Snapshot() Download {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.download.Clone()
}

// Update applies fn to the download atomically and returns the new value
func (s *DownloadState) Update(fn func(d *Download)) Download {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.download)
	return s.download.Clone()
}

// Set replaces the held download
func (s *DownloadState) Set(download Download) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.download = download.Clone()
}

// ChapterID returns the identity of the held download
func (s *DownloadState) ChapterID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.download.ChapterID
}

// Status returns the current status of the held download
func (s *DownloadState) Status() DownloadStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.download.Status
}

// DownloadStats summarizes the live queue and the engine state
type DownloadStats struct {
	Total                  int       `json:"total"`
	Queued                 int       `json:"queued"`
	Downloading            int       `json:"downloading"`
	Downloaded             int       `json:"downloaded"`
	Failed                 int       `json:"failed"`
	CompletedCount         int       `json:"completed_count"`
	FailedCount            int       `json:"failed_count"`
	IsRunning              bool      `json:"is_running"`
	IsPaused               bool      `json:"is_paused"`
	IsPausedDueToNetwork   bool      `json:"is_paused_due_to_network"`
	IsPausedDueToDiskSpace bool      `json:"is_paused_due_to_disk_space"`
	CurrentDownload        *Download `json:"current_download,omitempty"`
	AvailableSpace         uint64    `json:"available_space"`
}
