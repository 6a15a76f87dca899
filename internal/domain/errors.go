package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrChapterNotFound   = errors.New("chapter not found")
	ErrBookNotFound      = errors.New("book not found")
	ErrSourceNotFound    = errors.New("source not found")
	ErrNoContent         = errors.New("no content received")
	ErrContentTooShort   = errors.New("content is too short")
	ErrNoChaptersToQueue = errors.New("no chapters to queue")
	ErrNoBooksToQueue    = errors.New("no books to queue")
	ErrNotInQueue        = errors.New("download not in queue")
	ErrNotFailed         = errors.New("download has not failed")
	ErrInvalidIndex      = errors.New("queue index out of range")
)

// FetchError is returned by a RemoteFetcher when the source answers with a
// non-success status
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

const maxRawErrorLength = 100

type errorClass struct {
	needles []string
	message string
}

// Order matters: the first matching class wins.
var errorClasses = []errorClass{
	{[]string{"unable to resolve host", "no address associated", "no such host", "network is unreachable"}, "No internet connection"},
	{[]string{"timeout", "timed out", "deadline exceeded"}, "Connection timed out"},
	{[]string{"failed to connect", "connection refused"}, "Cannot connect to server"},
	{[]string{"content is too short", "no content received"}, "Chapter content not available"},
	{[]string{"404"}, "Chapter not found"},
	{[]string{"403"}, "Access denied"},
	{[]string{"500", "502", "503"}, "Source server error"},
	{[]string{"429"}, "Too many requests"},
}

// UserFriendlyMessage turns a fetch failure into a short message for display
func UserFriendlyMessage(err error) string {
	if err == nil {
		return ""
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.StatusCode {
		case 404:
			return "Chapter not found"
		case 403:
			return "Access denied"
		case 429:
			return "Too many requests"
		case 500, 502, 503:
			return "Source server error"
		}
	}

	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, class := range errorClasses {
		for _, needle := range class.needles {
			if strings.Contains(lower, needle) {
				return class.message
			}
		}
	}

	if raw == "" {
		return "Download failed: Unknown error"
	}
	runes := []rune(raw)
	if len(runes) > maxRawErrorLength {
		runes = runes[:maxRawErrorLength]
	}
	return "Download failed: " + string(runes)
}
