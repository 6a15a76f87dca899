package infrastructure

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// maxContentBytes bounds the body read for a single chapter
const maxContentBytes = 16 << 20

// HTTPContentFetcher fetches chapter text with a GET on the source base URL
// joined with the chapter key. The body is returned as is.
type HTTPContentFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPContentFetcher creates a fetcher with the given request timeout
func NewHTTPContentFetcher(timeout time.Duration) *HTTPContentFetcher {
	return &HTTPContentFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "chapterdl/1.0",
	}
}

// Fetch implements domain.RemoteFetcher
func (f *HTTPContentFetcher) Fetch(ctx context.Context, chapter *domain.Chapter, catalog *domain.Catalog) (string, error) {
	url := joinURL(catalog.BaseURL, chapter.Key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain, text/html;q=0.9, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.FetchError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

func joinURL(base, key string) string {
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
