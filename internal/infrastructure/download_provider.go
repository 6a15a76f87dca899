package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/shirou/gopsutil/v3/disk"
)

const (
	contentFileName = "content.txt"
	maxNameLength   = 255
	unnamed         = "unnamed"
)

// FileDownloadProvider lays out downloaded content as
// root/<source id>/<book title>/<chapter name>/content.txt
type FileDownloadProvider struct {
	root string
}

// NewFileDownloadProvider creates a provider rooted at root
func NewFileDownloadProvider(root string) *FileDownloadProvider {
	return &FileDownloadProvider{root: filepath.Clean(root)}
}

// SanitizeName makes a title safe for use as a single path component
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.Trim(cleaned, ". ")

	if runes := []rune(cleaned); len(runes) > maxNameLength {
		cleaned = strings.TrimRight(string(runes[:maxNameLength]), ". ")
	}
	if cleaned == "" {
		return unnamed
	}
	return cleaned
}

// RootDir returns the download root
func (p *FileDownloadProvider) RootDir() string {
	return p.root
}

// SourceDir returns the directory of a source
func (p *FileDownloadProvider) SourceDir(sourceID int64) string {
	return filepath.Join(p.root, strconv.FormatInt(sourceID, 10))
}

// BookDir returns the directory of a book
func (p *FileDownloadProvider) BookDir(sourceID int64, bookTitle string) string {
	return filepath.Join(p.SourceDir(sourceID), SanitizeName(bookTitle))
}

// ChapterDir returns the directory of a chapter
func (p *FileDownloadProvider) ChapterDir(sourceID int64, bookTitle, chapterName string) string {
	return filepath.Join(p.BookDir(sourceID, bookTitle), SanitizeName(chapterName))
}

// ChapterContentPath returns the content file of a chapter
func (p *FileDownloadProvider) ChapterContentPath(sourceID int64, bookTitle, chapterName string) string {
	return filepath.Join(p.ChapterDir(sourceID, bookTitle, chapterName), contentFileName)
}

// EnsureDir creates path and its parents
func (p *FileDownloadProvider) EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// DirExists reports whether path is an existing directory
func (p *FileDownloadProvider) DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ChapterContentExists reports whether the content file of a chapter exists
func (p *FileDownloadProvider) ChapterContentExists(sourceID int64, bookTitle, chapterName string) bool {
	info, err := os.Stat(p.ChapterContentPath(sourceID, bookTitle, chapterName))
	return err == nil && info.Mode().IsRegular()
}

// WriteChapterContent writes content atomically through a temp file
func (p *FileDownloadProvider) WriteChapterContent(sourceID int64, bookTitle, chapterName, content string) error {
	dir := p.ChapterDir(sourceID, bookTitle, chapterName)
	if err := p.EnsureDir(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".content-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close content file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, contentFileName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move content file: %w", err)
	}
	return nil
}

// DeleteChapter removes the chapter directory. A missing directory is not an error.
func (p *FileDownloadProvider) DeleteChapter(sourceID int64, bookTitle, chapterName string) error {
	return removeDir(p.ChapterDir(sourceID, bookTitle, chapterName))
}

// DeleteBook removes the book directory with all chapters
func (p *FileDownloadProvider) DeleteBook(sourceID int64, bookTitle string) error {
	return removeDir(p.BookDir(sourceID, bookTitle))
}

// AvailableSpace returns the free bytes on the volume holding the root. The
// closest existing ancestor is queried when the root does not exist yet.
func (p *FileDownloadProvider) AvailableSpace() (uint64, error) {
	path := p.root
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	usage, err := disk.Usage(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read disk usage of %s: %w", path, err)
	}
	return usage.Free, nil
}

func removeDir(path string) error {
	if err := os.RemoveAll(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}
