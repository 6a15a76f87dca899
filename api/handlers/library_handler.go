package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

// LibraryHandler handles book import and downloaded-content requests
type LibraryHandler struct {
	library LibraryImporter
	queue   QueueService
	logger  *zap.Logger
}

// NewLibraryHandler creates a new library handler
func NewLibraryHandler(library LibraryImporter, queue QueueService, logger *zap.Logger) *LibraryHandler {
	return &LibraryHandler{
		library: library,
		queue:   queue,
		logger:  logger,
	}
}

// ImportBookRequest carries a book and its chapter list
type ImportBookRequest struct {
	Book     domain.Book       `json:"book"`
	Chapters []*domain.Chapter `json:"chapters"`
}

// ImportBook handles POST /api/v1/library
func (h *LibraryHandler) ImportBook(c *gin.Context) {
	var req ImportBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Book.ID == 0 || req.Book.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book id and title are required"})
		return
	}
	for _, chapter := range req.Chapters {
		if chapter == nil || chapter.ID == 0 || chapter.Key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "every chapter needs an id and a key"})
			return
		}
		chapter.BookID = req.Book.ID
	}

	if err := h.library.ImportBook(c.Request.Context(), &req.Book, req.Chapters); err != nil {
		h.logger.Error("Failed to import book", zap.Int64("book_id", req.Book.ID), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"book_id":  req.Book.ID,
		"chapters": len(req.Chapters),
	})
}

// DownloadedChapters handles GET /api/v1/books/:bookId/downloaded
func (h *LibraryHandler) DownloadedChapters(c *gin.Context) {
	bookID, ok := parseIDParam(c, "bookId")
	if !ok {
		return
	}

	ids := make([]int64, 0)
	for id := range h.queue.DownloadedChapterIDs(bookID) {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	c.JSON(http.StatusOK, gin.H{
		"book_id":     bookID,
		"chapter_ids": ids,
	})
}

// DeleteChapterContent handles DELETE /api/v1/chapters/:chapterId/content
func (h *LibraryHandler) DeleteChapterContent(c *gin.Context) {
	chapterID, ok := parseIDParam(c, "chapterId")
	if !ok {
		return
	}

	if err := h.queue.DeleteChapterContent(c.Request.Context(), chapterID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "chapter content deleted"})
}
