package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/chapterdl-go/api/handlers"
	"github.com/yourusername/chapterdl-go/api/middleware"
)

// Services are the application components the HTTP API drives
type Services struct {
	Queue    handlers.QueueService
	Enqueuer handlers.Enqueuer
	Library  handlers.LibraryImporter
	Settings handlers.SettingsStore
	LogsDir  string
}

// SetupRouter sets up the HTTP router
func SetupRouter(services Services, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	healthHandler := handlers.NewHealthHandler(services.Enqueuer, services.Queue)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		queueHandler := handlers.NewQueueHandler(services.Queue, services.Enqueuer, log)
		streamHandler := handlers.NewStreamHandler(services.Queue, services.LogsDir, log)
		queue := v1.Group("/queue")
		{
			queue.GET("", queueHandler.ListQueue)
			queue.POST("", queueHandler.AddToQueue)
			queue.DELETE("", queueHandler.ClearQueue)
			queue.GET("/stats", queueHandler.GetStats)
			queue.GET("/ws", streamHandler.QueueStream)
			queue.POST("/reorder", queueHandler.Reorder)
			queue.POST("/start", queueHandler.Start)
			queue.POST("/pause", queueHandler.Pause)
			queue.POST("/resume", queueHandler.Resume)
			queue.POST("/cancel", queueHandler.Cancel)
			queue.POST("/retry-failed", queueHandler.RetryFailed)
			queue.POST("/clear-completed", queueHandler.ClearCompleted)
			queue.POST("/clear-failed", queueHandler.ClearFailed)
			queue.DELETE("/:chapterId", queueHandler.RemoveFromQueue)
			queue.POST("/:chapterId/retry", queueHandler.Retry)
		}

		libraryHandler := handlers.NewLibraryHandler(services.Library, services.Queue, log)
		v1.POST("/library", libraryHandler.ImportBook)
		v1.GET("/books/:bookId/downloaded", libraryHandler.DownloadedChapters)
		v1.DELETE("/chapters/:chapterId/content", libraryHandler.DeleteChapterContent)

		settingsHandler := handlers.NewSettingsHandler(services.Settings)
		v1.GET("/settings", settingsHandler.GetSettings)
		v1.PUT("/settings", settingsHandler.UpdateSettings)

		logHandler := handlers.NewLogHandler(services.LogsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/ws", streamHandler.LogStream)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
