package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/chapterdl-go/api"
	"github.com/yourusername/chapterdl-go/api/handlers"
	"github.com/yourusername/chapterdl-go/internal/app"
	"github.com/yourusername/chapterdl-go/internal/domain"
	"github.com/yourusername/chapterdl-go/internal/infrastructure"
	"github.com/yourusername/chapterdl-go/pkg/logger"
)

var (
	serverMode = flag.Bool("server-mode", false, "Internal flag: run in server mode (called by daemon)")
	configPath = flag.String("config", "", "Path to config file")
)

const shutdownTimeout = 30 * time.Second

func main() {
	flag.Parse()

	// If not in server mode, run as daemon
	if !*serverMode {
		startAsDaemon()
		return
	}

	if err := runServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

// startAsDaemon re-executes the binary in server mode, detached from the
// terminal
func startAsDaemon() {
	execPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get executable path: %v\n", err)
		os.Exit(1)
	}

	pid, err := spawnDetached(execPath, daemonArgs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Server started as daemon (PID: %d)\n", pid)
}

func daemonArgs() []string {
	args := []string{"-server-mode"}
	if *configPath != "" {
		args = append(args, "-config", *configPath)
	}
	return args
}

func runServer() error {
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := createDirectories(config); err != nil {
		return err
	}

	// Categorized JSON files: queue, download, error
	multiLog, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer multiLog.Close()

	console, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer console.Sync()

	// Console plus the error file
	log := logger.Tee(console, multiLog.Error())

	log.Info("Starting chapterdl server",
		zap.String("version", handlers.Version),
		zap.String("host", config.Server.Host),
		zap.Int("port", config.Server.Port),
		zap.String("base_dir", config.Download.BaseDir),
		zap.Int("sources", len(config.Sources)))

	repo, err := infrastructure.NewSQLiteRepository(config.Queue.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	prefs := app.NewPreferences(config.Download.Settings())
	if err := app.WatchConfig(*configPath, prefs, log); err != nil {
		log.Warn("Config hot reload disabled", zap.Error(err))
	}

	provider := infrastructure.NewFileDownloadProvider(config.Download.BaseDir)
	cache := infrastructure.NewMemoryDownloadCache(repo.Books(), repo.Chapters(), provider, log)
	store := infrastructure.NewSQLiteDownloadStore(repo, log)
	network := infrastructure.NewInterfaceNetworkState(config.Network, log)
	notifier := infrastructure.NewNotificationService(&config.Notification, log)

	if free, err := provider.AvailableSpace(); err == nil {
		log.Info("Download directory ready",
			zap.String("dir", provider.RootDir()),
			zap.String("available", humanize.IBytes(free)))
	}

	downloader := app.NewDownloader(app.DownloaderDeps{
		Chapters:    repo.Chapters(),
		Books:       repo.Books(),
		Catalogs:    infrastructure.NewConfigCatalogStore(config.Sources),
		Fetcher:     infrastructure.NewHTTPContentFetcher(config.Download.FetchTimeout),
		Provider:    provider,
		Cache:       cache,
		Network:     network,
		Preferences: prefs,
	}, logger.ForCategory(console, multiLog, logger.CategoryDownload))

	downloadMgr := app.NewDownloadManager(app.DownloadManagerDeps{
		Downloader: downloader,
		Cache:      cache,
		Store:      store,
		Saved:      repo,
		Provider:   provider,
		Chapters:   repo.Chapters(),
		Books:      repo.Books(),
		Notifier:   notifier,
	}, logger.ForCategory(console, multiLog, logger.CategoryQueue))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := downloadMgr.Init(ctx); err != nil {
		return fmt.Errorf("failed to restore download queue: %w", err)
	}

	queueMgr := app.NewQueueManager(
		repo.Chapters(),
		repo.Books(),
		downloadMgr,
		&config.Queue,
		config.Download.AutoStart,
		multiLog,
	)
	if err := queueMgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue manager: %w", err)
	}

	router := api.SetupRouter(api.Services{
		Queue:    downloadMgr,
		Enqueuer: queueMgr,
		Library:  repo,
		Settings: prefs,
		LogsDir:  config.Download.LogsDir,
	}, log)

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return network.Start(gctx)
	})

	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			log.Info("Received shutdown signal")
		case <-queueMgr.WaitForExit():
			log.Info("Queue manager triggered auto-exit (all downloads complete)")
		}

		log.Info("Shutting down server...")
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := queueMgr.Stop(); err != nil {
			log.Error("Error stopping queue manager", zap.Error(err))
		}
		// Interrupted chapters go back to QUEUE and are picked up on next start
		downloadMgr.CancelDownloads(shutdownCtx)

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("Server exited")
	return err
}

func createDirectories(config *domain.Config) error {
	dirs := []string{
		config.Download.BaseDir,
		config.Download.LogsDir,
		filepath.Dir(config.Queue.DatabasePath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
