package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/chapterdl-go/internal/domain"
)

var (
	serverURL   string
	configFile  string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:           "chapterdl",
		Short:         "chapterdl CLI - chapter download queue",
		Long:          `A command-line interface for queueing and downloading book chapters through the chapterdl server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(
		addCmd, listCmd, removeCmd, clearCmd,
		startCmd, pauseCmd, resumeCmd, cancelCmd,
		retryCmd, clearCompletedCmd, clearFailedCmd, moveCmd,
		statsCmd, importCmd, logsCmd,
	)

	addCmd.Flags().Bool("book", false, "Treat the IDs as book IDs and queue every chapter")
	listCmd.Flags().StringP("status", "s", "", "Filter by status (QUEUE, DOWNLOADING, DOWNLOADED, ERROR)")
	retryCmd.Flags().Bool("all", false, "Retry every failed chapter")
	logsCmd.Flags().StringP("search", "q", "", "Only show entries containing this text")
	logsCmd.Flags().IntP("limit", "n", 50, "Number of entries to show")
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() *apiClient {
	if !noAutoStart {
		if err := ensureServerRunning(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	return newAPIClient(serverURL)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

var addCmd = &cobra.Command{
	Use:   "add [id...]",
	Short: "Queue chapters (or whole books with --book)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}

		payload := map[string][]int64{"chapter_ids": ids}
		if books, _ := cmd.Flags().GetBool("book"); books {
			payload = map[string][]int64{"book_ids": ids}
		}

		var result struct {
			Queued int `json:"queued"`
		}
		if err := ensureServer().post("/api/v1/queue", payload, &result); err != nil {
			return err
		}
		fmt.Printf("Queued %d chapter(s)\n", result.Queued)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the download queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Downloads []domain.Download `json:"downloads"`
		}
		if err := ensureServer().get("/api/v1/queue", &result); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		printQueue(os.Stdout, filterByStatus(result.Downloads, status))
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [chapter-id]",
	Short: "Remove a chapter from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if err := ensureServer().delete(fmt.Sprintf("/api/v1/queue/%d", ids[0]), nil); err != nil {
			return err
		}
		fmt.Println("Removed from queue")
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Stop downloading and empty the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureServer().delete("/api/v1/queue", nil); err != nil {
			return err
		}
		fmt.Println("Queue cleared")
		return nil
	},
}

// simpleCommand posts to a queue action endpoint and prints msg
func simpleCommand(use, short, path, msg string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ensureServer().post(path, nil, nil); err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		},
	}
}

var (
	pauseCmd  = simpleCommand("pause", "Pause after the current chapter", "/api/v1/queue/pause", "Downloads paused")
	resumeCmd = simpleCommand("resume", "Resume downloading", "/api/v1/queue/resume", "Downloads resumed")
	cancelCmd = simpleCommand("cancel", "Stop downloading and keep the queue", "/api/v1/queue/cancel", "Downloads cancelled")
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start downloading queued chapters",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Started bool `json:"started"`
		}
		if err := ensureServer().post("/api/v1/queue/start", nil, &result); err != nil {
			return err
		}
		if result.Started {
			fmt.Println("Downloads started")
		} else {
			fmt.Println("Nothing to start (queue empty or already running)")
		}
		return nil
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [chapter-id]",
	Short: "Retry a failed chapter, or every failed chapter with --all",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return fmt.Errorf("pass either a chapter id or --all")
		}

		client := ensureServer()
		if all {
			var result struct {
				Retried int `json:"retried"`
			}
			if err := client.post("/api/v1/queue/retry-failed", nil, &result); err != nil {
				return err
			}
			fmt.Printf("Retrying %d chapter(s)\n", result.Retried)
			return nil
		}

		ids, err := parseIDs(args)
		if err != nil {
			return err
		}
		if err := client.post(fmt.Sprintf("/api/v1/queue/%d/retry", ids[0]), nil, nil); err != nil {
			return err
		}
		fmt.Println("Chapter queued for retry")
		return nil
	},
}

func clearByStatusCommand(use, short, path, what string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Removed int `json:"removed"`
			}
			if err := ensureServer().post(path, nil, &result); err != nil {
				return err
			}
			fmt.Printf("Removed %d %s chapter(s)\n", result.Removed, what)
			return nil
		},
	}
}

var (
	clearCompletedCmd = clearByStatusCommand("clear-completed", "Remove downloaded chapters from the queue", "/api/v1/queue/clear-completed", "downloaded")
	clearFailedCmd    = clearByStatusCommand("clear-failed", "Remove failed chapters from the queue", "/api/v1/queue/clear-failed", "failed")
)

var moveCmd = &cobra.Command{
	Use:   "move [from] [to]",
	Short: "Move a queue entry to another position (0-based)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[0])
		}
		to, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid position %q", args[1])
		}

		if err := ensureServer().post("/api/v1/queue/reorder", map[string]int{"from": from, "to": to}, nil); err != nil {
			return err
		}
		fmt.Printf("Moved entry %d to %d\n", from, to)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats domain.DownloadStats
		if err := ensureServer().get("/api/v1/queue/stats", &stats); err != nil {
			return err
		}
		printStats(os.Stdout, stats)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file.json]",
	Short: "Import a book with its chapters from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var payload json.RawMessage
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("invalid JSON in %s: %w", args[0], err)
		}

		var result struct {
			BookID   int64 `json:"book_id"`
			Chapters int   `json:"chapters"`
		}
		if err := ensureServer().post("/api/v1/library", payload, &result); err != nil {
			return err
		}
		fmt.Printf("Imported book %d with %d chapter(s)\n", result.BookID, result.Chapters)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs [queue|download|error]",
	Short: "Show today's log entries of a category",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		category := "queue"
		if len(args) == 1 {
			category = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		search, _ := cmd.Flags().GetString("search")

		path := fmt.Sprintf("/api/v1/logs/%s?limit=%d", category, limit)
		if search != "" {
			path = fmt.Sprintf("/api/v1/logs/%s/search?limit=%d&q=%s", category, limit, url.QueryEscape(search))
		}

		var result struct {
			Entries []struct {
				Timestamp string `json:"timestamp"`
				Level     string `json:"level"`
				Message   string `json:"message"`
			} `json:"entries"`
		}
		if err := ensureServer().get(path, &result); err != nil {
			return err
		}
		for _, e := range result.Entries {
			fmt.Printf("%s %-5s %s\n", e.Timestamp, strings.ToUpper(e.Level), e.Message)
		}
		return nil
	},
}

func filterByStatus(downloads []domain.Download, status string) []domain.Download {
	if status == "" {
		return downloads
	}
	want := domain.ParseDownloadStatus(status)
	filtered := make([]domain.Download, 0, len(downloads))
	for _, d := range downloads {
		if d.Status == want {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

func printQueue(out io.Writer, downloads []domain.Download) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tCHAPTER\tBOOK\tNAME\tSTATUS\tPROGRESS\tERROR")
	for i, d := range downloads {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%d%%\t%s\n",
			i,
			d.ChapterID,
			truncate(d.BookTitle, 30),
			truncate(d.ChapterName, 40),
			d.Status,
			d.Progress,
			truncate(d.ErrorText(), 40))
	}
	w.Flush()
}

func printStats(out io.Writer, stats domain.DownloadStats) {
	state := "idle"
	switch {
	case stats.IsPausedDueToNetwork:
		state = "waiting for network"
	case stats.IsPausedDueToDiskSpace:
		state = "paused (low disk space)"
	case stats.IsPaused:
		state = "paused"
	case stats.IsRunning:
		state = "downloading"
	}

	fmt.Fprintln(out, "Download Statistics:")
	fmt.Fprintf(out, "  State:       %s\n", state)
	fmt.Fprintf(out, "  Total:       %d\n", stats.Total)
	fmt.Fprintf(out, "  Queued:      %d\n", stats.Queued)
	fmt.Fprintf(out, "  Downloading: %d\n", stats.Downloading)
	fmt.Fprintf(out, "  Downloaded:  %d\n", stats.Downloaded)
	fmt.Fprintf(out, "  Failed:      %d\n", stats.Failed)
	fmt.Fprintf(out, "  This run:    %d completed, %d failed\n", stats.CompletedCount, stats.FailedCount)
	fmt.Fprintf(out, "  Free space:  %s\n", humanize.IBytes(stats.AvailableSpace))
	if stats.CurrentDownload != nil {
		fmt.Fprintf(out, "  Current:     %s - %s\n", stats.CurrentDownload.BookTitle, stats.CurrentDownload.ChapterName)
	}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
