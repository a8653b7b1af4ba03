package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/lectern/internal/cache"
	"github.com/kalambet/lectern/internal/catalog"
	"github.com/kalambet/lectern/internal/config"
	"github.com/kalambet/lectern/internal/history"
	"github.com/kalambet/lectern/internal/pipeline"
)

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <topic...>",
	Short: "Ask the running server to generate a video",
	Long: `Ask the running server to generate a video for a topic.

Examples:
  lectern generate Pythagorean Theorem
  lectern generate --async "Fourier series"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		async, _ := cmd.Flags().GetBool("async")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return generate(cmd.Context(), client, cmd.OutOrStdout(), strings.Join(args, " "), async)
	},
}

func init() {
	generateCmd.Flags().Bool("async", false, "queue a job and return immediately")
}

func generate(ctx context.Context, client *apiClient, w io.Writer, topicText string, async bool) error {
	req := map[string]string{"prompt": topicText}

	if async {
		resp, err := client.post(ctx, "/api/jobs", req)
		if err != nil {
			return err
		}
		var job map[string]string
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		printSuccess("Queued job %s", job["id"])
		fmt.Fprintf(w, "%s\n", job["id"])
		return nil
	}

	printStep("Generating %q, this can take a few minutes", topicText)
	resp, err := client.post(ctx, "/api/generate-video", req)
	if err != nil {
		return err
	}
	var doc catalog.Generated
	if err := decodeJSON(resp, &doc); err != nil {
		return err
	}

	if doc.FromCache {
		printSuccess("Served from cache")
	} else {
		printSuccess("Rendered in %d attempt(s)", doc.Attempts)
	}
	fmt.Fprintf(w, "%s%s\n", client.baseURL, doc.VideoURL)
	if doc.NarratedURL != "" {
		fmt.Fprintf(w, "%s%s\n", client.baseURL, doc.NarratedURL)
	}
	return nil
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect queued generation jobs",
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a job's status and result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/jobs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var job any
		if err := decodeJSON(resp, &job); err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

func init() {
	jobsCmd.AddCommand(jobsShowCmd)
}

// --- videos ---

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Browse generated videos",
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List generated videos, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listVideos(cmd.Context(), client, cmd.OutOrStdout())
	},
}

func listVideos(ctx context.Context, client *apiClient, w io.Writer) error {
	resp, err := client.get(ctx, "/api/list-videos")
	if err != nil {
		return err
	}
	var videos []catalog.Summary
	if err := decodeJSON(resp, &videos); err != nil {
		return err
	}
	if len(videos) == 0 {
		fmt.Fprintln(w, "No videos yet.")
		return nil
	}

	rows := make([][]string, len(videos))
	for i, v := range videos {
		rows[i] = []string{v.ID, v.Title, relTime(time.UnixMilli(v.CreatedAt))}
	}
	fmt.Fprintln(w, renderTable([]string{"ID", "Title", "Created"}, rows, nil))
	return nil
}

var videosShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a video's URLs and captions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/api/video-details/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var d catalog.Details
		if err := decodeJSON(resp, &d); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s\n", colorize(colorBold, d.Title))
		fmt.Fprintf(w, "  video:    %s%s\n", client.baseURL, d.VideoFileURL)
		if d.NarratedURL != "" {
			fmt.Fprintf(w, "  narrated: %s%s\n", client.baseURL, d.NarratedURL)
		}
		fmt.Fprintf(w, "\n%s\n", strings.TrimSpace(d.CaptionContent))
		return nil
	},
}

func init() {
	videosCmd.AddCommand(videosListCmd, videosShowCmd)
}

// --- runs ---

type runRow struct {
	ID         string `json:"id"`
	Topic      string `json:"topic"`
	Status     string `json:"status"`
	Attempts   int    `json:"attempts"`
	LastOrigin string `json:"last_origin"`
	LastError  string `json:"last_error"`
	FromCache  bool   `json:"from_cache"`
	Source     string `json:"source"`
	DurationMs int64  `json:"duration_ms"`
	CreatedAt  string `json:"created_at"`
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return listRuns(cmd.Context(), client, cmd.OutOrStdout(), limit)
	},
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to show")
}

func listRuns(ctx context.Context, client *apiClient, w io.Writer, limit int) error {
	resp, err := client.get(ctx, "/api/runs?limit="+strconv.Itoa(limit))
	if err != nil {
		return err
	}
	var runs []runRow
	if err := decodeJSON(resp, &runs); err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs yet.")
		return nil
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		status := r.Status
		switch {
		case r.FromCache:
			status += " (cache)"
		case r.LastOrigin != "":
			status += " (" + r.LastOrigin + ")"
		}
		created, _ := time.Parse(time.RFC3339, r.CreatedAt)
		rows[i] = []string{
			shortID(r.ID),
			status,
			strconv.Itoa(r.Attempts),
			elapsed(r.DurationMs),
			r.Source,
			relTime(created),
			truncateText(r.Topic, 48),
		}
	}
	headers := []string{"ID", "Status", "Attempts", "Took", "Source", "When", "Topic"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight}
	fmt.Fprintln(w, renderTable(headers, rows, aligns))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- run (in-process) ---

var runCmd = &cobra.Command{
	Use:   "run <topic...>",
	Short: "Generate a video in this process, without a server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLocal(strings.Join(args, " "), cmd.OutOrStdout())
	},
}

func runLocal(topicText string, w io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	printStep("Generating %q", topicText)
	started := time.Now()
	res, err := a.pipeline.ProcessTopic(ctx, topicText)
	a.recorder.Record(history.SourceCLI, topicText, started, res, err)

	var ex *pipeline.ExhaustedError
	if errors.As(err, &ex) {
		printError("no video after %d attempts", ex.Attempts)
		printStatus("Last error", "[%s] %s", ex.Last.Origin, truncateText(ex.Last.Text, 2000))
		return err
	}
	if err != nil {
		return err
	}

	if res.FromCache {
		printSuccess("Served from cache")
	} else {
		printSuccess("Rendered in %d attempt(s), %s", res.Attempts, res.Duration.Round(time.Second))
	}
	fmt.Fprintln(w, res.VideoPath)
	if res.NarratedPath != "" {
		fmt.Fprintln(w, res.NarratedPath)
	}
	return nil
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or prune the topic cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached topics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return listCache(cache.New(cfg.CachePath(), nil), cmd.OutOrStdout())
	},
}

func listCache(c *cache.Cache, w io.Writer) error {
	entries := c.List()
	if len(entries) == 0 {
		fmt.Fprintln(w, "Cache is empty.")
		return nil
	}
	rows := make([][]string, len(entries))
	for i, e := range entries {
		video := e.VideoPath
		if _, err := os.Stat(video); err != nil {
			video = colorize(colorYellow, "missing: ") + video
		}
		rows[i] = []string{truncateText(e.Topic, 40), e.Resolution, fileSize(e.VideoPath), relTime(e.CachedAt), video}
	}
	headers := []string{"Topic", "Resolution", "Size", "Cached", "Video"}
	fmt.Fprintln(w, renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	return nil
}

var cacheRemoveCmd = &cobra.Command{
	Use:   "remove <topic...>",
	Short: "Forget a topic so the next request renders it again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		topicText := strings.Join(args, " ")
		if err := cache.New(cfg.CachePath(), nil).Remove(topicText); err != nil {
			return err
		}
		printSuccess("Removed %q from cache", topicText)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd, cacheRemoveCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		rows := make([][]string, len(keys))
		for i, k := range keys {
			rows[i] = []string{k.Key, k.Value, k.EnvVar}
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Value", "Env"}, rows, nil))
		fmt.Fprintf(cmd.OutOrStdout(), "config file: %s\n", config.ConfigFilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
