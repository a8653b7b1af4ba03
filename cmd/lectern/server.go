package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/lectern/internal/api"
	"github.com/kalambet/lectern/internal/config"
	"github.com/kalambet/lectern/internal/ollama"
	"github.com/kalambet/lectern/internal/worker"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the lectern server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdin/stdout")
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running lectern server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lectern system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

const maxConnections = 64

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "lectern.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	printVersion()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level, os.Stderr)
	slog.SetDefault(logger)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	// Jobs left running by a crash would otherwise never be claimed again.
	if n, err := a.store.RequeueRunningJobs(); err != nil {
		slog.Warn("requeueing interrupted jobs", "error", err)
	} else if n > 0 {
		slog.Info("requeued interrupted jobs", "count", n)
	}
	if cfg.Server.APIToken == "" {
		printWarning("server.api_token is not set; write endpoints are unauthenticated")
	}

	handler := api.NewHandler(api.Deps{
		Pipeline: a.pipeline,
		Store:    a.store,
		Catalog:  a.catalog,
		Quizzer:  a.quizzer,
		Recorder: a.recorder,
		Token:    cfg.Server.APIToken,
		Logger:   logger.With("component", "api"),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	// Each synchronous generate request holds a connection for minutes.
	ln = netutil.LimitListener(ln, maxConnections)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "lectern listening on %s\n", addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	w := worker.NewWorker(a.store, a.pipeline, a.catalog, a.recorder, 500*time.Millisecond)
	g.Go(func() error {
		w.Run(gctx)
		return nil
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Pipeline: a.pipeline,
			Store:    a.store,
			Catalog:  a.catalog,
			Recorder: a.recorder,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("lectern is not running (no PID file): %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("could not find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		removePIDFile(pidPath)
		return fmt.Errorf("could not stop lectern (PID %d): %w", pid, err)
	}

	printSuccess("Sent stop signal to lectern (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	running := false
	if resp, err := client.Get(serverURL + "/health"); err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("LLM", "%s via %s", cfg.LLM.Model, cfg.LLM.Provider)
	if cfg.LLM.Provider == config.ProviderOllama {
		if v, err := ollama.New(cfg.Ollama.BaseURL).Version(ctx); err != nil {
			printStatus("Ollama", "not running")
		} else {
			printStatus("Ollama", "%s at %s", v, cfg.Ollama.BaseURL)
		}
	}

	for _, tool := range requiredTools(cfg) {
		if path, err := lookPath(tool); err == nil {
			printStatus(tool, "%s", path)
		} else {
			printStatus(tool, "%s", colorize(colorRed, "not found"))
		}
	}

	if running {
		c := &apiClient{baseURL: serverURL, token: cfg.Server.APIToken, httpClient: client}
		if resp, err := c.get(ctx, "/api/list-videos"); err == nil {
			var videos []map[string]any
			if decodeJSON(resp, &videos) == nil {
				printStatus("Videos", "%d", len(videos))
			}
		}
	}

	printStatus("Quality", "%s, timeout %s, %d attempts", cfg.Render.Quality, cfg.Render.Timeout, cfg.Render.MaxAttempts)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Media dir", "%s", cfg.Storage.MediaDir)
	return nil
}

var lookPath = exec.LookPath

func requiredTools(cfg config.Config) []string {
	tools := []string{cfg.Render.Binary}
	if cfg.Narration.Enabled {
		tools = append(tools, cfg.Narration.TTSBinary, cfg.Narration.FFmpegBinary)
	}
	return tools
}
