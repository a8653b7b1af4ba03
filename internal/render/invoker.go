// Package render runs the manim command-line renderer and finds what it wrote.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultBinary  = "manim"
	DefaultTimeout = 300 * time.Second

	// waitDelay bounds how long Wait blocks on output pipes after the kill.
	waitDelay = 5 * time.Second

	narratedSuffix = "_narrated"
)

// Outcome is everything observed about one renderer run.
type Outcome struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Diagnostic returns the most useful text for a repair prompt: stderr,
// else stdout.
func (o Outcome) Diagnostic() string {
	if s := strings.TrimSpace(o.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(o.Stdout)
}

// Artifacts are the files produced by a successful render.
type Artifacts struct {
	VideoPath    string
	SubtitlePath string
	Resolution   string
}

// Options configures an Invoker.
type Options struct {
	Binary   string
	MediaDir string
	Quality  Quality
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Invoker spawns the renderer. It is safe for concurrent use; each call
// owns its subprocess.
type Invoker struct {
	binary   string
	mediaDir string
	quality  Quality
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates an Invoker, filling unset options with defaults.
func New(opts Options) *Invoker {
	inv := &Invoker{
		binary:   opts.Binary,
		mediaDir: opts.MediaDir,
		quality:  opts.Quality.normalize(),
		timeout:  opts.Timeout,
		logger:   opts.Logger,
	}
	if inv.binary == "" {
		inv.binary = DefaultBinary
	}
	if inv.timeout <= 0 {
		inv.timeout = DefaultTimeout
	}
	if inv.logger == nil {
		inv.logger = slog.Default()
	}
	if abs, err := filepath.Abs(inv.mediaDir); err == nil {
		inv.mediaDir = abs
	}
	// A binary given as a relative path would otherwise be looked up from
	// the script's directory.
	if strings.ContainsRune(inv.binary, filepath.Separator) {
		if abs, err := filepath.Abs(inv.binary); err == nil {
			inv.binary = abs
		}
	}
	return inv
}

// MediaDir is the root the renderer writes into.
func (inv *Invoker) MediaDir() string { return inv.mediaDir }

// Quality is the preset every render uses.
func (inv *Invoker) Quality() Quality { return inv.quality }

// Timeout is the wall-clock limit of one render.
func (inv *Invoker) Timeout() time.Duration { return inv.timeout }

// Render runs manim on scriptPath. A nonzero exit or a timeout is reported
// in the Outcome; the error return is reserved for failing to start the
// process at all. manim runs in the script's directory, so a relative
// scriptPath is resolved against the caller's working directory first.
func (inv *Invoker) Render(ctx context.Context, scriptPath, sceneID, outputName string) (Outcome, error) {
	scriptPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving script path: %w", err)
	}
	runCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	args := []string{
		inv.quality.Flag(),
		"--media_dir", inv.mediaDir,
		"-o", outputName,
		scriptPath,
		sceneID,
	}
	cmd := exec.CommandContext(runCtx, inv.binary, args...) //nolint:gosec
	cmd.Dir = filepath.Dir(scriptPath)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Outcome{}, fmt.Errorf("start %s: %w", inv.binary, err)
	}
	waitErr := cmd.Wait()

	out := Outcome{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		out.TimedOut = true
		out.ExitCode = -1
	case errors.As(waitErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	case waitErr != nil:
		out.ExitCode = -1
		if out.Stderr == "" {
			out.Stderr = waitErr.Error()
		}
	}

	inv.logger.Info("render finished",
		"scene", sceneID,
		"exit_code", out.ExitCode,
		"timed_out", out.TimedOut,
		"duration_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

// Locate finds the video written for a module and class. The conventional
// path is tried first. Otherwise every mp4 under the media root whose name
// contains classID is a candidate; candidates inside the module's own
// folder beat those elsewhere, an exact class name beats a partial one,
// and the newest file breaks remaining ties.
func (inv *Invoker) Locate(moduleID, classID string) (Artifacts, error) {
	res := inv.quality.Resolution()
	primary := filepath.Join(inv.mediaDir, "videos", moduleID, res, classID+".mp4")
	if isFile(primary) {
		return artifactsFor(primary), nil
	}

	moduleDir := filepath.Join(inv.mediaDir, "videos", moduleID) + string(filepath.Separator)
	var (
		best      string
		bestRank  int
		bestMTime time.Time
	)
	err := filepath.WalkDir(inv.mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == inv.mediaDir {
				return err
			}
			return nil
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if !strings.Contains(name, classID) || strings.HasSuffix(name, narratedSuffix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}

		rank := 0
		if strings.HasPrefix(path, moduleDir) {
			rank += 2
		}
		if name == classID {
			rank++
		}
		if best == "" || rank > bestRank || (rank == bestRank && info.ModTime().After(bestMTime)) {
			best, bestRank, bestMTime = path, rank, info.ModTime()
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Artifacts{}, fmt.Errorf("search %s: %w", inv.mediaDir, err)
	}
	if best == "" {
		return Artifacts{}, fmt.Errorf("%w: %s/%s", ErrArtifactNotFound, moduleID, classID)
	}

	inv.logger.Warn("video not at expected path, using search result",
		"expected", primary, "found", best)
	return artifactsFor(best), nil
}

// NarratedPath is where the narrated copy of video is written.
func NarratedPath(video string) string {
	ext := filepath.Ext(video)
	return strings.TrimSuffix(video, ext) + narratedSuffix + ext
}

func artifactsFor(video string) Artifacts {
	return Artifacts{
		VideoPath:    video,
		SubtitlePath: strings.TrimSuffix(video, filepath.Ext(video)) + ".srt",
		Resolution:   filepath.Base(filepath.Dir(video)),
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
