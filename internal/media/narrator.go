// Package media adds spoken narration to rendered videos using external
// speech and muxing tools.
package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultTTSBinary    = "edge-tts"
	DefaultVoice        = "en-US-GuyNeural"
	DefaultFFmpegBinary = "ffmpeg"
)

// ErrNothingToNarrate is returned when there is no usable narration text.
var ErrNothingToNarrate = errors.New("no narration text")

type commandRunner func(ctx context.Context, name string, args ...string) error

// Options configures a Narrator.
type Options struct {
	TTSBinary    string
	Voice        string
	FFmpegBinary string
	// Skip lists narration texts that must never be spoken, such as the
	// placeholder used when captions are missing.
	Skip   []string
	Logger *slog.Logger
}

// Narrator synthesizes speech and muxes it onto a video.
type Narrator struct {
	ttsBinary    string
	voice        string
	ffmpegBinary string
	skip         []string
	run          commandRunner
	logger       *slog.Logger
}

// New constructs a Narrator with defaults for unset options.
func New(opts Options) *Narrator {
	n := &Narrator{
		ttsBinary:    opts.TTSBinary,
		voice:        opts.Voice,
		ffmpegBinary: opts.FFmpegBinary,
		skip:         opts.Skip,
		run:          defaultCommandRunner,
		logger:       opts.Logger,
	}
	if n.ttsBinary == "" {
		n.ttsBinary = DefaultTTSBinary
	}
	if n.voice == "" {
		n.voice = DefaultVoice
	}
	if n.ffmpegBinary == "" {
		n.ffmpegBinary = DefaultFFmpegBinary
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (n *Narrator) WithCommandRunner(r commandRunner) {
	if n != nil && r != nil {
		n.run = r
	}
}

// Preflight checks that both external tools are on PATH.
func (n *Narrator) Preflight(ctx context.Context) error {
	g, _ := errgroup.WithContext(ctx)
	for _, bin := range []string{n.ttsBinary, n.ffmpegBinary} {
		g.Go(func() error {
			if _, err := exec.LookPath(bin); err != nil {
				return fmt.Errorf("narration tool %s: %w", bin, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Synthesize speaks text into audioPath. The text reaches the TTS tool
// through a file beside audioPath, never as an argument, so narration that
// starts with "-" is not read as a flag.
func (n *Narrator) Synthesize(ctx context.Context, text, audioPath string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNothingToNarrate
	}
	textPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".txt"
	if err := os.WriteFile(textPath, []byte(text), 0o644); err != nil {
		return fmt.Errorf("synthesize speech: write text: %w", err)
	}
	defer os.Remove(textPath)

	args := []string{
		"--voice", n.voice,
		"--file", textPath,
		"--write-media", audioPath,
	}
	if err := n.run(ctx, n.ttsBinary, args...); err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	return nil
}

// Mux combines video and audio into out. The result is written beside out
// and renamed into place so a failed mux never leaves a truncated file.
func (n *Narrator) Mux(ctx context.Context, video, audio, out string) error {
	ext := filepath.Ext(out)
	partial := strings.TrimSuffix(out, ext) + ".partial" + ext
	args := []string{
		"-y",
		"-i", video,
		"-i", audio,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		partial,
	}
	if err := n.run(ctx, n.ffmpegBinary, args...); err != nil {
		os.Remove(partial)
		return fmt.Errorf("mux audio: %w", err)
	}
	if err := os.Rename(partial, out); err != nil {
		os.Remove(partial)
		return fmt.Errorf("mux audio: %w", err)
	}
	return nil
}

// Narrate speaks transcript over video and writes the result to out.
func (n *Narrator) Narrate(ctx context.Context, video, transcript, out string) error {
	text := strings.TrimSpace(transcript)
	if text == "" {
		return ErrNothingToNarrate
	}
	for _, s := range n.skip {
		if text == s {
			return ErrNothingToNarrate
		}
	}

	dir, err := os.MkdirTemp("", "lectern-tts-*")
	if err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	defer os.RemoveAll(dir)

	start := time.Now()
	audio := filepath.Join(dir, "narration.mp3")
	if err := n.Synthesize(ctx, text, audio); err != nil {
		return err
	}
	if err := n.Mux(ctx, video, audio, out); err != nil {
		return err
	}

	n.logger.Info("narration added", "video", video, "out", out,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
