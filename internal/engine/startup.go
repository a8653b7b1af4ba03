package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// ErrUnreachable is returned by EnsureReady when the backend does not answer.
var ErrUnreachable = errors.New("llm backend is not reachable; check llm.base_url or start the local server")

// progressStep is the percentage a download must advance before another
// progress line is written.
const progressStep = 10

// EnsureReady fails fast when the backend is down and pulls model if the
// backend does not have it. Pull progress goes to w.
func EnsureReady(ctx context.Context, e Engine, model string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return ErrUnreachable
	}
	if model != "" && !e.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: pulling\n", model)
		if err := e.PullModel(ctx, model, pullReporter(w)); err != nil {
			return fmt.Errorf("pulling model %s: %w", model, err)
		}
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}

// pullReporter writes a line per status change and per progressStep of a
// download, rather than one per streamed update.
func pullReporter(w io.Writer) func(PullProgress) {
	var (
		lastStatus string
		lastPct    = -progressStep
	)
	return func(p PullProgress) {
		if p.Status != lastStatus {
			lastStatus, lastPct = p.Status, -progressStep
			if p.Total == 0 {
				fmt.Fprintf(w, "  %s\n", p.Status)
				return
			}
		}
		if p.Total == 0 {
			return
		}
		pct := int(p.Completed * 100 / p.Total)
		if pct-lastPct < progressStep && pct != 100 {
			return
		}
		lastPct = pct
		fmt.Fprintf(w, "  %s %d%% (%s / %s)\n", p.Status, pct,
			humanize.Bytes(uint64(p.Completed)), humanize.Bytes(uint64(p.Total)))
	}
}
