package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type mockEngine struct {
	isRunning bool
	models    map[string]bool
	pulled    []string
	pullErr   error
}

func (m *mockEngine) Chat(_ context.Context, _ string, _ []Message, _ *Schema) (string, error) {
	return "", nil
}
func (m *mockEngine) IsRunning(_ context.Context) bool             { return m.isRunning }
func (m *mockEngine) HasModel(_ context.Context, name string) bool { return m.models[name] }
func (m *mockEngine) PullModel(_ context.Context, name string, cb func(PullProgress)) error {
	m.pulled = append(m.pulled, name)
	if cb != nil {
		cb(PullProgress{Status: "downloading", Total: 10, Completed: 5})
		cb(PullProgress{Status: "success"})
	}
	return m.pullErr
}

func TestEnsureReady_ModelPresent(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{"qwen2.5-coder": true}}
	if err := EnsureReady(context.Background(), m, "qwen2.5-coder", io.Discard); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 0 {
		t.Errorf("expected no pulls, got %v", m.pulled)
	}
}

func TestEnsureReady_PullsMissing(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}}
	var out strings.Builder
	if err := EnsureReady(context.Background(), m, "qwen2.5-coder", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(m.pulled) != 1 || m.pulled[0] != "qwen2.5-coder" {
		t.Errorf("pulled = %v", m.pulled)
	}
	if !strings.Contains(out.String(), "50%") {
		t.Errorf("progress output missing percentage: %q", out.String())
	}
}

func TestEnsureReady_PullFails(t *testing.T) {
	m := &mockEngine{isRunning: true, models: map[string]bool{}, pullErr: errors.New("disk full")}
	err := EnsureReady(context.Background(), m, "qwen2.5-coder", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("err = %v, want wrapped pull error", err)
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	m := &mockEngine{isRunning: false}
	err := EnsureReady(context.Background(), m, "qwen2.5-coder", io.Discard)
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestPullReporter_ThrottlesProgress(t *testing.T) {
	var out strings.Builder
	report := pullReporter(&out)

	report(PullProgress{Status: "pulling manifest"})
	for done := int64(0); done <= 1000; done += 10 {
		report(PullProgress{Status: "pulling 4f2a", Total: 1000, Completed: done})
	}
	report(PullProgress{Status: "success"})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// manifest, 0..100 in steps of 10, success
	if len(lines) != 13 {
		t.Fatalf("got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[6], "50% (500 B / 1.0 kB)") {
		t.Errorf("line 6 = %q", lines[6])
	}
	if lines[12] != "  success" {
		t.Errorf("last line = %q", lines[12])
	}
}
