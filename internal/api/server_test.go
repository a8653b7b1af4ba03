package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/lectern/internal/catalog"
	"github.com/kalambet/lectern/internal/content"
	"github.com/kalambet/lectern/internal/history"
	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/storage"
	"github.com/kalambet/lectern/internal/topic"
)

// --- mocks ---

type mockProcessor struct {
	mu     sync.Mutex
	topics []string
	ctxErr error
	fn     func(topic string) (pipeline.Result, error)
}

func (m *mockProcessor) ProcessTopic(ctx context.Context, topicText string) (pipeline.Result, error) {
	m.mu.Lock()
	m.topics = append(m.topics, topicText)
	m.ctxErr = ctx.Err()
	m.mu.Unlock()
	return m.fn(topicText)
}

type mockQuizzer struct {
	quiz content.Quiz
	err  error
}

func (m *mockQuizzer) Quiz(_ context.Context, _, videoID string) (content.Quiz, error) {
	q := m.quiz
	q.VideoID = videoID
	return q, m.err
}

type testEnv struct {
	deps  Deps
	store *storage.Store
	proc  *mockProcessor
	media string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	media := t.TempDir()
	cat := catalog.New(media, "480p15")
	proc := &mockProcessor{fn: func(topicText string) (pipeline.Result, error) {
		video := writeVideo(t, cat, topicText)
		return pipeline.Result{
			Topic:     topicText,
			ModuleID:  topic.ModuleID(topicText),
			ClassID:   topic.ClassID(topicText),
			VideoPath: video,
			Narration: "Narration text.",
			Attempts:  1,
		}, nil
	}}

	return &testEnv{
		deps: Deps{
			Pipeline: proc,
			Store:    store,
			Catalog:  cat,
			Recorder: history.NewRecorder(store, nil),
		},
		store: store,
		proc:  proc,
		media: media,
	}
}

func writeVideo(t *testing.T, cat *catalog.Catalog, topicText string) string {
	t.Helper()
	dir := filepath.Join(cat.VideosDir(), topic.ModuleID(topicText), "480p15")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	video := filepath.Join(dir, topic.ClassID(topicText)+".mp4")
	if err := os.WriteFile(video, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	srt := "1\n00:00:00,000 --> 00:00:02,000\nNarration text.\n"
	if err := os.WriteFile(strings.TrimSuffix(video, ".mp4")+".srt", []byte(srt), 0o644); err != nil {
		t.Fatal(err)
	}
	return video
}

func do(t *testing.T, h http.Handler, method, url, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Message
}

// --- tests ---

func TestHealth(t *testing.T) {
	h := NewHandler(newTestEnv(t).deps)
	rr := do(t, h, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestGenerateVideo_Success(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodPost, "/api/generate-video", `{"prompt":"Black Holes"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var got catalog.Generated
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.VideoURL != "/videos/generated_black_holes/480p15/BlackHoles.mp4" {
		t.Errorf("VideoURL = %q", got.VideoURL)
	}
	if got.Title != "Black Holes" || got.CaptionContent != "Narration text." {
		t.Errorf("got = %+v", got)
	}
	if env.proc.ctxErr != nil {
		t.Errorf("pipeline context already done: %v", env.proc.ctxErr)
	}

	runs, err := env.store.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != storage.RunSucceeded || runs[0].Source != history.SourceAPI {
		t.Errorf("runs = %+v", runs)
	}
}

func TestGenerateVideo_MissingPrompt(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.deps)

	for _, body := range []string{`{}`, `{"prompt":"   "}`} {
		rr := do(t, h, http.MethodPost, "/api/generate-video", body, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", body, rr.Code)
		}
		if msg := errorMessage(t, rr); msg != "Prompt is required" {
			t.Errorf("message = %q", msg)
		}
	}
	if len(env.proc.topics) != 0 {
		t.Errorf("pipeline called %d times", len(env.proc.topics))
	}
}

func TestGenerateVideo_InvalidBody(t *testing.T) {
	h := NewHandler(newTestEnv(t).deps)
	rr := do(t, h, http.MethodPost, "/api/generate-video", `not json`, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestGenerateVideo_Exhausted(t *testing.T) {
	env := newTestEnv(t)
	env.proc.fn = func(topicText string) (pipeline.Result, error) {
		return pipeline.Result{}, &pipeline.ExhaustedError{
			Topic:    topicText,
			Attempts: 4,
			Last:     pipeline.LastError{Origin: pipeline.OriginRender, Text: "NameError"},
		}
	}
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodPost, "/api/generate-video", `{"prompt":"Entropy"}`, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != ExhaustedMessage {
		t.Errorf("message = %q", msg)
	}

	runs, _ := env.store.RecentRuns(10)
	if len(runs) != 1 || runs[0].Status != storage.RunFailed || runs[0].LastOrigin != "render" || runs[0].Attempts != 4 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestGenerateVideo_InternalError(t *testing.T) {
	env := newTestEnv(t)
	env.proc.fn = func(string) (pipeline.Result, error) {
		return pipeline.Result{}, errors.New("disk full")
	}
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodPost, "/api/generate-video", `{"prompt":"Entropy"}`, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "An internal error occurred: disk full" {
		t.Errorf("message = %q", msg)
	}
}

func TestWriteRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Token = "secret"
	h := NewHandler(env.deps)

	for _, path := range []string{"/api/generate-video", "/api/jobs", "/api/generate-quiz"} {
		rr := do(t, h, http.MethodPost, path, `{"prompt":"Entropy"}`, "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", path, rr.Code)
		}
		rr = do(t, h, http.MethodPost, path, `{"prompt":"Entropy"}`, "wrong")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s wrong token: status = %d, want 401", path, rr.Code)
		}
	}

	rr := do(t, h, http.MethodPost, "/api/generate-video", `{"prompt":"Entropy"}`, "secret")
	if rr.Code != http.StatusOK {
		t.Errorf("with token: status = %d, body = %s", rr.Code, rr.Body.String())
	}

	// Reads stay open.
	rr = do(t, h, http.MethodGet, "/api/list-videos", "", "")
	if rr.Code != http.StatusOK {
		t.Errorf("list-videos: status = %d, want 200", rr.Code)
	}
}

func TestListVideos(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodGet, "/api/list-videos", "", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("empty list: status = %d, body = %q", rr.Code, rr.Body.String())
	}

	writeVideo(t, env.deps.Catalog, "Black Holes")
	rr = do(t, h, http.MethodGet, "/api/list-videos", "", "")
	var got []catalog.Summary
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "black_holes" || got[0].Title != "Black Holes" {
		t.Errorf("got = %+v", got)
	}
}

func TestVideoDetails(t *testing.T) {
	env := newTestEnv(t)
	writeVideo(t, env.deps.Catalog, "Black Holes")
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodGet, "/api/video-details/black_holes", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got catalog.Details
	json.NewDecoder(rr.Body).Decode(&got)
	if got.VideoFileURL != "/videos/generated_black_holes/480p15/BlackHoles.mp4" {
		t.Errorf("VideoFileURL = %q", got.VideoFileURL)
	}
	if !strings.Contains(got.CaptionContent, "00:00:00,000 --> 00:00:02,000") {
		t.Errorf("CaptionContent = %q", got.CaptionContent)
	}

	rr = do(t, h, http.MethodGet, "/api/video-details/nothing_here", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing: status = %d, want 404", rr.Code)
	}
	if msg := errorMessage(t, rr); msg != "Video not found" {
		t.Errorf("message = %q", msg)
	}
}

func TestServeVideo(t *testing.T) {
	env := newTestEnv(t)
	writeVideo(t, env.deps.Catalog, "Black Holes")
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodGet, "/videos/generated_black_holes/480p15/BlackHoles.mp4", "", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "mp4" {
		t.Errorf("status = %d, body = %q", rr.Code, rr.Body.String())
	}

	rr = do(t, h, http.MethodGet, "/videos/generated_black_holes/480p15/Missing.mp4", "", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing file: status = %d, want 404", rr.Code)
	}
}

func TestGenerateQuiz(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Quizzer = &mockQuizzer{quiz: content.Quiz{
		QuizID:    "quiz_black_holes",
		Questions: []content.Question{{ID: 1, Text: "What bends light?", Options: []string{"Gravity", "Sound"}, Answer: "Gravity"}},
	}}
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodPost, "/api/generate-quiz", `{"caption_content":"Gravity bends light.","video_id":"black_holes"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var got content.Quiz
	json.NewDecoder(rr.Body).Decode(&got)
	if got.VideoID != "black_holes" || len(got.Questions) != 1 {
		t.Errorf("got = %+v", got)
	}

	rr = do(t, h, http.MethodPost, "/api/generate-quiz", `{"video_id":"black_holes"}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("missing caption: status = %d, want 400", rr.Code)
	}
}

func TestGenerateQuiz_Errors(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.deps)
	body := `{"caption_content":"text","video_id":"v"}`

	if rr := do(t, h, http.MethodPost, "/api/generate-quiz", body, ""); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("no quizzer: status = %d, want 503", rr.Code)
	}

	env.deps.Quizzer = &mockQuizzer{err: content.ErrInvalidQuiz}
	h = NewHandler(env.deps)
	if rr := do(t, h, http.MethodPost, "/api/generate-quiz", body, ""); rr.Code != http.StatusBadGateway {
		t.Errorf("quiz error: status = %d, want 502", rr.Code)
	}
}

func TestEnqueueAndGetJob(t *testing.T) {
	env := newTestEnv(t)
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodPost, "/api/jobs", `{"prompt":"Fourier Series"}`, "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var created map[string]string
	json.NewDecoder(rr.Body).Decode(&created)
	if created["id"] == "" || created["status"] != storage.JobPending {
		t.Fatalf("created = %v", created)
	}

	if err := env.store.CompleteJob(created["id"], `{"video_url":"/videos/x.mp4"}`); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	rr = do(t, h, http.MethodGet, "/api/jobs/"+created["id"], "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rr.Code)
	}
	var got struct {
		Status string          `json:"status"`
		Topic  string          `json:"topic"`
		Result json.RawMessage `json:"result"`
	}
	json.NewDecoder(rr.Body).Decode(&got)
	if got.Status != storage.JobCompleted || got.Topic != "Fourier Series" {
		t.Errorf("got = %+v", got)
	}
	if !strings.Contains(string(got.Result), "/videos/x.mp4") {
		t.Errorf("Result = %s", got.Result)
	}

	rr = do(t, h, http.MethodGet, "/api/jobs/does-not-exist", "", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing job: status = %d, want 404", rr.Code)
	}
}

func TestEnqueueJob_MissingPrompt(t *testing.T) {
	h := NewHandler(newTestEnv(t).deps)
	rr := do(t, h, http.MethodPost, "/api/jobs", `{"prompt":""}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestListRuns(t *testing.T) {
	env := newTestEnv(t)
	for i := range 3 {
		run := storage.Run{
			ID:        "run-" + string(rune('a'+i)),
			Topic:     "Topic",
			ModuleID:  "generated_topic",
			Status:    storage.RunSucceeded,
			Attempts:  1,
			Source:    history.SourceCLI,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := env.store.SaveRun(run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	h := NewHandler(env.deps)

	rr := do(t, h, http.MethodGet, "/api/runs?limit=2", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var got []runResponse
	json.NewDecoder(rr.Body).Decode(&got)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "run-c" {
		t.Errorf("first = %s, want run-c", got[0].ID)
	}
}

func TestParseIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 20},
		{"limit=5", 5},
		{"limit=500", 100},
		{"limit=-1", 20},
		{"limit=abc", 20},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/runs?"+tt.query, nil)
		if got := parseIntParam(r, "limit", 20, 100); got != tt.want {
			t.Errorf("parseIntParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
