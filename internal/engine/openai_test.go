package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/lectern/internal/llm"
)

func TestOpenAIEngine_Chat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"a\":1}"}}]}`)
	}))
	defer srv.Close()

	temp := 0.3
	e := NewOpenAIEngine(llm.NewClientWithBaseURL("k", srv.URL), &temp)
	got, err := e.Chat(context.Background(), "m", []Message{{Role: "user", Content: "q"}},
		&Schema{Type: "object", Properties: map[string]*Schema{"a": {Type: "integer"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("got %q", got)
	}
	rf, ok := body["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_schema" {
		t.Errorf("response_format = %v", body["response_format"])
	}
	if body["temperature"] != 0.3 {
		t.Errorf("temperature = %v, want 0.3", body["temperature"])
	}
}

func TestOpenAIEngine_IsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"object":"list","data":[]}`)
	}))
	defer srv.Close()

	e := NewOpenAIEngine(llm.NewClientWithBaseURL("k", srv.URL), nil)
	if !e.IsRunning(context.Background()) {
		t.Error("IsRunning = false, want true")
	}
	if !e.HasModel(context.Background(), "anything") {
		t.Error("HasModel = false, want true")
	}
	if err := e.PullModel(context.Background(), "x", nil); err == nil {
		t.Error("PullModel = nil, want unsupported error")
	}
}
