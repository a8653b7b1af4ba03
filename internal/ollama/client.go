// Package ollama talks to a local Ollama server: model listing, pulls and
// non-streamed chat.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	probeTimeout = 2 * time.Second
	listTimeout  = 10 * time.Second

	// errBodyLimit caps how much of a failed response is read for the error.
	errBodyLimit = 4 << 10
)

// ErrTruncated is returned by Chat when the reply hit the token limit.
var ErrTruncated = errors.New("ollama: reply truncated at token limit")

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama: HTTP %d", e.Status)
	}
	return fmt.Sprintf("ollama: HTTP %d: %s", e.Status, e.Message)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are model parameters sent with a chat request. Zero values are
// left to the server's defaults.
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	// NumCtx is the context window in tokens.
	NumCtx int `json:"num_ctx,omitempty"`
	// NumPredict caps the reply length in tokens.
	NumPredict int `json:"num_predict,omitempty"`
}

// PullProgress is one line of the streamed pull response.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	http        *http.Client
	chatTimeout time.Duration
	keepAlive   string
}

// New creates a Client for the server at baseURL. Requests carry no client
// timeout; bound them through the context or WithTimeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
	}
}

// WithTimeout bounds each chat request. Pulls are not affected.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.chatTimeout = d
	return c
}

// WithKeepAlive asks the server to keep the model loaded for d after each
// chat.
func (c *Client) WithKeepAlive(d time.Duration) *Client {
	if d > 0 {
		c.keepAlive = d.String()
	}
	return c
}

// do sends a request and returns the response when the status is 200. Any
// other status is turned into an *APIError carrying the server's message.
func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()
	return nil, readAPIError(resp)
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	apiErr := &APIError{Status: resp.StatusCode}
	var shaped struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &shaped) == nil && shaped.Error != "" {
		apiErr.Message = shaped.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Version returns the server version reported by /api/version.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var v struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, "/api/version", &v); err != nil {
		return "", err
	}
	return v.Version, nil
}

// IsRunning reports whether the server answers at all.
func (c *Client) IsRunning(ctx context.Context) bool {
	_, err := c.Version(ctx)
	return err == nil
}

// ListModels returns the names of the locally installed models, tags included.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// HasModel reports whether name is installed. A name without a tag matches
// any tag of that model.
func (c *Client) HasModel(ctx context.Context, name string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m == name || strings.HasPrefix(m, name+":") {
			return true
		}
	}
	return false
}

// PullModel downloads name and blocks until the stream ends. onProgress may
// be nil. An error line in the stream aborts the pull.
func (c *Client) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/pull", map[string]any{
		"model":  name,
		"stream": true,
	})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", name, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var p PullProgress
		err := dec.Decode(&p)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pulling %s: reading progress: %w", name, err)
		}
		if p.Error != "" {
			return fmt.Errorf("pulling %s: %s", name, p.Error)
		}
		if onProgress != nil {
			onProgress(p)
		}
	}
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	Format    any       `json:"format,omitempty"`
	Options   *Options  `json:"options,omitempty"`
	KeepAlive string    `json:"keep_alive,omitempty"`
}

type chatResponse struct {
	Message    Message `json:"message"`
	DoneReason string  `json:"done_reason,omitempty"`
}

// Chat returns the assistant reply to messages. A non-nil format is sent as
// the JSON schema the reply must follow.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, format any, opts *Options) (string, error) {
	if c.chatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.chatTimeout)
		defer cancel()
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/chat", chatRequest{
		Model:     model,
		Messages:  messages,
		Format:    format,
		Options:   opts,
		KeepAlive: c.keepAlive,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding chat reply: %w", err)
	}
	if out.DoneReason == "length" {
		return "", ErrTruncated
	}
	return out.Message.Content, nil
}
