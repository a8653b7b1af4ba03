package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/lectern/internal/engine"
)

const quizPrompt = `You are a quiz creator. Based on the transcript, create a JSON quiz with 4 multiple-choice questions. Each must have 'id', 'text', 'options' (array of 4 strings), and 'answer' (one of the options). Output only the JSON object.`

// Question is one multiple-choice item.
type Question struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// Quiz is the structured quiz for one video.
type Quiz struct {
	QuizID    string     `json:"quiz_id"`
	VideoID   string     `json:"video_id"`
	Questions []Question `json:"questions"`
}

// ErrInvalidQuiz is returned when the model reply cannot be used as a quiz.
var ErrInvalidQuiz = errors.New("invalid quiz from model")

// Quizzer builds comprehension quizzes from narration text.
type Quizzer struct {
	client Chatter
	model  string
}

// NewQuizzer creates a Quizzer.
func NewQuizzer(client Chatter, model string) *Quizzer {
	return &Quizzer{client: client, model: model}
}

// Quiz asks the model for a quiz about transcript and tags it with videoID.
func (q *Quizzer) Quiz(ctx context.Context, transcript, videoID string) (Quiz, error) {
	if strings.TrimSpace(transcript) == "" {
		return Quiz{}, errors.New("transcript is required")
	}
	messages := []engine.Message{
		{Role: "system", Content: quizPrompt},
		{Role: "user", Content: "Transcript:\n---\n" + transcript + "\n---"},
	}

	raw, err := q.client.Chat(ctx, q.model, messages, quizSchema())
	if err != nil {
		return Quiz{}, fmt.Errorf("quiz chat: %w", err)
	}

	var out Quiz
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &out); err != nil {
		return Quiz{}, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	if len(out.Questions) == 0 {
		return Quiz{}, fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}

	out.VideoID = videoID
	if out.QuizID == "" {
		out.QuizID = "quiz_" + videoID
	}
	return out, nil
}

func stripJSONFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func quizSchema() *engine.Schema {
	return &engine.Schema{
		Type: "object",
		Properties: map[string]*engine.Schema{
			"quiz_id":  {Type: "string"},
			"video_id": {Type: "string"},
			"questions": {
				Type: "array",
				Items: &engine.Schema{
					Type: "object",
					Properties: map[string]*engine.Schema{
						"id":      {Type: "integer"},
						"text":    {Type: "string"},
						"options": {Type: "array", Items: &engine.Schema{Type: "string"}},
						"answer":  {Type: "string"},
					},
					Required: []string{"id", "text", "options", "answer"},
				},
			},
		},
		Required: []string{"quiz_id", "video_id", "questions"},
	}
}
