package content

import (
	"fmt"
	"strings"

	"github.com/kalambet/lectern/internal/engine"
)

const systemPrompt = `You are an expert educator and Manim Community Edition animator. You turn a topic into a short, self-contained explainer video for students.

Respond in exactly this layout and nothing else:

MANIM_SCRIPT:
` + "```python" + `
<complete python source>
` + "```" + `

TRANSCRIPT:
<the narration, plain prose, one or two short paragraphs>

Script rules:
- Start with "from manim import *".
- Declare exactly one scene class, named exactly as requested, subclassing Scene. Helper classes must not subclass any Scene type.
- Put the class declaration on a single line, e.g. "class FourierSeries(Scene):".
- Narrate with self.add_subcaption("...", duration=...) or the subcaption argument of self.play so captions are written next to the video.
- Use only built-in Manim objects. No images, SVG files, sounds, network access or LaTeX packages beyond the defaults.
- Keep the total runtime under 60 seconds and avoid unbounded loops or updaters that never finish.`

const repairInstructions = `The Manim script below failed. Fix it so it renders cleanly with Manim Community Edition.
Keep the same scene class name and the same teaching content unless the error requires a change.
Reply in the same MANIM_SCRIPT / TRANSCRIPT layout as before.`

// BuildGeneratePrompt constructs the messages for a first attempt.
func BuildGeneratePrompt(topic, classID string) []engine.Message {
	user := fmt.Sprintf("Topic: %s\nScene class name: %s\n\nPlease generate a Manim script and transcript for this topic that is suitable for students.",
		strings.TrimSpace(topic), classID)
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}

// BuildRepairPrompt constructs the messages for a repair attempt.
func BuildRepairPrompt(previous, errText string) []engine.Message {
	var sb strings.Builder
	sb.WriteString(repairInstructions)
	sb.WriteString("\n\n[Previous script]\n```python\n")
	sb.WriteString(strings.TrimSpace(previous))
	sb.WriteString("\n```\n\n[Error]\n")
	sb.WriteString(strings.TrimSpace(errText))

	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
