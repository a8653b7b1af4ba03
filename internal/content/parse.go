package content

import (
	"regexp"
	"strings"
)

// Response is the parsed model output.
type Response struct {
	Script     string
	Transcript string
}

var (
	fencedAfterMarker = regexp.MustCompile("(?s)MANIM_SCRIPT:\\s*```(?:python|py)?[ \\t]*\\n(.*?)\\n?```")
	untilTranscript   = regexp.MustCompile(`(?s)MANIM_SCRIPT:\s*(.*?)(?:TRANSCRIPT:|$)`)
	transcriptBlock   = regexp.MustCompile(`(?is)TRANSCRIPT:\s*(.*?)(?:MANIM_SCRIPT:|$)`)
	anyPythonFence    = regexp.MustCompile("(?s)```(?:python|py)[ \\t]*\\n(.*?)\\n?```")
)

// ParseResponse pulls the script and transcript out of free-form model text.
// Lookups fall back in order: a fenced block after MANIM_SCRIPT, the text
// between MANIM_SCRIPT and TRANSCRIPT, the first python fence, and finally
// the whole reply when it looks like source code.
func ParseResponse(raw string) Response {
	var r Response

	switch {
	case fencedAfterMarker.MatchString(raw):
		r.Script = fencedAfterMarker.FindStringSubmatch(raw)[1]
	case untilTranscript.MatchString(raw):
		r.Script = stripFences(untilTranscript.FindStringSubmatch(raw)[1])
	case anyPythonFence.MatchString(raw):
		r.Script = anyPythonFence.FindStringSubmatch(raw)[1]
	case strings.Contains(raw, "class "):
		r.Script = stripFences(raw)
	}
	r.Script = strings.TrimSpace(r.Script)

	if m := transcriptBlock.FindStringSubmatch(raw); m != nil {
		r.Transcript = strings.TrimSpace(m[1])
	}
	return r
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return s
}
