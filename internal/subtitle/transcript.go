// Package subtitle turns SRT caption files into plain narration text.
package subtitle

import (
	"os"
	"strconv"
	"strings"
)

// MissingPlaceholder is returned when no caption file exists.
const MissingPlaceholder = "Caption file not found."

// ExtractTranscript reads an SRT file and returns its cue text joined by
// single spaces. A missing or unreadable file yields MissingPlaceholder.
func ExtractTranscript(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return MissingPlaceholder
	}
	return Transcript(string(data))
}

// Transcript strips cue indices and timing lines from SRT content.
func Transcript(content string) string {
	content = strings.TrimPrefix(content, "\ufeff")
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var parts []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isNumeric(line) || strings.Contains(line, "-->") {
			continue
		}
		parts = append(parts, line)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
