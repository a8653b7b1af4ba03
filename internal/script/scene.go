// Package script inspects generated Manim source before it is rendered.
package script

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrFormat is matched by every FormatError.
var ErrFormat = errors.New("script has no unique scene declaration")

// FormatError reports how many scene declarations were found.
type FormatError struct {
	Matches []string
}

func (e *FormatError) Error() string {
	if len(e.Matches) == 0 {
		return "script format: no scene class declaration found"
	}
	return fmt.Sprintf("script format: %d scene class declarations found (%s), expected exactly one",
		len(e.Matches), strings.Join(e.Matches, ", "))
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// SceneBases are the base classes the renderer can execute directly.
var SceneBases = []string{"Scene", "MovingCameraScene", "ThreeDScene", "ZoomedScene"}

var declPattern = buildPattern(SceneBases)

func buildPattern(bases []string) *regexp.Regexp {
	quoted := make([]string, len(bases))
	for i, b := range bases {
		quoted[i] = regexp.QuoteMeta(b)
	}
	// class Name(Scene): with an optional module qualifier such as manim.Scene.
	return regexp.MustCompile(`(?m)^[ \t]*class[ \t]+([A-Za-z_][A-Za-z0-9_]*)[ \t]*\([ \t]*(?:[A-Za-z_][A-Za-z0-9_]*\.)*(?:` +
		strings.Join(quoted, "|") + `)[ \t]*\)[ \t]*:`)
}

// FindSceneIdentifier returns the name of the single scene class declared in src.
func FindSceneIdentifier(src string) (string, error) {
	found := declPattern.FindAllStringSubmatch(src, -1)
	if len(found) != 1 {
		names := make([]string, 0, len(found))
		for _, m := range found {
			names = append(names, m[1])
		}
		return "", &FormatError{Matches: names}
	}
	return found[0][1], nil
}
