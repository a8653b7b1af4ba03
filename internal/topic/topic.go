// Package topic derives filesystem and class identifiers from a user topic.
package topic

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ModulePrefix is prepended to every slug to form the render module name.
const ModulePrefix = "generated_"

// ErrEmptyTopic is returned when a topic has no usable characters.
var ErrEmptyTopic = errors.New("topic has no alphanumeric characters")

var disallowed = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Slug maps a topic to lower-case [a-z0-9_].
func Slug(topic string) string {
	s := strings.ReplaceAll(strings.TrimSpace(topic), " ", "_")
	return strings.ToLower(disallowed.ReplaceAllString(s, ""))
}

// ModuleID is the script file stem the renderer uses as its output folder.
func ModuleID(topic string) string {
	return ModulePrefix + Slug(topic)
}

// ClassID is the PascalCase scene class name expected in the generated script.
func ClassID(topic string) string {
	return pascal(Slug(topic))
}

// ClassIDFromModule recovers the class id of an existing output folder.
func ClassIDFromModule(moduleID string) string {
	return pascal(strings.TrimPrefix(moduleID, ModulePrefix))
}

// Title renders a slug (or module id) for display: "fourier_series" -> "Fourier Series".
func Title(slug string) string {
	slug = strings.TrimPrefix(slug, ModulePrefix)
	words := strings.Fields(strings.ReplaceAll(slug, "_", " "))
	return cases.Title(language.Und).String(strings.Join(words, " "))
}

// Validate reports ErrEmptyTopic when the topic would yield an empty slug.
func Validate(topic string) error {
	if strings.Trim(Slug(topic), "_") == "" {
		return ErrEmptyTopic
	}
	return nil
}

func pascal(slug string) string {
	caser := cases.Title(language.Und)
	var sb strings.Builder
	for _, part := range strings.Split(slug, "_") {
		if part == "" {
			continue
		}
		sb.WriteString(caser.String(part))
	}
	id := sb.String()
	if id != "" && unicode.IsDigit(rune(id[0])) {
		id = "Lesson" + id
	}
	return id
}
