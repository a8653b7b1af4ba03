package render

import (
	"fmt"
	"strings"
)

// Quality selects the manim render preset.
type Quality string

const (
	QualityLow        Quality = "low"
	QualityMedium     Quality = "medium"
	QualityHigh       Quality = "high"
	QualityProduction Quality = "production"
	QualityFourK      Quality = "fourk"
)

type preset struct {
	flag       string
	resolution string
}

var presets = map[Quality]preset{
	QualityLow:        {"-ql", "480p15"},
	QualityMedium:     {"-qm", "720p30"},
	QualityHigh:       {"-qh", "1080p60"},
	QualityProduction: {"-qp", "1440p60"},
	QualityFourK:      {"-qk", "2160p60"},
}

// ParseQuality accepts a preset name, case-insensitively. Empty means low.
func ParseQuality(s string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(s)))
	if q == "" {
		return QualityLow, nil
	}
	if _, ok := presets[q]; !ok {
		return "", fmt.Errorf("unknown render quality %q (want low, medium, high, production or fourk)", s)
	}
	return q, nil
}

// Flag is the manim command-line switch for q.
func (q Quality) Flag() string {
	return presets[q.normalize()].flag
}

// Resolution is the directory name manim writes videos of quality q under.
func (q Quality) Resolution() string {
	return presets[q.normalize()].resolution
}

func (q Quality) normalize() Quality {
	if _, ok := presets[q]; ok {
		return q
	}
	return QualityLow
}
