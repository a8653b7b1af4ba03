// Package catalog maps rendered videos on disk to the public URLs and
// listings served by the API.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/kalambet/lectern/internal/pipeline"
	"github.com/kalambet/lectern/internal/render"
	"github.com/kalambet/lectern/internal/subtitle"
	"github.com/kalambet/lectern/internal/topic"
)

// URLPrefix is the route under which videos are served.
const URLPrefix = "/videos/"

// ErrNotFound is returned for unknown video ids and paths outside the
// media root.
var ErrNotFound = errors.New("video not found")

var validID = regexp.MustCompile(`^[a-z0-9_]+$`)

// Summary is one entry of the video listing.
type Summary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"` // unix milliseconds
}

// Details describes a single stored video.
type Details struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	VideoFileURL   string `json:"video_file_url"`
	NarratedURL    string `json:"narrated_url,omitempty"`
	CaptionContent string `json:"caption_content"`
}

// Generated is the response document for a finished generation request.
type Generated struct {
	VideoURL       string `json:"video_url"`
	NarratedURL    string `json:"narrated_url,omitempty"`
	CaptionContent string `json:"caption_content"`
	Title          string `json:"title"`
	FromCache      bool   `json:"from_cache"`
	Attempts       int    `json:"attempts"`
}

// Catalog reads the renderer's output tree under a media root.
type Catalog struct {
	mediaDir   string
	resolution string
}

// New creates a Catalog. resolution is the directory checked first when
// looking a video up by id.
func New(mediaDir, resolution string) *Catalog {
	return &Catalog{mediaDir: mediaDir, resolution: resolution}
}

// VideosDir is the directory the renderer writes module folders into.
func (c *Catalog) VideosDir() string {
	return filepath.Join(c.mediaDir, "videos")
}

// URL returns the public URL of a file under VideosDir.
func (c *Catalog) URL(path string) (string, error) {
	rel, err := filepath.Rel(c.VideosDir(), path)
	if err != nil || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s is outside %s", path, c.VideosDir())
	}
	return URLPrefix + filepath.ToSlash(rel), nil
}

// FromResult builds the response document for a pipeline result.
func (c *Catalog) FromResult(res pipeline.Result) (Generated, error) {
	u, err := c.URL(res.VideoPath)
	if err != nil {
		return Generated{}, err
	}
	g := Generated{
		VideoURL:       u,
		CaptionContent: res.Narration,
		Title:          res.Topic,
		FromCache:      res.FromCache,
		Attempts:       res.Attempts,
	}
	if res.NarratedPath != "" {
		if nu, err := c.URL(res.NarratedPath); err == nil {
			g.NarratedURL = nu
		}
	}
	return g, nil
}

// List returns every generated video, newest first.
func (c *Catalog) List() ([]Summary, error) {
	dirs, err := filepath.Glob(filepath.Join(c.VideosDir(), topic.ModulePrefix+"*"))
	if err != nil {
		return nil, err
	}

	var out []Summary
	for _, dir := range dirs {
		module := filepath.Base(dir)
		video, ok := c.findVideo(module)
		if !ok {
			continue
		}
		info, err := os.Stat(video)
		if err != nil {
			continue
		}
		id := strings.TrimPrefix(module, topic.ModulePrefix)
		out = append(out, Summary{
			ID:        id,
			Title:     topic.Title(id),
			CreatedAt: info.ModTime().UnixMilli(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// Details returns a video by id, the slug without the module prefix. The
// caption content is the raw subtitle file.
func (c *Catalog) Details(id string) (Details, error) {
	if !validID.MatchString(id) {
		return Details{}, ErrNotFound
	}
	module := topic.ModulePrefix + id
	video, ok := c.findVideo(module)
	if !ok {
		return Details{}, ErrNotFound
	}
	u, err := c.URL(video)
	if err != nil {
		return Details{}, err
	}

	d := Details{
		ID:             id,
		Title:          topic.Title(id),
		VideoFileURL:   u,
		CaptionContent: subtitle.MissingPlaceholder,
	}
	if raw, err := os.ReadFile(strings.TrimSuffix(video, ".mp4") + ".srt"); err == nil {
		d.CaptionContent = string(raw)
	}
	if narrated := render.NarratedPath(video); isFile(narrated) {
		if nu, err := c.URL(narrated); err == nil {
			d.NarratedURL = nu
		}
	}
	return d, nil
}

// Resolve maps the three path segments of a video URL to a file under
// VideosDir. Segments that could escape the root yield ErrNotFound.
func (c *Catalog) Resolve(module, resolution, file string) (string, error) {
	for _, seg := range []string{module, resolution, file} {
		if seg == "" || seg != filepath.Base(seg) || !filepath.IsLocal(seg) || strings.ContainsAny(seg, `/\`) {
			return "", ErrNotFound
		}
	}
	path := filepath.Join(c.VideosDir(), module, resolution, file)
	if !isFile(path) {
		return "", ErrNotFound
	}
	return path, nil
}

// findVideo looks for the module's video in the configured resolution
// first, then in any other resolution folder.
func (c *Catalog) findVideo(module string) (string, bool) {
	name := topic.ClassIDFromModule(module) + ".mp4"
	dir := filepath.Join(c.VideosDir(), module)

	if c.resolution != "" {
		if p := filepath.Join(dir, c.resolution, name); isFile(p) {
			return p, true
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if p := filepath.Join(dir, e.Name(), name); isFile(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
