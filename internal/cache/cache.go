// Package cache persists finished renders keyed by topic.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// Entry locates the artifacts produced for one topic.
type Entry struct {
	Module       string    `json:"module"`
	Resolution   string    `json:"resolution"`
	Class        string    `json:"class"`
	VideoPath    string    `json:"video_path"`
	NarratedPath string    `json:"narrated_path,omitempty"`
	Narration    string    `json:"narration"`
	CachedAt     time.Time `json:"cached_at"`
}

// Cache is a JSON file mapping topic to Entry. The file is re-read on every
// lookup and rewritten in full on every store. Writers hold an exclusive
// flock on a sidecar lock file so separate processes do not interleave.
type Cache struct {
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	logger *slog.Logger
}

// New returns a Cache backed by the file at path. The file is created on the
// first Store.
func New(path string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.With("component", "cache"),
	}
}

// Path returns the backing file path.
func (c *Cache) Path() string { return c.path }

// Lookup returns the entry for topic when its video file still exists.
// Entries whose video is gone are removed and reported as absent.
func (c *Cache) Lookup(topic string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lockFile(); err != nil {
		c.logger.Warn("cache lock failed, treating as miss", "error", err)
		return Entry{}, false
	}
	defer c.unlockFile()

	entries := c.load()
	entry, ok := entries[topic]
	if !ok {
		return Entry{}, false
	}

	if _, err := os.Stat(entry.VideoPath); err != nil {
		c.logger.Info("cached video missing, dropping entry", "topic", topic, "path", entry.VideoPath)
		delete(entries, topic)
		if err := c.save(entries); err != nil {
			c.logger.Warn("failed to persist stale entry removal", "topic", topic, "error", err)
		}
		return Entry{}, false
	}
	return entry, true
}

// Store writes entry for topic and persists the whole mapping immediately.
func (c *Cache) Store(topic string, entry Entry) error {
	if topic == "" {
		return errors.New("cache: topic cannot be empty")
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lockFile(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.unlockFile()

	entries := c.load()
	entries[topic] = entry
	if err := c.save(entries); err != nil {
		return fmt.Errorf("cache: persist: %w", err)
	}
	c.logger.Debug("cached render", "topic", topic, "video", entry.VideoPath)
	return nil
}

// Remove deletes the entry for topic. Removing an absent topic is not an error.
func (c *Cache) Remove(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lockFile(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.unlockFile()

	entries := c.load()
	if _, ok := entries[topic]; !ok {
		return nil
	}
	delete(entries, topic)
	if err := c.save(entries); err != nil {
		return fmt.Errorf("cache: persist: %w", err)
	}
	return nil
}

// Listing pairs a topic with its entry.
type Listing struct {
	Topic string
	Entry
}

// List returns all persisted entries, newest first. Existence is not checked.
func (c *Cache) List() []Listing {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.lockFile(); err != nil {
		c.logger.Warn("cache lock failed", "error", err)
		return nil
	}
	defer c.unlockFile()

	entries := c.load()
	out := make([]Listing, 0, len(entries))
	for topic, e := range entries {
		out = append(out, Listing{Topic: topic, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CachedAt.After(out[j].CachedAt)
	})
	return out
}

func (c *Cache) lockFile() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if err := c.lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", c.lock.Path(), err)
	}
	return nil
}

func (c *Cache) unlockFile() {
	if err := c.lock.Unlock(); err != nil {
		c.logger.Warn("cache unlock failed", "error", err)
	}
}

// load reads the mapping. A missing file is empty; a corrupt file is logged
// and also treated as empty.
func (c *Cache) load() map[string]Entry {
	entries := make(map[string]Entry)
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("could not read cache file, starting empty", "path", c.path, "error", err)
		}
		return entries
	}
	if len(data) == 0 {
		return entries
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("could not parse cache file, starting empty", "path", c.path, "error", err)
		return make(map[string]Entry)
	}
	// A file holding JSON null decodes without error into a nil map.
	if entries == nil {
		c.logger.Warn("cache file holds no mapping, starting empty", "path", c.path)
		entries = make(map[string]Entry)
	}
	return entries
}

func (c *Cache) save(entries map[string]Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
