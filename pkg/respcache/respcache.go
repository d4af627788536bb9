// Package respcache is a content-addressed cache for expensive,
// non-deterministic generator calls. Entries are keyed by a digest of the
// ordered call inputs, so identical inputs always resolve to the same entry.
// The cache is strictly best-effort: reads that fail for any reason are
// misses, writes that fail are logged and swallowed, and an unconfigured
// cache is an inert pass-through (the production default).
package respcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gowebpki/jcs"
)

const digestLen = 20 // hex chars of the sha256 digest used in filenames

// Cache stores payloads under {root}/{namespace}/{digest}.{ext}.
// A nil Cache or an empty root disables it entirely.
type Cache struct {
	root   string
	logger *slog.Logger
}

// New returns a cache rooted at dir, or a disabled cache when dir is empty.
func New(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{root: dir, logger: logger}
}

// Enabled reports whether the cache will store anything.
func (c *Cache) Enabled() bool { return c != nil && c.root != "" }

// Key computes the content digest for the ordered key parts. Exposed so
// callers can log which entry a call resolved to.
func Key(parts []string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0x1f}) // unit separator, keeps ["ab","c"] != ["a","bc"]
	}
	return hex.EncodeToString(h.Sum(nil))[:digestLen]
}

// JSONPart canonicalizes v (RFC 8785) so that semantically identical JSON
// inputs contribute identical bytes to the key.
func JSONPart(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	return string(canon), nil
}

// GetJSON loads a cached JSON payload into out. False means miss, always.
func (c *Cache) GetJSON(namespace string, parts []string, out any) bool {
	data, ok := c.read(namespace, parts, "json")
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Debug("cache entry undecodable, treating as miss",
			"namespace", namespace, "error", err)
		return false
	}
	return true
}

// SetJSON stores v as a JSON payload. Failures are swallowed.
func (c *Cache) SetJSON(namespace string, parts []string, v any) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache write skipped: marshal failed", "namespace", namespace, "error", err)
		return
	}
	c.write(namespace, parts, "json", data)
}

// GetBytes loads a cached binary payload stored with the given extension.
func (c *Cache) GetBytes(namespace string, parts []string, ext string) ([]byte, bool) {
	return c.read(namespace, parts, ext)
}

// SetBytes stores a binary payload under the caller-specified extension.
func (c *Cache) SetBytes(namespace string, parts []string, ext string, data []byte) {
	if !c.Enabled() {
		return
	}
	c.write(namespace, parts, ext, data)
}

// Clear removes every entry. Explicit test-isolation hook; never called in
// production paths.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) path(namespace string, parts []string, ext string) string {
	return filepath.Join(c.root, namespace, Key(parts)+"."+ext)
}

func (c *Cache) read(namespace string, parts []string, ext string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}
	data, err := os.ReadFile(c.path(namespace, parts, ext))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (c *Cache) write(namespace string, parts []string, ext string, data []byte) {
	path := c.path(namespace, parts, ext)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		c.logger.Warn("cache write failed", "path", path, "error", err)
		return
	}
	// Temp-then-rename so concurrent readers never see a partial entry.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Warn("cache write failed", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		c.logger.Warn("cache write failed", "path", path, "error", err)
	}
}
