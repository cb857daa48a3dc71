package geocode

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// cacheKey returns SHA-256 hex of the normalized address for cache lookup.
func cacheKey(addr AddressInput) string {
	normalized := fmt.Sprintf("%s|%s|%s|%s",
		strings.ToLower(strings.TrimSpace(addr.Street)),
		strings.ToLower(strings.TrimSpace(addr.City)),
		strings.ToLower(strings.TrimSpace(addr.State)),
		strings.TrimSpace(addr.ZipCode),
	)
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

// diskCache is a JSON-file cache of geocode results. Only matched results
// are stored; misses retry on the next run.
type diskCache struct {
	path    string
	mu      sync.Mutex
	entries map[string]Result
}

func newDiskCache(path string) *diskCache {
	c := &diskCache{path: path, entries: make(map[string]Result)}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			zap.L().Warn("geocode: cache unreadable, starting empty",
				zap.String("path", path),
				zap.Error(err),
			)
		}
		return c
	}
	if err := json.Unmarshal(raw, &c.entries); err != nil {
		zap.L().Warn("geocode: cache corrupt, starting empty",
			zap.String("path", path),
			zap.Error(err),
		)
		c.entries = make(map[string]Result)
	}
	return c
}

func (c *diskCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if ok {
		r.Source = "cache"
	}
	return r, ok
}

// put stores the result and rewrites the cache file. The write goes through
// a temp file so a crash cannot truncate the cache.
func (c *diskCache) put(key string, r Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r

	raw, err := json.Marshal(c.entries)
	if err != nil {
		return eris.Wrap(err, "geocode: marshal cache")
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "geocode: create cache dir")
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return eris.Wrap(err, "geocode: write cache")
	}
	return eris.Wrap(os.Rename(tmp, c.path), "geocode: replace cache")
}

func (c *diskCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
