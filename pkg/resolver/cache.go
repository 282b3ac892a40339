package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"ttharvest/pkg/fsutil"
	"ttharvest/pkg/models"
)

// Cache is the persistent handle resolution cache. A missing file is an
// empty cache.
type Cache struct {
	path string

	mu      sync.RWMutex
	entries map[string]models.CacheEntry
}

// OpenCache loads the cache file at path
func OpenCache(path string) (*Cache, error) {
	c := &Cache{
		path:    path,
		entries: make(map[string]models.CacheEntry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read resolve cache: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}

	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, fmt.Errorf("failed to decode resolve cache: %w", err)
	}
	for handle, e := range c.entries {
		e.Handle = handle
		c.entries[handle] = e
	}
	return c, nil
}

// Path returns the cache file location
func (c *Cache) Path() string {
	return c.path
}

// Get returns the entry for handle
func (c *Cache) Get(handle string) (models.CacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[handle]
	return e, ok
}

// Put stores an entry and persists the cache
func (c *Cache) Put(e models.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Handle] = e
	return c.saveLocked()
}

// Delete removes an entry and persists the cache
func (c *Cache) Delete(handle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[handle]; !ok {
		return nil
	}
	delete(c.entries, handle)
	return c.saveLocked()
}

// Entries returns all entries sorted by handle
func (c *Cache) Entries() []models.CacheEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (c *Cache) saveLocked() error {
	if err := fsutil.WriteJSONAtomic(c.path, c.entries, 0644); err != nil {
		return fmt.Errorf("failed to save resolve cache: %w", err)
	}
	return nil
}
