// Package assets fetches model files from a directory or an http(s) root.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when the source has no file for a model name.
var ErrNotFound = errors.New("asset not found")

// Manager resolves <root>/<name>.<ext> and caches the bytes.
type Manager struct {
	root   string
	ext    string
	remote bool
	client *http.Client
	cache  *Cache
	mu     sync.RWMutex
}

// NewManager creates a manager for root. Roots starting with http:// or
// https:// are fetched over HTTP; anything else is a local directory.
// cacheLimit bounds the number of cached files (0 disables caching).
func NewManager(root, ext string, cacheLimit int) *Manager {
	lower := strings.ToLower(root)
	return &Manager{
		root:   root,
		ext:    strings.TrimPrefix(ext, "."),
		remote: strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"),
		client: http.DefaultClient,
		cache:  NewCache(cacheLimit),
	}
}

// SetClient replaces the HTTP client used for remote roots.
func (m *Manager) SetClient(c *http.Client) {
	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
}

// Path returns the location of a model file.
func (m *Manager) Path(name string) string {
	file := name + "." + m.ext
	if m.remote {
		return strings.TrimRight(m.root, "/") + "/" + url.PathEscape(file)
	}
	return filepath.Join(m.root, file)
}

// Load returns the bytes of the named model.
func (m *Manager) Load(ctx context.Context, name string) ([]byte, error) {
	if data, ok := m.cache.Get(name); ok {
		return data, nil
	}

	var (
		data []byte
		err  error
	)
	if m.remote {
		data, err = m.fetch(ctx, name)
	} else {
		data, err = m.read(name)
	}
	if err != nil {
		return nil, err
	}

	m.cache.Set(name, data)
	return data, nil
}

func (m *Manager) read(name string) ([]byte, error) {
	path := m.Path(name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func (m *Manager) fetch(ctx context.Context, name string) ([]byte, error) {
	u := m.Path(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", u, err)
	}

	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, u)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", u, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %w", u, err)
	}
	return data, nil
}

// Stats returns cache statistics.
func (m *Manager) Stats() (hits, misses int) {
	return m.cache.Stats()
}

// Close drops cached data.
func (m *Manager) Close() {
	m.cache.Clear()
}

// Cache is a bounded in-memory cache. The least recently used entry is
// evicted when the limit is reached.
type Cache struct {
	data  map[string][]byte
	order []string // oldest first
	limit int
	mu    sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a cache holding at most limit entries.
func NewCache(limit int) *Cache {
	return &Cache{
		data:  make(map[string][]byte),
		limit: limit,
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
		c.touch(key)
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	if c.limit <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; ok {
		c.data[key] = data
		c.touch(key)
		return
	}
	for len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}
	c.data[key] = data
	c.order = append(c.order, key)
}

// touch moves key to the most recent position. Caller holds mu.
func (c *Cache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.order = nil
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
