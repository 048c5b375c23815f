// Package assets loads and caches channel resources.
//
// Static resources (channel info, textures, materials, mesh info) are
// requested once per session but may be requested again after a reset, so
// their bytes are cached by name. Local directories can be registered as
// sources so a recorded channel plays without a server.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when no source holds the requested name.
var ErrNotFound = errors.New("asset not found")

// Source is a read-only store of named resources.
type Source interface {
	Read(name string) ([]byte, error)
}

// DirSource reads resources from a directory tree.
type DirSource struct {
	root string
	fsys fs.FS
}

// NewDirSource opens a directory as a source.
func NewDirSource(root string) (*DirSource, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("opening asset dir %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening asset dir %s: not a directory", root)
	}
	return &DirSource{root: root, fsys: os.DirFS(root)}, nil
}

// Read returns the file at name, relative to the source root.
func (d *DirSource) Read(name string) ([]byte, error) {
	name = path.Clean(strings.TrimPrefix(filepath.ToSlash(name), "/"))
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	data, err := fs.ReadFile(d.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// Root returns the directory the source reads from.
func (d *DirSource) Root() string {
	return d.root
}

// Manager resolves names against registered sources, caching results.
type Manager struct {
	sources []Source
	cache   *Cache
	mu      sync.RWMutex
}

// NewManager creates a manager with no sources.
func NewManager() *Manager {
	return &Manager{
		cache: NewCache(),
	}
}

// AddDir registers a directory source.
// Sources are searched in reverse order (last added = highest priority).
func (m *Manager) AddDir(root string) error {
	src, err := NewDirSource(root)
	if err != nil {
		return err
	}
	m.AddSource(src)
	return nil
}

// AddSource registers a source.
func (m *Manager) AddSource(src Source) {
	m.mu.Lock()
	m.sources = append(m.sources, src)
	m.mu.Unlock()
}

// HasSources reports whether any source is registered.
func (m *Manager) HasSources() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sources) > 0
}

// Load returns the bytes for name from the cache or the first source that
// has it, caching what it reads.
func (m *Manager) Load(name string) ([]byte, error) {
	if data, ok := m.cache.Get(name); ok {
		return data, nil
	}
	data, err := m.Read(name)
	if err != nil {
		return nil, err
	}
	m.cache.Set(name, data)
	return data, nil
}

// Read returns the bytes for name from the most recently added source that
// has it. The cache is neither consulted nor filled.
func (m *Manager) Read(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.sources) - 1; i >= 0; i-- {
		data, err := m.sources[i].Read(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Cache returns the manager's cache.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Close drops every source and clears the cache.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = nil
	m.cache.Clear()
}

// Cache is an in-memory byte cache keyed by resource name.
type Cache struct {
	data map[string][]byte
	size int
	mu   sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.size += len(data) - len(c.data[key])
	c.data[key] = data
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.size = 0
	c.hits = 0
	c.misses = 0
}

// Len returns the number of cached items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Size returns the total cached bytes.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
