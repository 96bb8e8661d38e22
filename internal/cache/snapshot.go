package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Persistence opens the stored snapshot for reading and a destination for
// writing a new one. Load returns an error wrapping fs.ErrNotExist when no
// snapshot exists yet.
type Persistence struct {
	Load    func() (io.ReadCloser, error)
	Persist func() (io.WriteCloser, error)
}

// FilePersistence keeps the snapshot in a single file
func FilePersistence(path string) Persistence {
	return Persistence{
		Load: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
		Persist: func() (io.WriteCloser, error) {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, err
			}
			return os.Create(path)
		},
	}
}

// SnapshotCache is an in-memory cache that is loaded once on creation and
// written back only when Flush is called. Service clients keep their query
// results in one.
type SnapshotCache struct {
	cache   *gocache.Cache
	persist Persistence
	dirty   atomic.Bool
}

// NewSnapshotCache creates a cache and loads the existing snapshot, if any
func NewSnapshotCache(p Persistence) (*SnapshotCache, error) {
	c := &SnapshotCache{
		cache:   gocache.New(gocache.NoExpiration, 0),
		persist: p,
	}
	if p.Load == nil {
		return c, nil
	}
	r, err := p.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = r.Close() }()
	if err := c.cache.Load(r); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return c, nil
}

// Get retrieves a value from the cache
func (c *SnapshotCache) Get(_ context.Context, key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true
	}
	return nil, false
}

// Set stores a value until the next Clear. ttl is ignored.
func (c *SnapshotCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.cache.Set(key, value, gocache.NoExpiration)
	c.dirty.Store(true)
	return nil
}

// Delete removes a value from the cache
func (c *SnapshotCache) Delete(_ context.Context, key string) error {
	c.cache.Delete(key)
	c.dirty.Store(true)
	return nil
}

// Clear removes all values from the cache
func (c *SnapshotCache) Clear(context.Context) error {
	c.cache.Flush()
	c.dirty.Store(true)
	return nil
}

// Len returns the number of entries
func (c *SnapshotCache) Len() int {
	return c.cache.ItemCount()
}

// Flush writes the snapshot if anything changed since the last flush
func (c *SnapshotCache) Flush() error {
	if c.persist.Persist == nil || !c.dirty.Swap(false) {
		return nil
	}
	w, err := c.persist.Persist()
	if err != nil {
		c.dirty.Store(true)
		return fmt.Errorf("open snapshot for writing: %w", err)
	}
	if err := c.cache.Save(w); err != nil {
		_ = w.Close()
		c.dirty.Store(true)
		return fmt.Errorf("save snapshot: %w", err)
	}
	if err := w.Close(); err != nil {
		c.dirty.Store(true)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return nil
}
