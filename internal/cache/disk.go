package cache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// DiskCache stores one gzip file per entry, fanned out into subdirectories
// by the first two characters of the key hash. The gzip header comment holds
// the expiry time of entries written with a ttl.
type DiskCache struct {
	dir string
	ttl time.Duration
}

// NewDiskCache creates a new disk cache. A zero ttl keeps entries forever,
// which suits wiki pages fetched for a past month.
func NewDiskCache(dir string, ttl time.Duration) *DiskCache {
	return &DiskCache{
		dir: dir,
		ttl: ttl,
	}
}

// Get retrieves a value from the disk cache
func (c *DiskCache) Get(_ context.Context, key string) ([]byte, bool) {
	path := c.path(key)
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, false
	}
	if expired(zr.Comment) {
		_ = os.Remove(path)
		return nil, false
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, false
	}
	return data, true
}

func expired(comment string) bool {
	if comment == "" {
		return false
	}
	at, err := time.Parse(time.RFC3339Nano, comment)
	return err != nil || time.Now().After(at)
}

// Set stores a value in the disk cache
func (c *DiskCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.ttl
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = key
	if ttl > 0 {
		zw.Comment = time.Now().Add(ttl).UTC().Format(time.RFC3339Nano)
	}
	if _, err := zw.Write(value); err != nil {
		return fmt.Errorf("compress entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress entry: %w", err)
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	// written to a temp file and renamed into place
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cache file: %w", err)
	}
	return nil
}

// Delete removes a value from the disk cache
func (c *DiskCache) Delete(_ context.Context, key string) error {
	err := os.Remove(c.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Clear removes all cached files
func (c *DiskCache) Clear(context.Context) error {
	return os.RemoveAll(c.dir)
}

func (c *DiskCache) path(key string) string {
	name := strings.ReplaceAll(key, ":", "_")
	hash := key[strings.LastIndex(key, ":")+1:]
	if len(hash) < 2 {
		return filepath.Join(c.dir, name+".gz")
	}
	return filepath.Join(c.dir, hash[:2], name+".gz")
}
