// Package cache stores raw pages and service responses across runs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Namespaces separate month pages from article pages so each can be
// ignored on its own.
const (
	NamespaceOutline = "currentEvents"
	NamespaceArticle = "wiki"
	NamespacePlaces  = "placeTemplates"
)

// CacheKey generates a cache key from a namespace and a URL
func CacheKey(namespace, url string) string {
	hash := sha256.Sum256([]byte(url))
	return "currentevents:v1:" + namespace + ":" + hex.EncodeToString(hash[:])
}
