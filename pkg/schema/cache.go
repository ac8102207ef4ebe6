package schema

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/surrealdb/entitygraph/pkg/models"
)

// DefaultCacheSize bounds the number of cached schemas.
const DefaultCacheSize = 256

// Cache memoizes a Source. Misses are not cached.
type Cache struct {
	source Source
	cache  *lru.ARCCache
}

// NewCache wraps source with an ARC cache holding up to size schemas.
func NewCache(source Source, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.NewARC(size)
	if err != nil {
		return nil, fmt.Errorf("schema cache: %w", err)
	}
	return &Cache{source: source, cache: c}, nil
}

// Schema implements Source.
func (c *Cache) Schema(ctx context.Context, slug string) (*models.Schema, error) {
	if v, ok := c.cache.Get(slug); ok {
		return v.(*models.Schema), nil
	}
	schema, err := c.source.Schema(ctx, slug)
	if err != nil {
		return nil, err
	}
	c.cache.Add(slug, schema)
	return schema, nil
}

// Invalidate drops the cached schemas with the given slugs.
func (c *Cache) Invalidate(slugs ...string) {
	for _, slug := range slugs {
		c.cache.Remove(slug)
	}
}

// Purge drops every cached schema.
func (c *Cache) Purge() {
	c.cache.Purge()
}

func (c *Cache) Len() int {
	return c.cache.Len()
}
