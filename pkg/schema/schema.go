// Package schema provides the read-only schema sources the normalizer
// resolves entity schemas from.
package schema

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// Source resolves schemas by slug. A missing schema is reported with an
// error wrapping constants.ErrSchemaNotFound.
type Source interface {
	Schema(ctx context.Context, slug string) (*models.Schema, error)
}

func notFound(slug string) error {
	return fmt.Errorf("%w: %s", constants.ErrSchemaNotFound, slug)
}

// Static is a fixed, in-memory set of schemas.
type Static struct {
	mu      sync.RWMutex
	schemas map[string]*models.Schema
}

// NewStatic returns a Static source holding schemas.
func NewStatic(schemas ...*models.Schema) *Static {
	s := &Static{schemas: make(map[string]*models.Schema, len(schemas))}
	s.Replace(schemas...)
	return s
}

// Schema implements Source.
func (s *Static) Schema(_ context.Context, slug string) (*models.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schema, ok := s.schemas[slug]
	if !ok {
		return nil, notFound(slug)
	}
	return schema, nil
}

// Replace swaps the whole set of schemas.
func (s *Static) Replace(schemas ...*models.Schema) {
	next := make(map[string]*models.Schema, len(schemas))
	for _, schema := range schemas {
		next[schema.Slug] = schema
	}
	s.mu.Lock()
	s.schemas = next
	s.mu.Unlock()
}

// Slugs returns the known schema slugs, sorted.
func (s *Static) Slugs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slugs := make([]string, 0, len(s.schemas))
	for slug := range s.schemas {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
