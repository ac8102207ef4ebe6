package schema

import (
	"context"
	"fmt"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// StoreSource reads schema documents, `{"type": "schema", "slug": ...}`, from
// the document store.
type StoreSource struct {
	store docstore.Store
}

func NewStoreSource(store docstore.Store) *StoreSource {
	return &StoreSource{store: store}
}

// Schema implements Source.
func (s *StoreSource) Schema(ctx context.Context, slug string) (*models.Schema, error) {
	res, err := s.store.Find(ctx, docstore.FindQuery{
		Selector: map[string]any{"type": constants.TypeSchema, "slug": slug},
		Limit:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("find schema %s: %w", slug, err)
	}
	if len(res.Docs) == 0 {
		return nil, notFound(slug)
	}

	var schema models.Schema
	if err := models.FromDocument(res.Docs[0], &schema); err != nil {
		return nil, fmt.Errorf("decode schema %s: %w", slug, err)
	}
	return &schema, nil
}
