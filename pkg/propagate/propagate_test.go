package propagate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/bulk"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/docstore/memory"
	"github.com/surrealdb/entitygraph/pkg/fieldtype"
	"github.com/surrealdb/entitygraph/pkg/models"
)

type removed struct {
	mu    sync.Mutex
	names []string
}

func (r *removed) RemoveFiles(_ context.Context, names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, names...)
	return nil
}

func referencing(id string, refs ...string) models.Document {
	items := make([]any, len(refs))
	for i, r := range refs {
		items[i] = map[string]any{"id": r, "type": "entity", "title": "Old", "slug": "old", "published": true,
			"thumbnail": map[string]any{"name": "t.jpg"}}
	}
	return models.Document{
		"_id":        id,
		"type":       "entity",
		"schema":     "page",
		"title":      "Page " + id,
		"modifiedAt": "2020-01-01T00:00:00Z",
		"fields": map[string]any{
			"links": map[string]any{"type": "entity", "value": items},
		},
	}
}

func source(title string) models.Document {
	return models.Document{
		"_id":       "b",
		"type":      "entity",
		"schema":    "article",
		"title":     title,
		"slug":      "old",
		"published": true,
		"thumbnail": map[string]any{"name": "t.jpg"},
		"fields": map[string]any{
			"cover": map[string]any{"type": "image", "value": map[string]any{"name": "t.jpg"}},
		},
	}
}

func setup(t *testing.T, store docstore.Store, docs ...models.Document) (*Propagator, *removed) {
	t.Helper()
	_, err := store.Bulk(context.Background(), docs)
	require.NoError(t, err)
	files := &removed{}
	return New(store, bulk.New(store), fieldtype.Default(), WithFileRemover(files)), files
}

func TestPropagateTitleChange(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p, _ := setup(t, store, referencing("a", "b"), referencing("c"), source("Old"))

	res, err := p.Propagate(ctx, source("Old"), source("New"))
	require.NoError(t, err)
	require.Len(t, res.Updated, 1)
	assert.Empty(t, res.Failed)

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	link := value.Get(a, "fields", "links", "value").([]any)[0].(map[string]any)
	assert.Equal(t, "New", link["title"])
	assert.Equal(t, "article", link["schema"])
	assert.Equal(t, "2020-01-01T00:00:00Z", a["modifiedAt"])
	assert.Regexp(t, `^2-`, a["_rev"])

	c, err := store.Get(ctx, "c")
	require.NoError(t, err)
	assert.Regexp(t, `^1-`, c["_rev"])
}

func TestPropagateIgnoresUnwatchedChanges(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p, _ := setup(t, store, referencing("a", "b"), source("Old"))

	changed := source("Old")
	changed["modifiedAt"] = "2030-01-01T00:00:00Z"
	res, err := p.Propagate(ctx, source("Old"), changed)
	require.NoError(t, err)
	assert.Empty(t, res.Updated)

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Regexp(t, `^1-`, a["_rev"])
}

func TestPropagateClearsThumbnailAndQueuesFiles(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	p, files := setup(t, store, referencing("a", "b"), source("Old"))

	next := source("Old")
	delete(next, "thumbnail")
	next["fields"] = map[string]any{
		"cover": map[string]any{"type": "image", "value": map[string]any{"name": "new.jpg"}},
	}

	res, err := p.Propagate(ctx, source("Old"), next)
	require.NoError(t, err)
	assert.Equal(t, []string{"t.jpg"}, res.Files)
	assert.Equal(t, []string{"t.jpg"}, files.names)

	a, err := store.Get(ctx, "a")
	require.NoError(t, err)
	link := value.Get(a, "fields", "links", "value").([]any)[0].(map[string]any)
	assert.Contains(t, link, "thumbnail")
	assert.Nil(t, link["thumbnail"])
}

func TestChangesKeepsFilesStillInUse(t *testing.T) {
	p := New(memory.New(), nil, fieldtype.Default())
	old := models.Document{"fields": map[string]any{
		"gallery": map[string]any{"type": "gallery", "value": []any{
			map[string]any{"name": "1.jpg"}, map[string]any{"name": "2.jpg", "alt": "x"},
		}},
		"body": map[string]any{"type": "text", "value": "a"},
	}}
	next := models.Document{"fields": map[string]any{
		"gallery": map[string]any{"type": "gallery", "value": []any{map[string]any{"name": "2.jpg"}}},
		"body":    map[string]any{"type": "text", "value": "b"},
	}}

	refresh, files := p.Changes(old, next)
	assert.False(t, refresh)
	assert.Equal(t, []string{"1.jpg"}, files)

	_, files = p.Changes(old, models.Document{"fields": map[string]any{}})
	assert.Equal(t, []string{"1.jpg", "2.jpg"}, files)
}

// racingStore lets another writer update a referencing entity right before
// the first bulk write, so that write conflicts.
type racingStore struct {
	*memory.Store
	once sync.Once
}

func (s *racingStore) Bulk(ctx context.Context, docs []models.Document) ([]docstore.DocResult, error) {
	s.once.Do(func() {
		doc, err := s.Get(ctx, "a")
		if err == nil {
			doc["note"] = "concurrent"
			_, _ = s.Insert(ctx, doc)
		}
	})
	return s.Store.Bulk(ctx, docs)
}

func TestPropagateRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	_, err := mem.Bulk(ctx, []models.Document{referencing("a", "b"), source("Old")})
	require.NoError(t, err)

	store := &racingStore{Store: mem}
	p := New(store, bulk.New(store), fieldtype.Default())

	res, err := p.Propagate(ctx, source("Old"), source("New"))
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	require.Len(t, res.Updated, 1)

	a, err := mem.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "concurrent", a["note"])
	link := value.Get(a, "fields", "links", "value").([]any)[0].(map[string]any)
	assert.Equal(t, "New", link["title"])
	assert.Equal(t, a["_rev"], res.Updated[0]["_rev"])
}

func TestUnlink(t *testing.T) {
	doc := referencing("a", "b", "c")
	assert.True(t, Unlink(doc, map[string]bool{"b": true}))
	items := value.Get(doc, "fields", "links", "value").([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "c", items[0].(map[string]any)["id"])
	assert.False(t, Unlink(doc, map[string]bool{"b": true}))
}

func TestUnlinkSkipsTaxonomyTerms(t *testing.T) {
	doc := referencing("a", "b")
	doc["fields"].(map[string]any)["tags"] = map[string]any{"type": "taxonomy", "value": []any{
		map[string]any{"id": "b", "title": "Term b", "slug": "term-b"},
	}}

	assert.True(t, Unlink(doc, map[string]bool{"b": true}))
	assert.Empty(t, value.Get(doc, "fields", "links", "value"))
	terms := value.Get(doc, "fields", "tags", "value").([]any)
	require.Len(t, terms, 1)
	assert.Equal(t, "Term b", terms[0].(map[string]any)["title"])
}
