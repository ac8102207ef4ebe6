package resolve

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/docstore/memory"
	"github.com/surrealdb/entitygraph/pkg/models"
)

type fetchCounter struct {
	docstore.Store

	mu      sync.Mutex
	rounds  int
	fetched map[string]int
}

func (s *fetchCounter) Fetch(ctx context.Context, keys []string) ([]docstore.Row, error) {
	s.mu.Lock()
	s.rounds++
	for _, k := range keys {
		s.fetched[k]++
	}
	s.mu.Unlock()
	return s.Store.Fetch(ctx, keys)
}

func ref(id string, published bool) map[string]any {
	return map[string]any{"id": id, "type": "entity", "title": "stale " + id, "published": published}
}

func entity(id string, published bool, refs ...map[string]any) models.Document {
	items := make([]any, len(refs))
	for i, r := range refs {
		items[i] = r
	}
	return models.Document{
		"_id":       id,
		"type":      "entity",
		"schema":    "node",
		"title":     "Title " + id,
		"slug":      "title-" + id,
		"published": published,
		"fields": map[string]any{
			"next": map[string]any{"type": "entity", "value": items},
			"body": map[string]any{"type": "text", "value": "body " + id},
		},
	}
}

func newStore(t *testing.T, docs ...models.Document) *fetchCounter {
	t.Helper()
	mem := memory.New()
	results, err := mem.Bulk(context.Background(), docs)
	require.NoError(t, err)
	for _, r := range results {
		require.True(t, r.OK())
	}
	return &fetchCounter{Store: mem, fetched: map[string]int{}}
}

func next(doc models.Document) []any {
	items, _ := value.Get(doc, "fields", "next", "value").([]any)
	return items
}

func TestResolveTerminatesOnCycles(t *testing.T) {
	store := newStore(t,
		entity("a", true, ref("b", true)),
		entity("b", true, ref("c", true)),
		entity("c", true, ref("a", true), ref("b", true)),
	)
	r := New(store)

	for depth := 1; depth <= 5; depth++ {
		store.rounds, store.fetched = 0, map[string]int{}
		out, err := r.ResolveIDs(context.Background(), []string{"a"}, models.ReadOptions{
			Children: models.ChildDepth(depth),
			Role:     models.RoleUser,
		})
		require.NoError(t, err)
		require.Len(t, out, 1)

		assert.LessOrEqual(t, store.rounds, depth+1)
		for id, n := range store.fetched {
			if id != "a" {
				assert.Equal(t, 1, n, "id %s fetched %d times", id, n)
			}
		}
	}
}

func TestResolveMergesUpToDepth(t *testing.T) {
	store := newStore(t,
		entity("a", true, ref("b", true)),
		entity("b", true, ref("c", true)),
		entity("c", true),
	)
	out, err := New(store).ResolveIDs(context.Background(), []string{"a"}, models.ReadOptions{
		Children: models.ChildDepth(1),
		Role:     models.RoleUser,
	})
	require.NoError(t, err)

	b := next(out[0])[0].(map[string]any)
	assert.Equal(t, "Title b", b["title"])
	assert.Equal(t, "b", b["id"])
	assert.NotContains(t, b, "_id")
	assert.NotContains(t, b, "_rev")
	assert.Equal(t, "body b", value.Get(b, "fields", "body", "value"))

	c := next(b)[0].(map[string]any)
	assert.Equal(t, "stale c", c["title"])
	assert.NotContains(t, c, "fields")
	assert.Zero(t, store.fetched["c"])
}

func TestResolveRoleFiltering(t *testing.T) {
	docs := []models.Document{
		entity("a", true, ref("b", true), ref("hidden", false)),
		entity("b", true, ref("hidden", false), ref("c", true)),
		entity("c", true),
		entity("hidden", false),
	}

	guest, err := New(newStore(t, docs...)).ResolveIDs(context.Background(), []string{"a"}, models.ReadOptions{
		Children: models.ChildDepth(3),
		Role:     models.RoleGuest,
	})
	require.NoError(t, err)
	require.Len(t, guest, 1)
	value.Walk(guest[0], func(m map[string]any) bool {
		if _, ok := models.ReferenceID(m); ok && m["type"] == "entity" {
			assert.Equal(t, true, m["published"], "reference %v", m["id"])
		}
		return true
	})
	assert.Len(t, next(guest[0]), 1)

	user, err := New(newStore(t, docs...)).ResolveIDs(context.Background(), []string{"a"}, models.ReadOptions{
		Children: models.ChildDepth(3),
		Role:     models.RoleUser,
	})
	require.NoError(t, err)
	assert.Len(t, next(user[0]), 2)
	hidden := next(user[0])[1].(map[string]any)
	assert.Equal(t, false, hidden["published"])
	assert.Equal(t, "Title hidden", hidden["title"])
}

func TestResolveGuestCannotReadUnpublishedRoot(t *testing.T) {
	out, err := New(newStore(t, entity("x", false))).ResolveIDs(context.Background(), []string{"x", "missing"}, models.ReadOptions{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestResolveDiscardsUnresolvedReferences(t *testing.T) {
	store := newStore(t, entity("a", true, ref("gone", true), ref("b", true)), entity("b", true))
	out, err := New(store).ResolveIDs(context.Background(), []string{"a"}, models.ReadOptions{
		Children: models.ChildDepth(1),
		Role:     models.RoleSuper,
	})
	require.NoError(t, err)

	items := next(out[0])
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].(map[string]any)["id"])
}

func TestResolveWithQueries(t *testing.T) {
	a := entity("a", true, ref("b", true), ref("c", true))
	a["fields"].(map[string]any)["other"] = map[string]any{"type": "entity", "value": []any{ref("d", true)}}
	store := newStore(t, a, entity("b", true, ref("c", true)), entity("c", true), entity("d", true))

	out, err := New(store).ResolveIDs(context.Background(), []string{"a"}, models.ReadOptions{
		Children: models.ChildQueries("next[0]", "next"),
		Role:     models.RoleUser,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.fetched["b"])
	assert.Equal(t, 1, store.fetched["c"])
	assert.Zero(t, store.fetched["d"])

	items := next(out[0])
	b := items[0].(map[string]any)
	assert.Equal(t, "Title b", b["title"])
	assert.Equal(t, "Title c", next(b)[0].(map[string]any)["title"])
	other := value.Get(out[0], "fields", "other", "value").([]any)
	assert.Equal(t, "stale d", other[0].(map[string]any)["title"])
}

func TestResolveParentsAndSelect(t *testing.T) {
	store := newStore(t,
		entity("a", true, ref("c", true)),
		entity("b", false, ref("c", true)),
		entity("c", true),
	)
	r := New(store)

	out, err := r.ResolveIDs(context.Background(), []string{"c"}, models.ReadOptions{
		Parents: models.WithParents(),
		Role:    models.RoleUser,
	})
	require.NoError(t, err)
	parents := out[0]["parents"].([]any)
	require.Len(t, parents, 2)
	assert.Equal(t, "a", parents[0].(map[string]any)["_id"])

	out, err = r.ResolveIDs(context.Background(), []string{"c"}, models.ReadOptions{
		Parents: models.WithParents("title"),
		Select:  "title, parents, body",
		Role:    models.RoleGuest,
	})
	require.NoError(t, err)
	assert.Equal(t, models.Document{
		"_id":     "c",
		"title":   "Title c",
		"parents": []any{map[string]any{"_id": "a", "title": "Title a"}},
		"fields":  map[string]any{"body": map[string]any{"value": "body c"}},
	}, out[0])
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	root := entity("a", true, ref("b", true), ref("x", false))
	before := value.CloneMap(root)
	store := newStore(t, entity("b", true))

	_, err := New(store).Resolve(context.Background(), []models.Document{root}, models.ReadOptions{
		Children: models.ChildDepth(2),
	})
	require.NoError(t, err)
	assert.Equal(t, before, root)
}

func TestResolveBadQueries(t *testing.T) {
	r := New(newStore(t))
	_, err := r.Resolve(context.Background(), nil, models.ReadOptions{Children: models.ChildQueries("a[")})
	assert.ErrorIs(t, err, constants.ErrValidation)
	_, err = r.Resolve(context.Background(), nil, models.ReadOptions{Select: ":"})
	assert.ErrorIs(t, err, constants.ErrValidation)
}

func withTags(doc models.Document) models.Document {
	fields := doc["fields"].(map[string]any)
	fields["tags"] = map[string]any{"type": "taxonomy", "value": []any{
		map[string]any{"id": "t1", "title": "News", "slug": "news"},
		map[string]any{"id": "t2", "title": "Local", "slug": "local", "parents": []any{
			map[string]any{"id": "t1", "title": "News", "slug": "news"},
		}},
	}}
	return doc
}

func tags(doc models.Document) []any {
	items, _ := value.Get(doc, "fields", "tags", "value").([]any)
	return items
}

func TestResolveKeepsTaxonomyTermsForGuests(t *testing.T) {
	store := newStore(t, withTags(entity("a", true, ref("b", true))), entity("b", true))

	for _, opts := range []models.ReadOptions{
		{},
		{Children: models.ChildDepth(2)},
		{Children: models.ChildQueries("tags")},
	} {
		out, err := New(store).ResolveIDs(context.Background(), []string{"a"}, opts)
		require.NoError(t, err)
		require.Len(t, out, 1)
		terms := tags(out[0])
		require.Len(t, terms, 2)
		assert.Equal(t, "News", terms[0].(map[string]any)["title"])
		assert.Equal(t, "Local", terms[1].(map[string]any)["title"])
	}
	assert.Zero(t, store.fetched["t1"])
	assert.Zero(t, store.fetched["t2"])
}
