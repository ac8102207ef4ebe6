package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/models"
)

func entity(id, title string, refs ...string) models.Document {
	var value []any
	for _, ref := range refs {
		value = append(value, map[string]any{"id": ref, "type": "entity"})
	}
	return models.Document{
		"_id":       id,
		"type":      "entity",
		"schema":    "article",
		"title":     title,
		"published": true,
		"fields": map[string]any{
			"related": map[string]any{"type": "entity", "value": value},
		},
	}
}

func TestInsertAndConflicts(t *testing.T) {
	ctx := context.Background()
	s := New()

	res, err := s.Insert(ctx, entity("a", "A"))
	require.NoError(t, err)
	assert.Equal(t, "a", res.ID)
	assert.Regexp(t, `^1-[a-z0-9]{32}$`, res.Rev)

	_, err = s.Insert(ctx, entity("a", "A again"))
	assert.ErrorIs(t, err, constants.ErrConflict)

	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	doc["title"] = "A2"
	res2, err := s.Insert(ctx, doc)
	require.NoError(t, err)
	assert.Regexp(t, `^2-`, res2.Rev)

	doc["title"] = "stale"
	_, err = s.Insert(ctx, doc)
	assert.ErrorIs(t, err, constants.ErrConflict)

	missing := entity("nope", "x")
	missing["_rev"] = "1-abc"
	_, err = s.Insert(ctx, missing)
	assert.ErrorIs(t, err, constants.ErrConflict)
}

func TestGetIsCopyOnRead(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Insert(ctx, entity("a", "A"))
	require.NoError(t, err)

	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	doc["title"] = "mutated"

	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", again["title"])
}

func TestRevisionsAndTombstones(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.Insert(ctx, entity("a", "v1"))
	require.NoError(t, err)
	doc, err := s.Get(ctx, "a")
	require.NoError(t, err)
	doc["title"] = "v2"
	_, err = s.Insert(ctx, doc)
	require.NoError(t, err)

	withInfo, err := s.Get(ctx, "a", docstore.WithRevsInfo())
	require.NoError(t, err)
	info := withInfo["_revs_info"].([]any)
	require.Len(t, info, 2)
	assert.Equal(t, first.Rev, info[1].(map[string]any)["rev"])

	old, err := s.Get(ctx, "a", docstore.WithRev(first.Rev))
	require.NoError(t, err)
	assert.Equal(t, "v1", old["title"])

	current, err := s.Get(ctx, "a")
	require.NoError(t, err)
	_, err = s.Insert(ctx, models.Document{"_id": "a", "_rev": current["_rev"], "_deleted": true})
	require.NoError(t, err)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, constants.ErrNotFound)
	rows, err := s.Fetch(ctx, []string{"a", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, "deleted", rows[0].Error)
	assert.Equal(t, "not_found", rows[1].Error)
	assert.Equal(t, 0, s.Len())

	_, err = s.Insert(ctx, entity("a", "reborn"))
	require.NoError(t, err)
}

func TestBulkResultsArePositional(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Insert(ctx, entity("b", "B"))
	require.NoError(t, err)

	results, err := s.Bulk(ctx, []models.Document{entity("a", "A"), entity("b", "stale"), {"type": "entity"}})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.ErrorIs(t, results[1].Err, constants.ErrConflict)
	assert.True(t, results[2].OK())
	assert.NotEmpty(t, results[2].ID)
}

func TestViews(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Bulk(ctx, []models.Document{
		entity("a", "A", "c"),
		entity("b", "B", "c", "a"),
		entity("c", "C"),
	})
	require.NoError(t, err)

	res, err := s.View(ctx, constants.DesignEntity, constants.ViewChildren, docstore.ViewQuery{
		Keys:        []string{"c"},
		IncludeDocs: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0].ID)
	assert.Equal(t, "B", res.Rows[1].Doc["title"])

	grouped, err := s.View(ctx, constants.DesignEntity, constants.ViewChildren, docstore.ViewQuery{Group: true})
	require.NoError(t, err)
	assert.Equal(t, []docstore.ViewRow{{Key: "a", Value: 1.0}, {Key: "c", Value: 2.0}}, grouped.Rows)

	_, err = s.View(ctx, "nope", "nope", docstore.ViewQuery{})
	assert.ErrorIs(t, err, constants.ErrNotFound)
}

func TestSearchPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	var docs []models.Document
	for i := range 450 {
		docs = append(docs, entity(fmt.Sprintf("e%03d", i), fmt.Sprintf("Item %d", i)))
	}
	_, err := s.Bulk(ctx, docs)
	require.NoError(t, err)

	seen := map[string]bool{}
	bookmark := ""
	pages := 0
	for {
		res, err := s.Search(ctx, constants.DesignEntity, constants.IndexSearch, docstore.SearchQuery{
			Query:    "schema:article",
			Limit:    500,
			Bookmark: bookmark,
		})
		require.NoError(t, err)
		assert.Equal(t, 450, res.TotalRows)
		if len(res.Rows) == 0 {
			break
		}
		assert.LessOrEqual(t, len(res.Rows), constants.MaxSearchPage)
		for _, row := range res.Rows {
			assert.False(t, seen[row.ID])
			seen[row.ID] = true
		}
		pages++
		bookmark = res.Bookmark
	}
	assert.Equal(t, 3, pages)
	assert.Len(t, seen, 450)
}

func TestSearchSortAndGroups(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b, c := entity("a", "Beta"), entity("b", "Alpha"), entity("c", "Gamma")
	c["schema"] = "page"
	_, err := s.Bulk(ctx, []models.Document{a, b, c})
	require.NoError(t, err)

	res, err := s.Search(ctx, constants.DesignEntity, constants.IndexSearch, docstore.SearchQuery{
		Query:       "*:*",
		Sort:        []string{"-title<string>"},
		IncludeDocs: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{res.Rows[0].ID, res.Rows[1].ID, res.Rows[2].ID})
	assert.Equal(t, "Gamma", res.Rows[0].Doc["title"])

	grouped, err := s.Search(ctx, constants.DesignEntity, constants.IndexSearch, docstore.SearchQuery{
		Query:      "*:*",
		GroupField: "schema",
	})
	require.NoError(t, err)
	require.Len(t, grouped.Groups, 2)
	assert.Equal(t, "article", grouped.Groups[0].By)
	assert.Equal(t, 2, grouped.Groups[0].TotalRows)

	_, err = s.Search(ctx, constants.DesignEntity, constants.IndexSearch, docstore.SearchQuery{Bookmark: "!!"})
	assert.ErrorIs(t, err, constants.ErrValidation)
}

func TestFindRequiresIndexForSort(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, err := s.Bulk(ctx, []models.Document{entity("a", "B"), entity("b", "A"), entity("c", "C")})
	require.NoError(t, err)

	q := docstore.FindQuery{
		Selector: map[string]any{"title": map[string]any{"$lt": "C"}},
		Sort:     []docstore.SortField{{Field: "title"}},
		Fields:   []string{"title"},
	}
	_, err = s.Find(ctx, q)
	assert.ErrorIs(t, err, constants.ErrIndexMissing)

	require.NoError(t, s.EnsureIndexes(ctx, "title"))
	res, err := s.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, res.Docs, 2)
	assert.Equal(t, "A", res.Docs[0]["title"])
	assert.NotContains(t, res.Docs[0], "fields")

	q.Skip, q.Limit = 1, 5
	res, err = s.Find(ctx, q)
	require.NoError(t, err)
	require.Len(t, res.Docs, 1)
	assert.Equal(t, "B", res.Docs[0]["title"])
}
