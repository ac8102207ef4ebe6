package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityDocumentRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := &Entity{
		ID:        "a",
		Type:      "entity",
		Schema:    "article",
		Title:     "Hello",
		Slug:      "hello",
		Published: true,
		CreatedAt: &now,
		Fields: map[string]Field{
			"title": {Type: "text", Value: "Hello"},
		},
		Thumbnail: &Thumbnail{Name: "a.jpg", Width: 4, Height: 3, Ratio: 1.33333},
	}

	doc, err := e.ToDocument()
	require.NoError(t, err)
	assert.Equal(t, "a", DocID(doc))
	assert.Equal(t, "Hello", doc["fields"].(map[string]any)["title"].(map[string]any)["value"])
	_, hasRev := doc["_rev"]
	assert.False(t, hasRev)

	back, err := EntityFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, e.Title, back.Title)
	assert.True(t, back.CreatedAt.Equal(now))
	assert.Equal(t, 1.33333, back.Thumbnail.Ratio)
}

func TestReferencedIDs(t *testing.T) {
	doc := Document{
		"fields": map[string]any{
			"related": map[string]any{"type": "entity", "value": []any{
				map[string]any{"id": "b", "type": "entity"},
				map[string]any{"id": "c"},
				map[string]any{"id": "b", "type": "entity"},
				map[string]any{"id": "opt", "type": "option"},
			}},
			"body": map[string]any{"type": "text", "value": "x"},
		},
	}
	assert.ElementsMatch(t, []string{"b", "c"}, ReferencedIDs(doc))
}

func TestChildrenLimit(t *testing.T) {
	assert.Equal(t, 0, Children{}.Limit())
	assert.Equal(t, 3, ChildDepth(3).Limit())
	assert.Equal(t, 2, ChildQueries("a", "b").Limit())
	assert.False(t, ChildDepth(-1).Enabled())
}

func TestSchemaField(t *testing.T) {
	s := &Schema{Slug: "article", Fields: []SchemaField{{Slug: "title", Type: "text"}}}
	f, ok := s.Field("title")
	assert.True(t, ok)
	assert.Equal(t, "text", f.Type)
	_, ok = s.Field("missing")
	assert.False(t, ok)
	assert.Equal(t, "article", s.DisplayName())
}
