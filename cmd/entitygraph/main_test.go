package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/entitygraph/config"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/docstore/memory"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/models"
)

const articleYAML = `slug: article
titleTemplate: "{headline}"
fields:
  - {slug: headline, type: text}
  - {slug: cover, type: image}
`

const pageYAML = `slug: page
fields:
  - {slug: name, type: text}
  - {slug: links, type: entity}
`

// setup writes a config using the memory driver and a schema directory.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	schemas := filepath.Join(dir, "schemas")
	require.NoError(t, os.MkdirAll(schemas, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(schemas, "article.yaml"), []byte(articleYAML), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(schemas, "page.yaml"), []byte(pageYAML), 0600))

	path := filepath.Join(dir, "entitygraph.yaml")
	conf := "store:\n  driver: memory\nschemas:\n  dir: " + schemas + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(conf), 0600))
	return path
}

type harness struct {
	t      *testing.T
	config string
	store  *memory.Store
}

func newHarness(t *testing.T) *harness {
	t.Setenv(config.EnvPrefix+"STORE_DRIVER", "")
	return &harness{t: t, config: setup(t), store: memory.New()}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	a := &app{open: func(context.Context, *config.Config, logger.Logger) (docstore.Store, error) {
		return h.store, nil
	}}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", h.config}, args...))

	err := cmd.ExecuteContext(context.Background())
	require.NoError(h.t, a.close(context.Background()))
	return out.String(), err
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.run(stdin, args...)
	require.NoError(h.t, err)
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

const seedJSON = `[
  {"_id": "a", "schema": "article", "published": true, "fields": {"headline": {"value": "Hello there"}}},
  {"_id": "b", "schema": "article", "published": false, "fields": {"headline": {"value": "Hidden draft"}}},
  {"_id": "p", "schema": "page", "published": true,
   "fields": {"name": {"value": "Home"}, "links": {"value": [{"id": "a", "title": "a", "published": true}]}}}
]`

func TestCreateAndRead(t *testing.T) {
	h := newHarness(t)

	created := decode[[]models.Document](t, h.mustRun(seedJSON, "create", "--actor", "cli"))
	require.Len(t, created, 3)
	assert.Equal(t, "Hello there", created[0]["title"])
	assert.Equal(t, "hello-there", created[0]["slug"])
	assert.Equal(t, "cli", created[0]["createdBy"])

	doc := decode[models.Document](t, h.mustRun("", "read", "a"))
	assert.Equal(t, "Hello there", doc["title"])

	docs := decode[[]models.Document](t, h.mustRun("", "list", "p", "a", "--role", "user"))
	require.Len(t, docs, 2)
	assert.Equal(t, "p", docs[0]["_id"])
	assert.Equal(t, "a", docs[1]["_id"])
}

func TestCreateFromFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "article.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"_id":"f","schema":"article","fields":{"headline":{"value":"From file"}}}`), 0600))

	created := decode[[]models.Document](t, h.mustRun("", "create", path))
	require.Len(t, created, 1)
	assert.Equal(t, "From file", created[0]["title"])
}

func TestReadErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("", "read", "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = h.run("", "read", "a", "--role", "admin")
	assert.ErrorContains(t, err, `unknown role "admin"`)

	_, err = h.run("{nope", "create")
	assert.ErrorContains(t, err, "failed to parse document")
}

func TestUpdateAndRevisions(t *testing.T) {
	h := newHarness(t)
	h.mustRun(seedJSON, "create")

	updated := decode[[]models.Document](t, h.mustRun(`{"_id":"a","fields":{"headline":{"value":"Goodbye"}}}`, "update"))
	require.Len(t, updated, 1)
	assert.Equal(t, "Goodbye", updated[0]["title"])

	page := decode[models.Document](t, h.mustRun("", "read", "p", "--role", "super"))
	fields := page["fields"].(map[string]any)
	refs := fields["links"].(map[string]any)["value"].([]any)
	require.Len(t, refs, 1)
	assert.Equal(t, "Goodbye", refs[0].(map[string]any)["title"])

	revs := decode[[]models.Document](t, h.mustRun("", "revisions", "a"))
	require.Len(t, revs, 2)
	assert.Equal(t, "Goodbye", revs[0]["title"])
	assert.Equal(t, "Hello there", revs[1]["title"])
}

func TestSearchAndFind(t *testing.T) {
	h := newHarness(t)
	h.mustRun(seedJSON, "create")

	var res struct {
		Rows []struct {
			ID  string          `json:"id"`
			Doc models.Document `json:"doc"`
		} `json:"rows"`
		TotalRows int `json:"total_rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "search", "schema:article")), &res))
	assert.Equal(t, 1, res.TotalRows)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "a", res.Rows[0].ID)

	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "search", "schema:article", "--role", "user")), &res))
	assert.Equal(t, 2, res.TotalRows)

	docs := decode[[]models.Document](t, h.mustRun("", "find", `{"schema":"article"}`, "--role", "user", "--sort", "-title"))
	require.Len(t, docs, 2)
	assert.Equal(t, "Hidden draft", docs[0]["title"])
	assert.Equal(t, "Hello there", docs[1]["title"])

	docs = decode[[]models.Document](t, h.mustRun("", "find", `{"schema":"article"}`))
	require.Len(t, docs, 1)

	_, err := h.run("", "find", "{nope")
	assert.ErrorContains(t, err, "failed to parse selector")
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	h.mustRun(seedJSON, "create")

	h.mustRun("", "delete", "a")
	doc := decode[models.Document](t, h.mustRun("", "read", "a", "--role", "super"))
	assert.Equal(t, true, doc["trashed"])

	var res struct {
		Entities []models.Document `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("", "delete", "--forever", "trashed")), &res))
	require.Len(t, res.Entities, 1)

	_, err := h.run("", "read", "a", "--role", "super")
	assert.ErrorContains(t, err, "not found")

	page := decode[models.Document](t, h.mustRun("", "read", "p", "--role", "super"))
	links := page["fields"].(map[string]any)["links"].(map[string]any)["value"]
	assert.Empty(t, links)
}

func TestDumpAndRestore(t *testing.T) {
	h := newHarness(t)
	h.mustRun(seedJSON, "create")

	path := filepath.Join(t.TempDir(), "entities.jsonl")
	manifest := decode[map[string]any](t, h.mustRun("", "dump", path))
	assert.Equal(t, 3.0, manifest["count"])

	h.store = memory.New()
	out := decode[map[string]any](t, h.mustRun("", "restore", path))
	assert.Equal(t, 3.0, out["restored"])
	assert.Equal(t, 0.0, out["failed"])

	doc := decode[models.Document](t, h.mustRun("", "read", "a"))
	assert.Equal(t, "Hello there", doc["title"])
}

func TestParseSort(t *testing.T) {
	assert.Equal(t, []docstore.SortField{
		{Field: "title", Desc: true},
		{Field: "slug"},
		{Field: "rating"},
	}, parseSort([]string{"-title", "+slug", "rating"}))
}
