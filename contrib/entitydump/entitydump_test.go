package entitydump_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/entitygraph/contrib/entitydump"
	"github.com/surrealdb/entitygraph/pkg/bulk"
	"github.com/surrealdb/entitygraph/pkg/docstore/memory"
	"github.com/surrealdb/entitygraph/pkg/models"
)

func seed(t *testing.T, store *memory.Store, docs ...models.Document) {
	t.Helper()
	for _, doc := range docs {
		_, err := store.Insert(context.Background(), doc)
		require.NoError(t, err)
	}
}

func TestDump(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store,
		models.Document{"_id": "b", "type": "article", "title": "B"},
		models.Document{"_id": "a", "type": "article", "title": "A"},
		models.Document{"_id": "gone", "type": "article"},
	)
	gone, err := store.Get(ctx, "gone")
	require.NoError(t, err)
	_, err = store.Insert(ctx, models.Document{"_id": "gone", "_rev": gone["_rev"], "_deleted": true})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := entitydump.Dump(ctx, store, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"_id":"a"`)
	assert.Contains(t, lines[1], `"_id":"b"`)
}

func TestDumpAndRestoreFile(t *testing.T) {
	ctx := context.Background()
	source := memory.New()
	seed(t, source,
		models.Document{"_id": "a", "type": "article", "title": "A", "tags": []any{"x", "y"}},
		models.Document{"_id": "b", "type": "article", "title": "B", "rating": 4.5},
	)

	path := filepath.Join(t.TempDir(), "dumps", "entities.jsonl")
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	manifest, err := entitydump.DumpFile(ctx, source, path, entitydump.WithClock(func() time.Time { return created }))
	require.NoError(t, err)
	assert.Equal(t, "entities.jsonl", manifest.Filename)
	assert.Equal(t, 2, manifest.Count)
	assert.Equal(t, created, manifest.CreatedAt)
	assert.Len(t, manifest.SHA256, 64)

	read, err := entitydump.ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, manifest.SHA256, read.SHA256)
	assert.Equal(t, manifest.Size, read.Size)

	target := memory.New()
	seed(t, target, models.Document{"_id": "a", "type": "article", "title": "stale"})

	res, err := entitydump.RestoreFile(ctx, bulk.New(target), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Restored)
	assert.Empty(t, res.Failed)

	a, err := target.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", a["title"])
	assert.Equal(t, []any{"x", "y"}, a["tags"])
	b, err := target.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 4.5, b["rating"])
}

func TestRestoreFileChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	source := memory.New()
	seed(t, source, models.Document{"_id": "a", "title": "A"})

	path := filepath.Join(t.TempDir(), "entities.jsonl")
	_, err := entitydump.DumpFile(ctx, source, path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(`{"_id":"a","title":"tampered"}`+"\n"), 0600))

	_, err = entitydump.RestoreFile(ctx, bulk.New(memory.New()), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestRestoreFileWithoutManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"_id":"a"}`+"\n"), 0600))

	_, err := entitydump.RestoreFile(context.Background(), bulk.New(memory.New()), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifests are mandatory")
}

func TestRestoreErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bad json", "{\"_id\":\"a\"}\n{nope\n", "line 2"},
		{"missing id", "\n{\"title\":\"x\"}\n", "line 2: document has no _id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := entitydump.Restore(context.Background(), bulk.New(memory.New()), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestManifestValidate(t *testing.T) {
	m := &entitydump.Manifest{Format: entitydump.Format, SHA256: "abc"}
	require.NoError(t, m.Validate())

	m.Format = "other"
	assert.Error(t, m.Validate())

	m = &entitydump.Manifest{Format: entitydump.Format}
	assert.ErrorContains(t, m.Validate(), "sha256")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, entitydump.FormatBytes(tt.in))
	}
}
