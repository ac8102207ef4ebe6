// Package entitydump writes every live document of a store to a JSON lines
// file and restores such files into a store.
package entitydump

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"

	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/models"
)

type options struct {
	logger logger.Logger
	now    func() time.Time
}

type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithClock replaces time.Now for the manifest timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: logger.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Dump writes every live document of store to w, one JSON object per line,
// ordered by id. It returns the number of documents written.
func Dump(ctx context.Context, store docstore.Store, w io.Writer) (int, error) {
	res, err := store.Find(ctx, docstore.FindQuery{})
	if err != nil {
		return 0, fmt.Errorf("failed to list documents: %w", err)
	}
	docs := res.Docs
	sort.Slice(docs, func(i, j int) bool {
		return models.DocID(docs[i]) < models.DocID(docs[j])
	})

	enc := json.NewEncoder(w)
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := enc.Encode(doc); err != nil {
			return i, fmt.Errorf("failed to encode %s: %w", models.DocID(doc), err)
		}
	}
	return len(docs), nil
}

// DumpFile dumps store into path and writes its manifest.
func DumpFile(ctx context.Context, store docstore.Store, path string, opts ...Option) (*Manifest, error) {
	o := newOptions(opts)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	buf := bufio.NewWriter(io.MultiWriter(f, hash))
	count, err := Dump(ctx, store, buf)
	if err != nil {
		return nil, err
	}
	if err := buf.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write dump file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat dump file: %w", err)
	}

	manifest := &Manifest{
		Filename:  filepath.Base(path),
		Format:    Format,
		CreatedAt: o.now().UTC(),
		Size:      info.Size(),
		Count:     count,
		SHA256:    hex.EncodeToString(hash.Sum(nil)),
	}
	if err := WriteManifest(path, manifest); err != nil {
		return nil, err
	}
	o.logger.Info("dump written", "path", path, "documents", count, "size", FormatBytes(info.Size()))
	return manifest, nil
}
