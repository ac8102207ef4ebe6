// Package propagate keeps the denormalised reference copies embedded in other
// entities in step with the entity they point at.
//
// Propagation is a fan-out after the primary write, not part of it. If it is
// interrupted the references stay stale until the next successful run for the
// same entity.
package propagate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/bulk"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/fieldtype"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/metrics"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// Watched are the top-level attributes copied into references.
var Watched = []string{"published", "slug", "title", "thumbnail"}

// FileRemover deletes stored binaries by file name.
type FileRemover interface {
	RemoveFiles(ctx context.Context, names []string) error
}

// Propagator is the change propagator.
type Propagator struct {
	store   docstore.Store
	writer  *bulk.Writer
	types   *fieldtype.Registry
	files   FileRemover
	logger  logger.Logger
	metrics *metrics.Metrics
}

type Option func(*Propagator)

// WithFileRemover sets the collaborator told about media files that are no
// longer referenced.
func WithFileRemover(f FileRemover) Option {
	return func(p *Propagator) {
		p.files = f
	}
}

func WithLogger(l logger.Logger) Option {
	return func(p *Propagator) {
		p.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Propagator) {
		p.metrics = m
	}
}

// New returns a Propagator writing through writer.
func New(store docstore.Store, writer *bulk.Writer, types *fieldtype.Registry, opts ...Option) *Propagator {
	p := &Propagator{
		store:  store,
		writer: writer,
		types:  types,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Changes inspects the difference between two versions of an entity. refresh
// is true when a watched attribute changed. files lists the media file names
// the old version referenced that the new version no longer does.
func (p *Propagator) Changes(old, new models.Document) (refresh bool, files []string) {
	touched := map[string]bool{}
	for _, change := range value.Diff(old, new) {
		if isWatched(change.Key()) {
			refresh = true
		}
		if len(change.Path) >= 2 && change.Path[0] == "fields" && (len(change.Path) == 2 || change.Path[2] == "value") {
			touched[change.Path[1]] = true
		}
	}

	slugs := make([]string, 0, len(touched))
	for slug := range touched {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	for _, slug := range slugs {
		typ := value.String(value.Get(old, "fields", slug, "type"))
		if !p.types.Lookup(typ).IsMedia() {
			continue
		}
		kept := map[string]bool{}
		for _, name := range FileNames(value.Get(new, "fields", slug, "value")) {
			kept[name] = true
		}
		for _, name := range FileNames(value.Get(old, "fields", slug, "value")) {
			if !kept[name] {
				files = append(files, name)
			}
		}
	}
	return refresh, files
}

func isWatched(key string) bool {
	for _, w := range Watched {
		if w == key {
			return true
		}
	}
	return false
}

// FileNames returns the stored file names held by a media field value.
func FileNames(v any) []string {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
	}
	var names []string
	for _, item := range items {
		m, _ := item.(map[string]any)
		if name := value.String(m["name"]); name != "" {
			names = append(names, name)
		}
		if poster, ok := m["poster"].(map[string]any); ok {
			if name := value.String(poster["name"]); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// Result reports a propagation run.
type Result struct {
	Updated []models.Document
	Failed  []bulk.Failure
	Files   []string
}

// Propagate compares the stored old version of an entity with its new version
// and refreshes the references other entities hold to it.
func (p *Propagator) Propagate(ctx context.Context, old, new models.Document) (*Result, error) {
	refresh, files := p.Changes(old, new)

	res := &Result{Files: files}
	if refresh {
		refreshed, err := p.Refresh(ctx, []models.Document{new})
		if err != nil {
			return nil, err
		}
		res.Updated, res.Failed = refreshed.Updated, refreshed.Failed
	}
	p.RemoveFiles(ctx, files)
	return res, nil
}

// RemoveFiles hands names to the file remover, if one is configured. Failures
// are logged only.
func (p *Propagator) RemoveFiles(ctx context.Context, names []string) {
	if p.files == nil || len(names) == 0 {
		return
	}
	if err := p.files.RemoveFiles(ctx, names); err != nil {
		p.logger.Warn("removing files failed", "files", names, "error", err)
	}
}

// Refresh rewrites every reference to one of sources held by other entities.
// Only the reference's slug, title, schema, published and thumbnail change;
// the referencing entity keeps its modification stamp.
func (p *Propagator) Refresh(ctx context.Context, sources []models.Document) (*Result, error) {
	byID := make(map[string]models.Document, len(sources))
	keys := make([]string, 0, len(sources))
	for _, src := range sources {
		if id := models.DocID(src); id != "" {
			byID[id] = src
			keys = append(keys, id)
		}
	}
	if len(keys) == 0 {
		return &Result{}, nil
	}

	referencing, err := p.referencing(ctx, keys)
	if err != nil {
		return nil, err
	}

	var pending []models.Document
	for _, doc := range referencing {
		if Patch(doc, byID) {
			pending = append(pending, doc)
		}
	}
	if len(pending) == 0 {
		return &Result{}, nil
	}

	written, err := p.writer.ChunkedWrite(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("propagate to %d entities: %w", len(pending), err)
	}
	failed := written.Failed

	if conflicts := written.Conflicts(); len(conflicts) > 0 {
		failed, err = p.retry(ctx, pending, written, byID)
		if err != nil {
			return nil, err
		}
	}

	res := &Result{Failed: failed}
	bad := map[string]bool{}
	for _, f := range failed {
		bad[f.ID] = true
	}
	for _, doc := range pending {
		if !bad[models.DocID(doc)] {
			res.Updated = append(res.Updated, doc)
		}
	}

	p.metrics.Propagated(len(res.Updated), len(res.Failed))
	p.logger.Info("propagated reference changes", "sources", keys, "updated", len(res.Updated), "failed", len(res.Failed))
	return res, nil
}

// retry re-reads the documents that conflicted, patches them again and writes
// them once more. It returns the failures that remain.
func (p *Propagator) retry(ctx context.Context, pending []models.Document, written *bulk.Result, byID map[string]models.Document) ([]bulk.Failure, error) {
	var (
		remaining []bulk.Failure
		again     []models.Document
		slots     []int
	)
	for _, f := range written.Failed {
		if !errors.Is(f.Err, constants.ErrConflict) {
			remaining = append(remaining, f)
			continue
		}
		fresh, err := p.store.Get(ctx, models.DocID(pending[f.Index]))
		if errors.Is(err, constants.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("refetch %s: %w", f.ID, err)
		}
		if Patch(fresh, byID) {
			again = append(again, fresh)
			slots = append(slots, f.Index)
		}
	}
	if len(again) == 0 {
		return remaining, nil
	}

	p.logger.Warn("retrying conflicted propagation writes", "count", len(again))
	res, err := p.writer.ChunkedWrite(ctx, again)
	if err != nil {
		return nil, fmt.Errorf("propagate retry: %w", err)
	}
	failedAgain := map[int]bool{}
	for _, f := range res.Failed {
		failedAgain[f.Index] = true
		remaining = append(remaining, bulk.Failure{Index: slots[f.Index], ID: f.ID, Err: f.Err})
	}
	for i, doc := range again {
		p.metrics.Conflict("propagate", !failedAgain[i])
		if !failedAgain[i] {
			pending[slots[i]] = doc
		}
	}
	return remaining, nil
}

// referencing returns the distinct entities embedding a reference to one of ids.
func (p *Propagator) referencing(ctx context.Context, ids []string) ([]models.Document, error) {
	res, err := p.store.View(ctx, constants.DesignEntity, constants.ViewChildren, docstore.ViewQuery{
		Keys:        ids,
		IncludeDocs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("referencing entities: %w", err)
	}
	seen := map[string]bool{}
	var docs []models.Document
	for _, row := range res.Rows {
		if row.Doc == nil || seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		docs = append(docs, row.Doc)
	}
	return docs, nil
}

// Patch rewrites, in place, the references in doc that point at one of
// sources. It reports whether anything changed.
func Patch(doc models.Document, sources map[string]models.Document) bool {
	changed := false
	models.ForEachReference(doc, func(ref map[string]any) bool {
		id, _ := models.ReferenceID(ref)
		src, ok := sources[id]
		if !ok {
			return true
		}
		for _, key := range []string{"slug", "title", "schema", "published", "thumbnail"} {
			next := value.Clone(src[key])
			if key == "published" {
				next = value.Bool(src[key])
			}
			if value.Equal(ref[key], next) {
				continue
			}
			ref[key] = next
			changed = true
		}
		return true
	})
	return changed
}

// Unlink removes, in place, every reference in doc to one of ids. It reports
// whether anything was removed.
func Unlink(doc models.Document, ids map[string]bool) bool {
	removed := false
	fields, _ := doc["fields"].(map[string]any)
	for _, f := range fields {
		field, _ := f.(map[string]any)
		if models.IsTaxonomyField(field) {
			continue
		}
		items, ok := field["value"].([]any)
		if !ok {
			continue
		}
		kept := make([]any, 0, len(items))
		for _, item := range items {
			if ref, ok := item.(map[string]any); ok {
				if id, isRef := models.ReferenceID(ref); isRef && ids[id] {
					removed = true
					continue
				}
			}
			kept = append(kept, item)
		}
		field["value"] = kept
	}
	return removed
}
