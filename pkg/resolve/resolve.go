// Package resolve expands entity references into the entities they point at,
// level by level up to a depth limit, and attaches reverse-linked parents.
//
// Every id is fetched at most once per call. The fetched entities live in a
// single id-keyed map and merged trees are built from copies, so reference
// cycles can neither loop nor alias.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/metrics"
	"github.com/surrealdb/entitygraph/pkg/models"
	"github.com/surrealdb/entitygraph/pkg/selector"
)

// Resolver is the reference graph resolver.
type Resolver struct {
	store       docstore.Store
	batchSize   int
	concurrency int
	logger      logger.Logger
	metrics     *metrics.Metrics
}

type Option func(*Resolver)

// WithBatchSize sets the number of ids per multi-get.
func WithBatchSize(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithConcurrency bounds the multi-gets in flight for one level.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New returns a Resolver reading from store.
func New(store docstore.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		batchSize:   constants.DefaultFetchBatch,
		concurrency: constants.DefaultConcurrency,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Visible reports whether a root entity may be shown to role. Guests see only
// published, untrashed entities.
func Visible(doc models.Document, role models.Role) bool {
	if !(models.ReadOptions{Role: role}).IsGuest() {
		return true
	}
	return value.Bool(doc["published"]) && !value.Bool(doc["trashed"])
}

// FilterReferences removes the unpublished entity references a guest may not
// see from the array fields of doc, in place.
func FilterReferences(doc models.Document, role models.Role) {
	if !(models.ReadOptions{Role: role}).IsGuest() {
		return
	}
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
		kept := items[:0:0]
		for _, item := range items {
			if ref, ok := item.(map[string]any); ok {
				if _, isRef := models.ReferenceID(ref); isRef && !value.Bool(ref["published"]) {
					continue
				}
			}
			kept = append(kept, item)
		}
		field["value"] = kept
	}
}

// call is the state of one resolution.
type call struct {
	opts      models.ReadOptions
	limit     int
	queries   []*selector.Selector
	resolved  map[string]models.Document
	attempted map[string]bool
	rounds    int
	fetched   int
}

// ResolveIDs fetches the given roots and resolves them. Roots that do not
// exist, or that role may not see, are omitted.
func (r *Resolver) ResolveIDs(ctx context.Context, ids []string, opts models.ReadOptions) ([]models.Document, error) {
	docs, err := r.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	roots := make([]models.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := docs[id]; ok && Visible(doc, opts.Role) {
			roots = append(roots, doc)
		}
	}
	return r.Resolve(ctx, roots, opts)
}

// Resolve expands the references of docs according to opts. docs are not
// modified. The result holds one document per input document, in order.
func (r *Resolver) Resolve(ctx context.Context, docs []models.Document, opts models.ReadOptions) ([]models.Document, error) {
	c := &call{
		opts:      opts,
		limit:     opts.Children.Limit(),
		resolved:  map[string]models.Document{},
		attempted: map[string]bool{},
	}
	for _, q := range opts.Children.Queries {
		sel, err := selector.Parse(q, selector.FieldRewrite())
		if err != nil {
			return nil, fmt.Errorf("%w: children query %q: %v", constants.ErrValidation, q, err)
		}
		c.queries = append(c.queries, sel)
	}
	var projection *selector.Selector
	if opts.Select != "" {
		sel, err := selector.Parse(opts.Select, selector.FieldRewrite())
		if err != nil {
			return nil, fmt.Errorf("%w: select %q: %v", constants.ErrValidation, opts.Select, err)
		}
		projection = sel
	}

	roots := make([]models.Document, len(docs))
	for i, doc := range docs {
		roots[i] = value.CloneMap(doc)
		FilterReferences(roots[i], opts.Role)
		if id := models.DocID(roots[i]); id != "" {
			c.resolved[id] = roots[i]
			c.attempted[id] = true
		}
	}

	var parents map[string][]any
	if opts.Parents.Enabled {
		var err error
		if parents, err = r.parents(ctx, roots, opts); err != nil {
			return nil, err
		}
	}

	if err := r.expand(ctx, c, roots); err != nil {
		return nil, err
	}

	out := make([]models.Document, len(roots))
	for i, root := range roots {
		merged := c.merge(root, 0)
		if parents != nil {
			merged["parents"] = parents[models.DocID(root)]
		}
		if projection != nil {
			merged = projection.Project(merged)
		}
		out[i] = merged
	}

	r.metrics.Resolved(c.rounds, c.fetched)
	r.logger.Debug("resolved graph", "roots", len(roots), "rounds", c.rounds, "fetched", c.fetched)
	return out, nil
}

// expand fetches one level of references per round until the depth limit is
// reached or a level yields no new ids.
func (r *Resolver) expand(ctx context.Context, c *call, frontier []models.Document) error {
	for depth := 0; depth < c.limit && len(frontier) > 0; depth++ {
		var ids []string
		for _, doc := range frontier {
			for _, id := range c.childIDs(doc, depth) {
				if !c.attempted[id] {
					c.attempted[id] = true
					ids = append(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			return nil
		}

		docs, err := r.fetch(ctx, ids)
		if err != nil {
			return err
		}
		c.rounds++

		frontier = frontier[:0:0]
		for _, id := range ids {
			doc, ok := docs[id]
			if !ok || !Visible(doc, c.opts.Role) {
				continue
			}
			FilterReferences(doc, c.opts.Role)
			c.resolved[id] = doc
			c.fetched++
			frontier = append(frontier, doc)
		}
		r.logger.Debug("resolved level", "depth", depth, "requested", len(ids), "found", len(frontier))
	}
	return nil
}

// childIDs returns the ids to expand below doc at depth: the references picked
// by that level's query, or every entity reference when expanding by count.
func (c *call) childIDs(doc models.Document, depth int) []string {
	if len(c.queries) == 0 {
		return models.ReferencedIDs(doc)
	}

	var ids []string
	seen := map[string]bool{}
	for _, v := range c.queries[depth].Eval(withoutTaxonomies(doc)) {
		value.Walk(v, func(m map[string]any) bool {
			if id, ok := models.ReferenceID(m); ok {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
				return false
			}
			return true
		})
	}
	return ids
}

// withoutTaxonomies returns a shallow copy of doc whose fields exclude
// taxonomy fields, so child queries never pick terms as references.
func withoutTaxonomies(doc models.Document) models.Document {
	fields, ok := doc["fields"].(map[string]any)
	if !ok {
		return doc
	}
	kept := make(map[string]any, len(fields))
	for slug, f := range fields {
		if field, _ := f.(map[string]any); models.IsTaxonomyField(field) {
			continue
		}
		kept[slug] = f
	}
	out := make(models.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	out["fields"] = kept
	return out
}

// fetch multi-gets ids in concurrent batches and returns the documents found.
func (r *Resolver) fetch(ctx context.Context, ids []string) (map[string]models.Document, error) {
	var batches [][]string
	for start := 0; start < len(ids); start += r.batchSize {
		batches = append(batches, ids[start:min(start+r.batchSize, len(ids))])
	}

	results := make([][]docstore.Row, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			rows, err := r.store.Fetch(gctx, batch)
			if err != nil {
				return fmt.Errorf("fetch %d entities: %w", len(batch), err)
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make(map[string]models.Document, len(ids))
	for _, rows := range results {
		for _, row := range rows {
			if row.Doc != nil && row.Error == "" {
				docs[row.ID] = row.Doc
			}
		}
	}
	return docs, nil
}

// merge returns a copy of doc whose entity references are replaced by the
// resolved entities they point at. References below the depth limit stay
// stubs; references whose fetch found nothing visible are dropped. Private
// attributes of the resolved entity are never spliced into a reference.
func (c *call) merge(doc models.Document, depth int) models.Document {
	out := value.CloneMap(doc)
	if depth >= c.limit {
		return out
	}

	fields, _ := out["fields"].(map[string]any)
	for _, f := range fields {
		field, _ := f.(map[string]any)
		if models.IsTaxonomyField(field) {
			continue
		}
		items, ok := field["value"].([]any)
		if !ok {
			continue
		}
		merged := make([]any, 0, len(items))
		for _, item := range items {
			ref, isMap := item.(map[string]any)
			id, isRef := models.ReferenceID(ref)
			if !isMap || !isRef {
				merged = append(merged, item)
				continue
			}
			target, found := c.resolved[id]
			switch {
			case found:
				for k, v := range c.merge(target, depth+1) {
					if !strings.HasPrefix(k, constants.PrivatePrefix) {
						ref[k] = v
					}
				}
				merged = append(merged, ref)
			case c.attempted[id]:
				// fetched but missing or hidden
			default:
				merged = append(merged, ref)
			}
		}
		field["value"] = merged
	}
	return out
}

// parents returns, per root id, the entities referencing that root. Parents
// keep their private attributes and are projected by the parent queries.
func (r *Resolver) parents(ctx context.Context, roots []models.Document, opts models.ReadOptions) (map[string][]any, error) {
	keys := make([]string, 0, len(roots))
	out := make(map[string][]any, len(roots))
	for _, root := range roots {
		if id := models.DocID(root); id != "" {
			keys = append(keys, id)
			out[id] = []any{}
		}
	}
	if len(keys) == 0 {
		return out, nil
	}

	var projection *selector.Selector
	if len(opts.Parents.Queries) > 0 {
		sel, err := selector.Parse(strings.Join(opts.Parents.Queries, ","), selector.FieldRewrite())
		if err != nil {
			return nil, fmt.Errorf("%w: parents query: %v", constants.ErrValidation, err)
		}
		projection = sel
	}

	res, err := r.store.View(ctx, constants.DesignEntity, constants.ViewChildren, docstore.ViewQuery{
		Keys:        keys,
		IncludeDocs: true,
	})
	if err != nil {
		return nil, fmt.Errorf("parents of %d entities: %w", len(keys), err)
	}

	for _, row := range res.Rows {
		if row.Doc == nil || !Visible(row.Doc, opts.Role) {
			continue
		}
		parent := row.Doc
		FilterReferences(parent, opts.Role)
		if projection != nil {
			parent = projection.Project(parent)
		}
		out[row.Key] = append(out[row.Key], parent)
	}
	return out, nil
}
