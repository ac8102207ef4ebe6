package entitygraph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/models"
	"github.com/surrealdb/entitygraph/pkg/search"
)

// Read returns one entity, resolved according to opts. Guests only see
// published entities that are not trashed.
func (c *Client) Read(ctx context.Context, id string, opts models.ReadOptions) (models.Document, error) {
	docs, err := c.resolver.ResolveIDs(ctx, []string{id}, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("entity %s: %w", id, constants.ErrNotFound)
	}
	return docs[0], nil
}

// List returns the entities with the given ids, in order, resolved according
// to opts. Missing entities and entities hidden from the role are omitted.
func (c *Client) List(ctx context.Context, ids []string, opts models.ReadOptions) ([]models.Document, error) {
	return c.resolver.ResolveIDs(ctx, ids, opts)
}

// guestTerms restricts a search query to what guests may see.
const guestTerms = "published:true trashed:false"

// Search runs q against the entity search index, collecting up to limit rows
// across pages, and resolves the documents of the rows. Grouped queries
// return the first page of groups.
func (c *Client) Search(ctx context.Context, q docstore.SearchQuery, limit int, opts models.ReadOptions) (*search.Result, error) {
	if opts.IsGuest() {
		q.Query = strings.TrimSpace(q.Query + " " + guestTerms)
	}
	q.IncludeDocs = true

	res, err := c.searcher.Search(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	if err := c.resolveRows(ctx, res.Rows, opts); err != nil {
		return nil, err
	}
	for i := range res.Groups {
		if err := c.resolveRows(ctx, res.Groups[i].Rows, opts); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (c *Client) resolveRows(ctx context.Context, rows []docstore.SearchRow, opts models.ReadOptions) error {
	var (
		docs []models.Document
		idx  []int
	)
	for i, row := range rows {
		if row.Doc != nil {
			docs = append(docs, row.Doc)
			idx = append(idx, i)
		}
	}
	if len(docs) == 0 {
		return nil
	}
	resolved, err := c.resolver.Resolve(ctx, docs, opts)
	if err != nil {
		return err
	}
	for j, i := range idx {
		rows[i].Doc = resolved[j]
	}
	return nil
}

// Find runs a declarative query and resolves the matching documents. When
// the store lacks an index for the requested sort, the index is created and
// the query retried once.
func (c *Client) Find(ctx context.Context, q docstore.FindQuery, opts models.ReadOptions) (*docstore.FindResult, error) {
	if opts.IsGuest() {
		q.Selector = guestSelector(q.Selector)
	}

	res, err := c.store.Find(ctx, q)
	if errors.Is(err, constants.ErrIndexMissing) {
		indexer, ok := c.store.(docstore.Indexer)
		if !ok {
			return nil, err
		}
		fields := make([]string, len(q.Sort))
		for i, f := range q.Sort {
			fields[i] = f.Field
		}
		c.logger.Warn("find needs an index, creating it", "fields", fields)
		if ierr := indexer.EnsureIndexes(ctx, fields...); ierr != nil {
			return nil, fmt.Errorf("ensure indexes %v: %w", fields, ierr)
		}
		res, err = c.store.Find(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}

	docs, err := c.resolver.Resolve(ctx, res.Docs, opts)
	if err != nil {
		return nil, err
	}
	return &docstore.FindResult{Docs: docs}, nil
}

func guestSelector(sel map[string]any) map[string]any {
	visible := []any{
		map[string]any{"published": true},
		map[string]any{"trashed": map[string]any{"$ne": true}},
	}
	if len(sel) > 0 {
		visible = append([]any{sel}, visible...)
	}
	return map[string]any{"$and": visible}
}

// Revisions returns every available revision of an entity, newest first.
func (c *Client) Revisions(ctx context.Context, id string) ([]models.Document, error) {
	current, err := c.store.Get(ctx, id, docstore.WithRevsInfo())
	if err != nil {
		return nil, err
	}
	info, _ := current["_revs_info"].([]any)
	delete(current, "_revs_info")

	out := []models.Document{current}
	for _, item := range info {
		entry, _ := item.(map[string]any)
		rev, _ := entry["rev"].(string)
		if rev == "" || rev == current["_rev"] || entry["status"] != docstore.RevAvailable {
			continue
		}
		doc, err := c.store.Get(ctx, id, docstore.WithRev(rev))
		if errors.Is(err, constants.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("revision %s of %s: %w", rev, id, err)
		}
		out = append(out, doc)
	}
	return out, nil
}
