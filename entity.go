package entitygraph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/bulk"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/models"
	"github.com/surrealdb/entitygraph/pkg/propagate"
)

// Create normalizes raws against their schemas and writes them. Entities
// without an `_id` get a new one. The returned documents carry their
// revision; when some writes fail the written ones are returned together
// with an error wrapping constants.ErrPartialBulk.
func (c *Client) Create(ctx context.Context, raws ...models.Document) ([]models.Document, error) {
	actor, now := ActorFrom(ctx), c.now()

	docs := make([]models.Document, len(raws))
	for i, raw := range raws {
		doc, err := c.normalizer.Normalize(ctx, raw, actor, now)
		if err != nil {
			return nil, constants.Wrap(fmt.Errorf("entity %d: %w", i, err))
		}
		delete(doc, "_rev")
		if models.DocID(doc) == "" {
			doc["_id"] = models.NewID()
		}
		docs[i] = doc
	}

	res, err := c.writer.ChunkedWrite(ctx, docs)
	if err != nil {
		return nil, constants.Wrap(err)
	}
	return written(res.Docs, res.Failed), constants.Wrap(res.Err())
}

// Update merges each patch over the stored entity and writes the result.
// Objects merge key by key; arrays in the patch replace the stored ones.
// restore clears the trashed flag. Changes to an entity's title, slug,
// published flag or thumbnail are then propagated to the entities
// referencing it.
func (c *Client) Update(ctx context.Context, patches []models.Document, restore bool) ([]models.Document, error) {
	docs, err := c.update(ctx, patches, restore)
	return docs, constants.Wrap(err)
}

type pendingUpdate struct {
	id    string
	patch models.Document
	old   models.Document
	doc   models.Document
}

func (c *Client) update(ctx context.Context, patches []models.Document, restore bool) ([]models.Document, error) {
	actor, now := ActorFrom(ctx), c.now()

	pending := make([]*pendingUpdate, len(patches))
	docs := make([]models.Document, len(patches))
	for i, patch := range patches {
		id, _ := patch["_id"].(string)
		if id == "" {
			return nil, constants.Validationf("entity %d: _id is required", i)
		}
		u := &pendingUpdate{id: id, patch: patch}
		if err := c.prepare(ctx, u, restore, actor, now); err != nil {
			return nil, err
		}
		pending[i] = u
		docs[i] = u.doc
	}

	res, err := c.writer.ChunkedWrite(ctx, docs)
	if err != nil {
		return nil, err
	}
	if len(res.Conflicts()) > 0 {
		res.Failed = c.retryConflicts(ctx, pending, res.Failed, restore, actor, now)
	}

	bad := failedIndexes(res.Failed)
	for i, u := range pending {
		res.Docs[i] = u.doc
		if bad[i] {
			continue
		}
		if _, err := c.propagator.Propagate(ctx, u.old, u.doc); err != nil {
			c.logger.Error("propagating entity changes", "id", u.id, "error", err)
		}
	}
	return written(res.Docs, res.Failed), res.Err()
}

// prepare reads the stored entity and builds the document to write.
func (c *Client) prepare(ctx context.Context, u *pendingUpdate, restore bool, actor string, now time.Time) error {
	old, err := c.store.Get(ctx, u.id)
	if err != nil {
		return fmt.Errorf("read %s: %w", u.id, err)
	}
	merged := value.Merge(old, u.patch)
	merged["_id"] = u.id
	merged["_rev"] = old["_rev"]
	if restore {
		delete(merged, "trashed")
	}
	doc, err := c.normalizer.Normalize(ctx, merged, actor, now)
	if err != nil {
		return fmt.Errorf("entity %s: %w", u.id, err)
	}
	u.old, u.doc = old, doc
	return nil
}

// retryConflicts re-reads, re-merges and writes once more every update that
// hit a stale revision. It returns the failures that remain.
func (c *Client) retryConflicts(ctx context.Context, pending []*pendingUpdate, failures []bulk.Failure, restore bool, actor string, now time.Time) []bulk.Failure {
	var remaining []bulk.Failure
	for _, f := range failures {
		if !errors.Is(f.Err, constants.ErrConflict) {
			remaining = append(remaining, f)
			continue
		}
		u := pending[f.Index]
		c.logger.Warn("revision conflict, retrying update", "id", u.id)
		if err := c.prepare(ctx, u, restore, actor, now); err != nil {
			remaining = append(remaining, bulk.Failure{Index: f.Index, ID: u.id, Err: err})
			continue
		}
		res, err := c.store.Insert(ctx, u.doc)
		c.metrics.Conflict("update", err == nil)
		if err != nil {
			remaining = append(remaining, bulk.Failure{Index: f.Index, ID: u.id, Err: err})
			continue
		}
		u.doc["_rev"] = res.Rev
	}
	return remaining
}

// DeleteResult lists the deleted entities and, for permanent deletes, the
// media files they referenced.
type DeleteResult struct {
	Entities []models.Document `json:"entities"`
	Files    []string          `json:"files"`
}

// Delete moves the entities with the given ids to the trash or, when forever
// is set, deletes them permanently. The single id "trashed" selects every
// trashed entity. A permanent delete first removes the references other
// entities hold to the deleted ones, then writes tombstones.
func (c *Client) Delete(ctx context.Context, ids []string, forever bool) (*DeleteResult, error) {
	res, err := c.delete(ctx, ids, forever)
	return res, constants.Wrap(err)
}

func (c *Client) delete(ctx context.Context, ids []string, forever bool) (*DeleteResult, error) {
	if len(ids) == 1 && ids[0] == constants.TrashedSelector {
		trashed, err := c.trashedIDs(ctx)
		if err != nil {
			return nil, err
		}
		ids = trashed
	}
	if len(ids) == 0 {
		return &DeleteResult{}, nil
	}

	if !forever {
		patches := make([]models.Document, len(ids))
		for i, id := range ids {
			patches[i] = models.Document{"_id": id, "trashed": true}
		}
		docs, err := c.update(ctx, patches, false)
		return &DeleteResult{Entities: docs}, err
	}

	rows, err := c.store.Fetch(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch entities to delete: %w", err)
	}
	targets := map[string]bool{}
	res := &DeleteResult{}
	for _, row := range rows {
		if row.Doc == nil || targets[row.ID] {
			continue
		}
		targets[row.ID] = true
		res.Entities = append(res.Entities, row.Doc)
		res.Files = append(res.Files, c.mediaFiles(row.Doc)...)
	}
	if len(res.Entities) == 0 {
		return nil, fmt.Errorf("entities %v: %w", ids, constants.ErrNotFound)
	}

	if err := c.unlink(ctx, targets); err != nil {
		return nil, err
	}

	tombstones := make([]models.Document, len(res.Entities))
	for i, doc := range res.Entities {
		tombstones[i] = models.Document{"_id": models.DocID(doc), "_rev": doc["_rev"], "_deleted": true}
	}
	deleted, err := c.writer.ChunkedWrite(ctx, tombstones)
	if err != nil {
		return nil, err
	}
	if err := deleted.Err(); err != nil {
		return res, err
	}

	c.propagator.RemoveFiles(ctx, res.Files)
	c.logger.Info("deleted entities", "count", len(res.Entities), "files", len(res.Files))
	return res, nil
}

func (c *Client) trashedIDs(ctx context.Context) ([]string, error) {
	view, err := c.store.View(ctx, constants.DesignEntity, constants.ViewTrashed, docstore.ViewQuery{})
	if err != nil {
		return nil, fmt.Errorf("trashed entities: %w", err)
	}
	ids := make([]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// unlink removes every reference to targets held by other entities. Writes
// that conflict are retried once against a fresh copy.
func (c *Client) unlink(ctx context.Context, targets map[string]bool) error {
	keys := make([]string, 0, len(targets))
	for id := range targets {
		keys = append(keys, id)
	}
	view, err := c.store.View(ctx, constants.DesignEntity, constants.ViewChildren, docstore.ViewQuery{
		Keys:        keys,
		IncludeDocs: true,
	})
	if err != nil {
		return fmt.Errorf("referencing entities: %w", err)
	}

	seen := map[string]bool{}
	var changed []models.Document
	for _, row := range view.Rows {
		if row.Doc == nil || seen[row.ID] || targets[row.ID] {
			continue
		}
		seen[row.ID] = true
		if propagate.Unlink(row.Doc, targets) {
			changed = append(changed, row.Doc)
		}
	}
	if len(changed) == 0 {
		return nil
	}

	res, err := c.writer.ChunkedWrite(ctx, changed)
	if err != nil {
		return fmt.Errorf("unlink references: %w", err)
	}
	var errs []error
	for _, f := range res.Failed {
		if !errors.Is(f.Err, constants.ErrConflict) {
			errs = append(errs, fmt.Errorf("unlink from %s: %w", f.ID, f.Err))
			continue
		}
		fresh, err := c.store.Get(ctx, f.ID)
		if errors.Is(err, constants.ErrNotFound) {
			continue
		}
		if err == nil {
			propagate.Unlink(fresh, targets)
			_, err = c.store.Insert(ctx, fresh)
		}
		c.metrics.Conflict("unlink", err == nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("unlink from %s: %w", f.ID, err))
		}
	}
	return errors.Join(errs...)
}

// mediaFiles returns the file names held by the media fields of doc.
func (c *Client) mediaFiles(doc models.Document) []string {
	var names []string
	fields, _ := doc["fields"].(map[string]any)
	slugs := make([]string, 0, len(fields))
	for slug := range fields {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	for _, slug := range slugs {
		field, _ := fields[slug].(map[string]any)
		if c.types.Lookup(value.String(field["type"])).IsMedia() {
			names = append(names, propagate.FileNames(field["value"])...)
		}
	}
	return names
}

func failedIndexes(failed []bulk.Failure) map[int]bool {
	bad := make(map[int]bool, len(failed))
	for _, f := range failed {
		bad[f.Index] = true
	}
	return bad
}

// written drops the documents that failed to write.
func written(docs []models.Document, failed []bulk.Failure) []models.Document {
	if len(failed) == 0 {
		return docs
	}
	bad := failedIndexes(failed)
	out := make([]models.Document, 0, len(docs)-len(failed))
	for i, doc := range docs {
		if !bad[i] {
			out = append(out, doc)
		}
	}
	return out
}
