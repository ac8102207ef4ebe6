// Package memory is an in-process document store. It keeps every revision of
// every document, computes views and search results by scanning, and requires
// explicit indexes for sorted find queries, so it behaves like a real store in
// tests and single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/models"
)

type revision struct {
	rev     string
	doc     models.Document
	deleted bool
}

type record struct {
	revs []revision
}

func (r *record) current() revision {
	return r.revs[len(r.revs)-1]
}

// Store is the in-memory adapter. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record
	indexes map[string]bool
	logger  logger.Logger
}

var (
	_ docstore.Store   = (*Store)(nil)
	_ docstore.Indexer = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithIndexes pre-creates find indexes on the given fields.
func WithIndexes(fields ...string) Option {
	return func(s *Store) {
		for _, f := range fields {
			s.indexes[f] = true
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records: map[string]*record{},
		indexes: map[string]bool{},
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements docstore.Store.
func (s *Store) Get(_ context.Context, id string, opts ...docstore.GetOption) (models.Document, error) {
	wantRev, revsInfo := docstore.GetOptions(opts...)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, constants.ErrNotFound)
	}

	found := rec.current()
	if wantRev != "" {
		ok = false
		for _, r := range rec.revs {
			if r.rev == wantRev {
				found, ok = r, true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("document %s revision %s: %w", id, wantRev, constants.ErrNotFound)
		}
	}
	if found.deleted {
		return nil, fmt.Errorf("document %s deleted: %w", id, constants.ErrNotFound)
	}

	doc := value.CloneMap(found.doc)
	if revsInfo {
		info := make([]any, 0, len(rec.revs))
		for i := len(rec.revs) - 1; i >= 0; i-- {
			status := docstore.RevAvailable
			if rec.revs[i].deleted {
				status = docstore.RevDeleted
			}
			info = append(info, map[string]any{"rev": rec.revs[i].rev, "status": status})
		}
		doc["_revs_info"] = info
	}
	return doc, nil
}

// Fetch implements docstore.Store.
func (s *Store) Fetch(_ context.Context, keys []string) ([]docstore.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]docstore.Row, len(keys))
	for i, key := range keys {
		rows[i].ID = key
		rec, ok := s.records[key]
		switch {
		case !ok:
			rows[i].Error = "not_found"
		case rec.current().deleted:
			rows[i].Error = "deleted"
		default:
			rows[i].Doc = value.CloneMap(rec.current().doc)
		}
	}
	return rows, nil
}

// Insert implements docstore.Store.
func (s *Store) Insert(_ context.Context, doc models.Document) (docstore.DocResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.write(doc)
	if res.Err != nil {
		return res, fmt.Errorf("insert %s: %w", res.ID, res.Err)
	}
	return res, nil
}

// Bulk implements docstore.Store.
func (s *Store) Bulk(_ context.Context, docs []models.Document) ([]docstore.DocResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]docstore.DocResult, len(docs))
	for i, doc := range docs {
		results[i] = s.write(doc)
	}
	return results, nil
}

// write stores doc as the next revision. Callers hold the write lock.
func (s *Store) write(doc models.Document) docstore.DocResult {
	id := models.DocID(doc)
	if id == "" {
		id = models.NewID()
	}
	rev := models.DocRev(doc)

	rec, exists := s.records[id]
	prev := ""
	if exists {
		cur := rec.current()
		prev = cur.rev
		if !(cur.deleted && rev == "") && cur.rev != rev {
			return docstore.DocResult{ID: id, Error: "conflict", Err: constants.ErrConflict}
		}
	} else if rev != "" {
		return docstore.DocResult{ID: id, Error: "conflict", Err: constants.ErrConflict}
	}

	next := revision{rev: docstore.NextRev(prev), deleted: value.Bool(doc["_deleted"])}
	if next.deleted {
		next.doc = models.Document{"_id": id, "_rev": next.rev, "_deleted": true}
	} else {
		next.doc = value.CloneMap(doc)
		delete(next.doc, "_revs_info")
		next.doc["_id"] = id
		next.doc["_rev"] = next.rev
	}

	if !exists {
		rec = &record{}
		s.records[id] = rec
	}
	rec.revs = append(rec.revs, next)
	return docstore.DocResult{ID: id, Rev: next.rev}
}

// live returns the current non-deleted documents ordered by id. Callers hold
// the read lock.
func (s *Store) live() []models.Document {
	ids := make([]string, 0, len(s.records))
	for id, rec := range s.records {
		if !rec.current().deleted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	docs := make([]models.Document, len(ids))
	for i, id := range ids {
		docs[i] = s.records[id].current().doc
	}
	return docs
}

// View implements docstore.Store.
func (s *Store) View(_ context.Context, design, view string, q docstore.ViewQuery) (*docstore.ViewResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return docstore.ScanView(s.live(), design, view, q)
}

// Search implements docstore.Store.
func (s *Store) Search(_ context.Context, design, index string, q docstore.SearchQuery) (*docstore.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return docstore.ScanSearch(s.live(), design, index, q)
}

// EnsureIndexes implements docstore.Indexer.
func (s *Store) EnsureIndexes(_ context.Context, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		if !s.indexes[f] {
			s.logger.Info("creating index", "field", f)
			s.indexes[f] = true
		}
	}
	return nil
}

// Find implements docstore.Store.
func (s *Store) Find(_ context.Context, q docstore.FindQuery) (*docstore.FindResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range q.Sort {
		if !s.indexes[f.Field] {
			return nil, fmt.Errorf("sort on %s: %w", f.Field, constants.ErrIndexMissing)
		}
	}

	return docstore.ScanFind(s.live(), q)
}

// Len returns the number of live documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live())
}
