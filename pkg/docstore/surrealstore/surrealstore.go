// Package surrealstore is a document store adapter backed by SurrealDB.
//
// Every document is one record of the document table, keyed by the document
// id, holding the JSON body, the revision token and the keys it emits in each
// view. Each write also appends a record to the revision table so past
// revisions stay readable. Revisions are checked with a compare-and-swap
// update, so concurrent writers of the same document conflict instead of
// overwriting each other.
package surrealstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/models"
)

const (
	DefaultDocTable = "entitygraph_doc"
	DefaultRevTable = "entitygraph_rev"

	viewFieldPrefix = "view_"
)

// Config holds the connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// Store is the SurrealDB adapter.
type Store struct {
	db       *surrealdb.DB
	docTable string
	revTable string
	logger   logger.Logger
	owned    bool
}

var (
	_ docstore.Store  = (*Store)(nil)
	_ docstore.Closer = (*Store)(nil)
)

type Option func(*Store)

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithTables overrides the document and revision table names.
func WithTables(docs, revs string) Option {
	return func(s *Store) {
		if docs != "" {
			s.docTable = docs
		}
		if revs != "" {
			s.revTable = revs
		}
	}
}

// Open connects to SurrealDB, signs in and selects the namespace and
// database. The returned store owns the connection.
func Open(ctx context.Context, conf Config, opts ...Option) (*Store, error) {
	if conf.URL == "" {
		return nil, fmt.Errorf("%w: surrealdb url is required", constants.ErrValidation)
	}
	db, err := surrealdb.FromEndpointURLString(ctx, conf.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w: %w", conf.URL, constants.ErrUnavailable, err)
	}
	if err := db.Use(ctx, conf.Namespace, conf.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("use %s/%s: %w", conf.Namespace, conf.Database, err)
	}
	if conf.Username != "" {
		token, err := db.SignIn(ctx, &surrealdb.Auth{
			Username: conf.Username,
			Password: conf.Password,
		})
		if err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("sign in: %w", err)
		}
		if err := db.Authenticate(ctx, token); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("authenticate: %w", err)
		}
	}

	s, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close(ctx)
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an established connection and defines the tables it needs.
func New(ctx context.Context, db *surrealdb.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:       db,
		docTable: DefaultDocTable,
		revTable: DefaultRevTable,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.define(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) define(ctx context.Context) error {
	sql := fmt.Sprintf(`
		DEFINE TABLE IF NOT EXISTS %[1]s SCHEMALESS;
		DEFINE INDEX IF NOT EXISTS %[1]s_key ON %[1]s FIELDS key UNIQUE;
		DEFINE TABLE IF NOT EXISTS %[2]s SCHEMALESS;
		DEFINE INDEX IF NOT EXISTS %[2]s_doc_rev ON %[2]s FIELDS doc, rev UNIQUE;
	`, s.docTable, s.revTable)
	if _, err := surrealdb.Query[any](ctx, s.db, sql, nil); err != nil {
		return fmt.Errorf("define tables: %w", err)
	}
	return nil
}

// Close implements docstore.Closer. Connections passed to New are left open.
func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.db.Close(ctx)
}

// record is the stored form of a document or of one of its revisions.
type record struct {
	Key     string `json:"key"`
	Doc     string `json:"doc,omitempty"`
	Rev     string `json:"rev"`
	Seq     int    `json:"seq"`
	Deleted bool   `json:"deleted"`
	Body    string `json:"body"`
}

// document decodes the JSON body. Numbers come back as float64, like every
// other document in the engine.
func (r record) document() (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal([]byte(r.Body), &doc); err != nil {
		return nil, fmt.Errorf("decode %s@%s: %w", r.Key, r.Rev, err)
	}
	return doc, nil
}

func query(ctx context.Context, db *surrealdb.DB, sql string, vars map[string]any) ([]record, error) {
	res, err := surrealdb.Query[[]record](ctx, db, sql, vars)
	if err != nil {
		return nil, err
	}
	if res == nil || len(*res) == 0 {
		return nil, nil
	}
	last := (*res)[len(*res)-1]
	if last.Status != "OK" {
		return nil, fmt.Errorf("query status %s", last.Status)
	}
	return last.Result, nil
}

func (s *Store) current(ctx context.Context, id string) (*record, error) {
	rows, err := query(ctx, s.db,
		`SELECT key, rev, seq, deleted, body FROM type::thing($tb, $id)`,
		map[string]any{"tb": s.docTable, "id": id})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, id string, opts ...docstore.GetOption) (models.Document, error) {
	wantRev, revsInfo := docstore.GetOptions(opts...)

	cur, err := s.current(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("document %s: %w", id, constants.ErrNotFound)
	}

	found := cur
	if wantRev != "" && wantRev != cur.Rev {
		rows, err := query(ctx, s.db,
			`SELECT key, doc, rev, seq, deleted, body FROM type::table($tb) WHERE doc = $id AND rev = $rev`,
			map[string]any{"tb": s.revTable, "id": id, "rev": wantRev})
		if err != nil {
			return nil, fmt.Errorf("get %s@%s: %w", id, wantRev, err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("document %s revision %s: %w", id, wantRev, constants.ErrNotFound)
		}
		found = &rows[0]
	}
	if found.Deleted {
		return nil, fmt.Errorf("document %s deleted: %w", id, constants.ErrNotFound)
	}

	doc, err := found.document()
	if err != nil {
		return nil, err
	}
	if revsInfo {
		info, err := s.revsInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		doc["_revs_info"] = info
	}
	return doc, nil
}

func (s *Store) revsInfo(ctx context.Context, id string) ([]any, error) {
	rows, err := query(ctx, s.db,
		`SELECT rev, seq, deleted FROM type::table($tb) WHERE doc = $id ORDER BY seq DESC`,
		map[string]any{"tb": s.revTable, "id": id})
	if err != nil {
		return nil, fmt.Errorf("revisions of %s: %w", id, err)
	}
	info := make([]any, 0, len(rows))
	for _, r := range rows {
		status := docstore.RevAvailable
		if r.Deleted {
			status = docstore.RevDeleted
		}
		info = append(info, map[string]any{"rev": r.Rev, "status": status})
	}
	return info, nil
}

// Fetch implements docstore.Store.
func (s *Store) Fetch(ctx context.Context, keys []string) ([]docstore.Row, error) {
	rows := make([]docstore.Row, len(keys))
	if len(keys) == 0 {
		return rows, nil
	}
	found, err := query(ctx, s.db,
		`SELECT key, rev, seq, deleted, body FROM type::table($tb) WHERE key IN $keys`,
		map[string]any{"tb": s.docTable, "keys": keys})
	if err != nil {
		return nil, fmt.Errorf("fetch %d documents: %w", len(keys), err)
	}
	byKey := make(map[string]record, len(found))
	for _, r := range found {
		byKey[r.Key] = r
	}

	for i, key := range keys {
		rows[i].ID = key
		r, ok := byKey[key]
		switch {
		case !ok:
			rows[i].Error = "not_found"
		case r.Deleted:
			rows[i].Error = "deleted"
		default:
			doc, err := r.document()
			if err != nil {
				return nil, err
			}
			rows[i].Doc = doc
		}
	}
	return rows, nil
}

// Insert implements docstore.Store.
func (s *Store) Insert(ctx context.Context, doc models.Document) (docstore.DocResult, error) {
	res, err := s.write(ctx, doc)
	if err != nil {
		return res, err
	}
	if res.Err != nil {
		return res, fmt.Errorf("insert %s: %w", res.ID, res.Err)
	}
	return res, nil
}

// Bulk implements docstore.Store. Documents are written one by one; a
// transport error aborts the remaining writes.
func (s *Store) Bulk(ctx context.Context, docs []models.Document) ([]docstore.DocResult, error) {
	results := make([]docstore.DocResult, len(docs))
	for i, doc := range docs {
		res, err := s.write(ctx, doc)
		if err != nil {
			return nil, err
		}
		results[i] = res
	}
	return results, nil
}

func conflict(id string) docstore.DocResult {
	return docstore.DocResult{ID: id, Error: "conflict", Err: constants.ErrConflict}
}

// write stores doc as the next revision. Conflicts are reported in the result;
// the error is reserved for transport failures.
func (s *Store) write(ctx context.Context, doc models.Document) (docstore.DocResult, error) {
	id := models.DocID(doc)
	if id == "" {
		id = models.NewID()
	}
	rev := models.DocRev(doc)

	cur, err := s.current(ctx, id)
	if err != nil {
		return docstore.DocResult{ID: id}, err
	}
	prev := ""
	if cur != nil {
		prev = cur.Rev
		if !(cur.Deleted && rev == "") && cur.Rev != rev {
			return conflict(id), nil
		}
	} else if rev != "" {
		return conflict(id), nil
	}

	next := docstore.NextRev(prev)
	deleted, _ := doc["_deleted"].(bool)
	var stored models.Document
	if deleted {
		stored = models.Document{"_id": id, "_rev": next, "_deleted": true}
	} else {
		stored = make(models.Document, len(doc)+2)
		for k, v := range doc {
			if k != "_revs_info" {
				stored[k] = v
			}
		}
		stored["_id"] = id
		stored["_rev"] = next
	}
	body, err := json.Marshal(stored)
	if err != nil {
		return docstore.DocResult{ID: id}, fmt.Errorf("encode %s: %w", id, err)
	}

	content := map[string]any{
		"key":     id,
		"rev":     next,
		"seq":     docstore.RevGeneration(next),
		"deleted": deleted,
		"body":    string(body),
	}
	for view, keys := range docstore.ViewKeys(constants.DesignEntity, stored) {
		if keys == nil {
			keys = []string{}
		}
		content[viewFieldPrefix+view] = keys
	}

	vars := map[string]any{"tb": s.docTable, "id": id, "content": content, "prev": prev}
	var written []record
	if cur == nil {
		written, err = query(ctx, s.db, `CREATE type::thing($tb, $id) CONTENT $content`, vars)
		if err != nil && strings.Contains(err.Error(), "already exists") {
			return conflict(id), nil
		}
	} else {
		written, err = query(ctx, s.db,
			`UPDATE type::thing($tb, $id) CONTENT $content WHERE rev = $prev`, vars)
	}
	if err != nil {
		return docstore.DocResult{ID: id}, fmt.Errorf("write %s: %w", id, err)
	}
	if len(written) == 0 {
		return conflict(id), nil
	}

	revContent := map[string]any{
		"doc":     id,
		"rev":     next,
		"seq":     content["seq"],
		"deleted": deleted,
		"body":    string(body),
	}
	if _, err := query(ctx, s.db, `CREATE type::table($tb) CONTENT $content`,
		map[string]any{"tb": s.revTable, "content": revContent}); err != nil {
		s.logger.Warn("recording revision", "id", id, "rev", next, "error", err)
	}
	return docstore.DocResult{ID: id, Rev: next}, nil
}

// live loads every non-deleted document ordered by id, optionally only those
// emitting one of keys in view.
func (s *Store) live(ctx context.Context, view string, keys []string) ([]models.Document, error) {
	sql := `SELECT key, rev, seq, deleted, body FROM type::table($tb) WHERE deleted = false`
	vars := map[string]any{"tb": s.docTable}
	if view != "" && keys != nil {
		sql += fmt.Sprintf(` AND %s%s CONTAINSANY $keys`, viewFieldPrefix, view)
		vars["keys"] = keys
	}
	sql += ` ORDER BY key`

	rows, err := query(ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.docTable, err)
	}
	docs := make([]models.Document, 0, len(rows))
	for _, r := range rows {
		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// View implements docstore.Store. Key lookups are served by the stored view
// keys.
func (s *Store) View(ctx context.Context, design, view string, q docstore.ViewQuery) (*docstore.ViewResult, error) {
	if _, ok := docstore.MapView(design, view); !ok {
		return nil, fmt.Errorf("view %s/%s: %w", design, view, constants.ErrNotFound)
	}
	docs, err := s.live(ctx, view, q.Keys)
	if err != nil {
		return nil, err
	}
	return docstore.ScanView(docs, design, view, q)
}

// Search implements docstore.Store.
func (s *Store) Search(ctx context.Context, design, index string, q docstore.SearchQuery) (*docstore.SearchResult, error) {
	docs, err := s.live(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	return docstore.ScanSearch(docs, design, index, q)
}

// Find implements docstore.Store. SurrealDB sorts without explicit indexes,
// so Find never reports a missing index.
func (s *Store) Find(ctx context.Context, q docstore.FindQuery) (*docstore.FindResult, error) {
	docs, err := s.live(ctx, "", nil)
	if err != nil {
		return nil, err
	}
	return docstore.ScanFind(docs, q)
}

// Reset drops and redefines both tables.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.Drop(ctx); err != nil {
		return err
	}
	return s.define(ctx)
}

// Drop removes both tables.
func (s *Store) Drop(ctx context.Context) error {
	var errs []error
	for _, tb := range []string{s.docTable, s.revTable} {
		if _, err := surrealdb.Query[any](ctx, s.db, "REMOVE TABLE IF EXISTS "+tb, nil); err != nil {
			errs = append(errs, fmt.Errorf("remove table %s: %w", tb, err))
		}
	}
	return errors.Join(errs...)
}
