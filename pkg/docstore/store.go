// Package docstore defines the document store contract the engine runs
// against: get, multi-get, optimistic insert, bulk insert, secondary views,
// paginated search and declarative find. Adapters live in sub-packages.
package docstore

import (
	"context"
	"strconv"
	"strings"

	"github.com/surrealdb/entitygraph/internal/rand"

	"github.com/surrealdb/entitygraph/pkg/models"
)

// Store is a document store adapter. Every write carries the revision token
// of the document it replaces; a stale token fails with constants.ErrConflict.
type Store interface {
	// Get returns the current document, or the revision selected by WithRev.
	Get(ctx context.Context, id string, opts ...GetOption) (models.Document, error)
	// Fetch returns one row per key, in key order. Missing and deleted
	// documents yield a row with Error set.
	Fetch(ctx context.Context, keys []string) ([]Row, error)
	// Insert writes one document.
	Insert(ctx context.Context, doc models.Document) (DocResult, error)
	// Bulk writes docs and returns one result per document, in order.
	Bulk(ctx context.Context, docs []models.Document) ([]DocResult, error)
	// View queries a secondary index of a design document.
	View(ctx context.Context, design, view string, q ViewQuery) (*ViewResult, error)
	// Search runs a full-text query against a search index. A page holds at
	// most constants.MaxSearchPage rows.
	Search(ctx context.Context, design, index string, q SearchQuery) (*SearchResult, error)
	// Find runs a declarative filter query. Sorting on a field without an
	// index fails with constants.ErrIndexMissing.
	Find(ctx context.Context, q FindQuery) (*FindResult, error)
}

// Indexer is implemented by stores whose Find needs explicit indexes.
type Indexer interface {
	EnsureIndexes(ctx context.Context, fields ...string) error
}

// Closer is implemented by stores holding a connection.
type Closer interface {
	Close(ctx context.Context) error
}

type getOptions struct {
	rev      string
	revsInfo bool
}

// GetOption configures Get.
type GetOption func(*getOptions)

// WithRev selects a past revision.
func WithRev(rev string) GetOption {
	return func(o *getOptions) {
		o.rev = rev
	}
}

// WithRevsInfo adds a `_revs_info` list of {rev, status} to the document,
// newest first.
func WithRevsInfo() GetOption {
	return func(o *getOptions) {
		o.revsInfo = true
	}
}

// GetOptions resolves opts. Adapters call it from Get.
func GetOptions(opts ...GetOption) (rev string, revsInfo bool) {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.rev, o.revsInfo
}

// RevInfo is one entry of `_revs_info`.
type RevInfo struct {
	Rev    string `json:"rev"`
	Status string `json:"status"`
}

// Revision statuses.
const (
	RevAvailable = "available"
	RevDeleted   = "deleted"
	RevMissing   = "missing"
)

// NextRev returns the revision token following prev, "<generation>-<random>".
func NextRev(prev string) string {
	return strconv.Itoa(RevGeneration(prev)+1) + "-" + rand.String(32)
}

// RevGeneration returns the generation number of a revision token, zero for
// the empty token.
func RevGeneration(rev string) int {
	head, _, _ := strings.Cut(rev, "-")
	n, _ := strconv.Atoi(head)
	return n
}

// Row is a multi-get result row.
type Row struct {
	ID    string
	Doc   models.Document
	Error string
}

// DocResult is the outcome of writing one document.
type DocResult struct {
	ID    string
	Rev   string
	Error string
	// Err is constants.ErrConflict for stale revisions.
	Err error
}

// OK reports whether the write succeeded.
func (r DocResult) OK() bool {
	return r.Err == nil && r.Error == ""
}

// ViewQuery selects rows from a view.
type ViewQuery struct {
	Keys        []string
	IncludeDocs bool
	// Group collapses rows by key; each row value is the row count.
	Group bool
}

// ViewRow is one emitted view row.
type ViewRow struct {
	ID    string
	Key   string
	Value any
	Doc   models.Document
}

// ViewResult holds the rows of a view query.
type ViewResult struct {
	Rows []ViewRow
}

// SearchQuery is a paginated full-text query.
type SearchQuery struct {
	Query       string
	Sort        []string
	Limit       int
	Bookmark    string
	IncludeDocs bool
	GroupField  string
}

// SearchRow is one search hit.
type SearchRow struct {
	ID     string          `json:"id"`
	Fields map[string]any  `json:"fields,omitempty"`
	Doc    models.Document `json:"doc,omitempty"`
}

// SearchGroup collects the hits sharing a group field value.
type SearchGroup struct {
	By        string      `json:"by"`
	TotalRows int         `json:"total_rows"`
	Rows      []SearchRow `json:"rows"`
}

// SearchResult is one page of search hits.
type SearchResult struct {
	TotalRows int
	Bookmark  string
	Rows      []SearchRow
	Groups    []SearchGroup
}

// SortField orders find results.
type SortField struct {
	Field string
	Desc  bool
}

// FindQuery is a declarative filter using mango selector syntax.
type FindQuery struct {
	Selector map[string]any
	Fields   []string
	Sort     []SortField
	Limit    int
	Skip     int
}

// FindResult holds matched documents.
type FindResult struct {
	Docs []models.Document
}
