// Package search satisfies result limits larger than the store's page cap by
// following search bookmarks.
package search

import (
	"context"
	"fmt"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/metrics"
)

// Searcher is the paginated search orchestrator.
type Searcher struct {
	store    docstore.Store
	design   string
	index    string
	pageSize int
	logger   logger.Logger
	metrics  *metrics.Metrics
}

type Option func(*Searcher)

// WithPageSize sets the page size requested per call. It is capped at
// constants.MaxSearchPage.
func WithPageSize(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.pageSize = min(n, constants.MaxSearchPage)
		}
	}
}

// WithIndex selects the search index. The default is entity/search.
func WithIndex(design, index string) Option {
	return func(s *Searcher) {
		s.design, s.index = design, index
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Searcher) {
		s.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) {
		s.metrics = m
	}
}

// New returns a Searcher over store.
func New(store docstore.Store, opts ...Option) *Searcher {
	s := &Searcher{
		store:    store,
		design:   constants.DesignEntity,
		index:    constants.IndexSearch,
		pageSize: constants.MaxSearchPage,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result is the accumulated outcome of a search.
type Result struct {
	Rows      []docstore.SearchRow   `json:"rows"`
	Groups    []docstore.SearchGroup `json:"groups,omitempty"`
	TotalRows int                    `json:"total_rows"`
	Bookmark  string                 `json:"bookmark,omitempty"`
}

// Search runs q until limit rows are collected or the store runs out. The
// number of rows to collect is fixed by the total reported on the first page,
// so the loop ends even when later pages report a different total. Rows are
// deduplicated by id; a page adding no new row ends the loop, and at most one
// page beyond the pages the target needs is requested. A limit of zero or
// less returns a single page. Grouped queries return the first page of groups.
func (s *Searcher) Search(ctx context.Context, q docstore.SearchQuery, limit int) (*Result, error) {
	if limit <= 0 {
		limit = s.pageSize
	}
	q.Limit = min(limit, s.pageSize)

	first, err := s.page(ctx, q)
	if err != nil {
		return nil, err
	}
	res := &Result{TotalRows: first.TotalRows, Bookmark: first.Bookmark, Groups: first.Groups}
	if q.GroupField != "" {
		return res, nil
	}

	target := min(limit, first.TotalRows)
	seen := map[string]bool{}
	add := func(rows []docstore.SearchRow) int {
		added := 0
		for _, row := range rows {
			if len(res.Rows) >= target {
				break
			}
			if seen[row.ID] {
				continue
			}
			seen[row.ID] = true
			res.Rows = append(res.Rows, row)
			added++
		}
		return added
	}
	add(first.Rows)

	maxPages := (target+s.pageSize-1)/s.pageSize + 1
	q.Limit = s.pageSize
	page := first
	for pages := 1; len(res.Rows) < target && len(page.Rows) > 0 && page.Bookmark != ""; pages++ {
		if pages >= maxPages {
			s.logger.Warn("search page budget exhausted", "query", q.Query, "rows", len(res.Rows), "pages", pages)
			break
		}
		q.Bookmark = page.Bookmark
		next, err := s.page(ctx, q)
		if err != nil {
			return nil, err
		}
		if next.Bookmark == page.Bookmark {
			s.logger.Warn("search bookmark did not advance", "query", q.Query, "rows", len(res.Rows))
			break
		}
		res.Bookmark = next.Bookmark
		if add(next.Rows) == 0 {
			s.logger.Warn("search page added no new rows", "query", q.Query, "rows", len(res.Rows))
			break
		}
		page = next
	}

	s.logger.Debug("search finished", "query", q.Query, "rows", len(res.Rows), "total", res.TotalRows)
	return res, nil
}

func (s *Searcher) page(ctx context.Context, q docstore.SearchQuery) (*docstore.SearchResult, error) {
	s.metrics.SearchPage()
	res, err := s.store.Search(ctx, s.design, s.index, q)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q.Query, err)
	}
	return res, nil
}
