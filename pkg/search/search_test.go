package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/docstore/memory"
	"github.com/surrealdb/entitygraph/pkg/models"
)

type countingStore struct {
	docstore.Store
	calls  int
	limits []int
}

func (s *countingStore) Search(ctx context.Context, design, index string, q docstore.SearchQuery) (*docstore.SearchResult, error) {
	s.calls++
	s.limits = append(s.limits, q.Limit)
	return s.Store.Search(ctx, design, index, q)
}

func seeded(t *testing.T, n int) *memory.Store {
	t.Helper()
	s := memory.New()
	docs := make([]models.Document, n)
	for i := range docs {
		docs[i] = models.Document{"_id": fmt.Sprintf("e%04d", i), "type": "entity", "schema": "article", "title": "Item"}
	}
	_, err := s.Bulk(context.Background(), docs)
	require.NoError(t, err)
	return s
}

func assertUnique(t *testing.T, rows []docstore.SearchRow) {
	t.Helper()
	seen := map[string]bool{}
	for _, row := range rows {
		assert.False(t, seen[row.ID], "duplicate %s", row.ID)
		seen[row.ID] = true
	}
}

func TestSearchAccumulatesPages(t *testing.T) {
	store := &countingStore{Store: seeded(t, 700)}
	res, err := New(store).Search(context.Background(), docstore.SearchQuery{Query: "*:*"}, 500)
	require.NoError(t, err)

	assert.Len(t, res.Rows, 500)
	assert.Equal(t, 700, res.TotalRows)
	assert.GreaterOrEqual(t, store.calls, 3)
	assert.Equal(t, []int{200, 200, 200}, store.limits)
	assertUnique(t, res.Rows)
}

func TestSearchStopsAtTotal(t *testing.T) {
	store := &countingStore{Store: seeded(t, 230)}
	res, err := New(store).Search(context.Background(), docstore.SearchQuery{Query: "*:*"}, 500)
	require.NoError(t, err)

	assert.Len(t, res.Rows, 230)
	assert.Equal(t, 2, store.calls)
	assertUnique(t, res.Rows)
}

// growingStore reports a larger total and repeats rows on every page.
type growingStore struct {
	calls int
}

func (s *growingStore) Search(_ context.Context, _, _ string, q docstore.SearchQuery) (*docstore.SearchResult, error) {
	s.calls++
	rows := make([]docstore.SearchRow, q.Limit)
	for i := range rows {
		rows[i] = docstore.SearchRow{ID: fmt.Sprintf("r%d", (s.calls-1)*q.Limit/2+i)}
	}
	return &docstore.SearchResult{TotalRows: 300 * s.calls, Rows: rows, Bookmark: fmt.Sprint(s.calls)}, nil
}

func TestSearchTerminatesOnInconsistentTotals(t *testing.T) {
	store := &growingStore{}
	res, err := New(searchOnly{store}).Search(context.Background(), docstore.SearchQuery{Query: "x"}, 1000)
	require.NoError(t, err)

	assert.Len(t, res.Rows, 300)
	assertUnique(t, res.Rows)
	assert.Less(t, store.calls, 10)
}

// repeatingStore returns the same rows on every page while the bookmark
// keeps advancing.
type repeatingStore struct {
	calls int
}

func (s *repeatingStore) Search(_ context.Context, _, _ string, q docstore.SearchQuery) (*docstore.SearchResult, error) {
	s.calls++
	if s.calls > 1000 {
		return nil, fmt.Errorf("still paging after %d calls", s.calls)
	}
	rows := make([]docstore.SearchRow, 100)
	for i := range rows {
		rows[i] = docstore.SearchRow{ID: fmt.Sprintf("r%d", i)}
	}
	return &docstore.SearchResult{TotalRows: 500, Rows: rows, Bookmark: fmt.Sprint(s.calls)}, nil
}

func TestSearchStopsWhenPagesRepeat(t *testing.T) {
	store := &repeatingStore{}
	res, err := New(searchOnly{store}).Search(context.Background(), docstore.SearchQuery{Query: "x"}, 500)
	require.NoError(t, err)

	assert.Len(t, res.Rows, 100)
	assertUnique(t, res.Rows)
	assert.Equal(t, 2, store.calls)
}

// advancingStore returns one new row per page, forever.
type advancingStore struct {
	calls int
}

func (s *advancingStore) Search(_ context.Context, _, _ string, q docstore.SearchQuery) (*docstore.SearchResult, error) {
	s.calls++
	if s.calls > 1000 {
		return nil, fmt.Errorf("still paging after %d calls", s.calls)
	}
	row := docstore.SearchRow{ID: fmt.Sprintf("r%d", s.calls)}
	return &docstore.SearchResult{TotalRows: 500, Rows: []docstore.SearchRow{row}, Bookmark: fmt.Sprint(s.calls)}, nil
}

func TestSearchBoundsPageCount(t *testing.T) {
	store := &advancingStore{}
	res, err := New(searchOnly{store}, WithPageSize(200)).Search(context.Background(), docstore.SearchQuery{Query: "x"}, 500)
	require.NoError(t, err)

	// three pages cover 500 rows of 200, plus one spare
	assert.Equal(t, 4, store.calls)
	assert.Len(t, res.Rows, 4)
}

type pager interface {
	Search(ctx context.Context, design, index string, q docstore.SearchQuery) (*docstore.SearchResult, error)
}

// searchOnly turns a pager into a store whose other operations are empty.
type searchOnly struct {
	pager
}

func (searchOnly) Get(context.Context, string, ...docstore.GetOption) (models.Document, error) {
	return nil, constants.ErrNotFound
}

func (searchOnly) Fetch(context.Context, []string) ([]docstore.Row, error) { return nil, nil }

func (searchOnly) Insert(context.Context, models.Document) (docstore.DocResult, error) {
	return docstore.DocResult{}, nil
}

func (searchOnly) Bulk(context.Context, []models.Document) ([]docstore.DocResult, error) {
	return nil, nil
}

func (searchOnly) View(context.Context, string, string, docstore.ViewQuery) (*docstore.ViewResult, error) {
	return &docstore.ViewResult{}, nil
}

func (searchOnly) Find(context.Context, docstore.FindQuery) (*docstore.FindResult, error) {
	return &docstore.FindResult{}, nil
}

func TestSearchSinglePageAndGroups(t *testing.T) {
	store := &countingStore{Store: seeded(t, 50)}
	s := New(store, WithPageSize(20))

	res, err := s.Search(context.Background(), docstore.SearchQuery{Query: "*:*"}, 0)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 20)
	assert.Equal(t, 1, store.calls)

	res, err = s.Search(context.Background(), docstore.SearchQuery{Query: "*:*", GroupField: "schema"}, 100)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, 50, res.Groups[0].TotalRows)
}

func TestSearchErrors(t *testing.T) {
	s := New(memory.New(), WithIndex("nope", "nope"))
	_, err := s.Search(context.Background(), docstore.SearchQuery{}, 10)
	assert.ErrorIs(t, err, constants.ErrNotFound)
}
