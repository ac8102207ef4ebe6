package docstore

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// The helpers below evaluate views, search and find over a set of live
// documents. Adapters that cannot push a query down to their backend load
// the candidate documents and delegate here. Inputs are never modified.

const defaultSearchLimit = 25

// ScanView maps docs, which must be ordered by id, through a view.
func ScanView(docs []models.Document, design, view string, q ViewQuery) (*ViewResult, error) {
	mapFn, ok := MapView(design, view)
	if !ok {
		return nil, fmt.Errorf("view %s/%s: %w", design, view, constants.ErrNotFound)
	}

	var rows []ViewRow
	for _, doc := range docs {
		mapFn(doc, func(key string, val any) {
			row := ViewRow{ID: models.DocID(doc), Key: key, Value: val}
			if q.IncludeDocs {
				row.Doc = value.CloneMap(doc)
			}
			rows = append(rows, row)
		})
	}
	return &ViewResult{Rows: selectRows(rows, q)}, nil
}

// selectRows orders rows by the requested keys, or by key when none are
// given, and collapses them into counts when grouping.
func selectRows(rows []ViewRow, q ViewQuery) []ViewRow {
	byKey := map[string][]ViewRow{}
	for _, row := range rows {
		byKey[row.Key] = append(byKey[row.Key], row)
	}

	keys := q.Keys
	if keys == nil {
		for key := range byKey {
			keys = append(keys, key)
		}
		sort.Strings(keys)
	}

	var out []ViewRow
	for _, key := range keys {
		matched := byKey[key]
		if len(matched) == 0 {
			continue
		}
		if q.Group {
			out = append(out, ViewRow{Key: key, Value: float64(len(matched))})
			continue
		}
		out = append(out, matched...)
	}
	return out
}

type hit struct {
	doc     models.Document
	indexed map[string]any
}

// ScanSearch serves the entity search index over docs. Bookmarks encode the
// offset of the next page.
func ScanSearch(docs []models.Document, design, index string, q SearchQuery) (*SearchResult, error) {
	if design != constants.DesignEntity || index != constants.IndexSearch {
		return nil, fmt.Errorf("search index %s/%s: %w", design, index, constants.ErrNotFound)
	}
	terms, err := ParseSearch(q.Query)
	if err != nil {
		return nil, err
	}
	offset, err := DecodeBookmark(q.Bookmark)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, constants.MaxSearchPage)

	var hits []hit
	for _, doc := range docs {
		indexed := IndexFields(doc)
		if terms.Matches(indexed) {
			hits = append(hits, hit{doc: value.CloneMap(doc), indexed: indexed})
		}
	}
	hits = sortHits(hits, ParseSort(q.Sort))

	res := &SearchResult{TotalRows: len(hits)}
	if q.GroupField != "" {
		res.Groups = groupHits(hits, q.GroupField, limit, q.IncludeDocs)
		return res, nil
	}

	end := min(offset+limit, len(hits))
	if offset < end {
		for _, h := range hits[offset:end] {
			res.Rows = append(res.Rows, toRow(h, q.IncludeDocs))
		}
		res.Bookmark = EncodeBookmark(end)
	}
	return res, nil
}

// sortHits orders hits by their indexed fields.
func sortHits(hits []hit, fields []SortField) []hit {
	if len(fields) == 0 {
		return hits
	}
	keyed := make([]models.Document, len(hits))
	for i, h := range hits {
		keyed[i] = models.Document{"_pos": float64(i)}
		for k, v := range h.indexed {
			keyed[i][k] = v
		}
	}
	SortDocs(keyed, fields)
	sorted := make([]hit, len(hits))
	for i, k := range keyed {
		n, _ := value.Int(k["_pos"])
		sorted[i] = hits[n]
	}
	return sorted
}

func toRow(h hit, includeDocs bool) SearchRow {
	row := SearchRow{ID: models.DocID(h.doc), Fields: h.indexed}
	if includeDocs {
		row.Doc = h.doc
	}
	return row
}

func groupHits(hits []hit, field string, limit int, includeDocs bool) []SearchGroup {
	index := map[string]int{}
	var groups []SearchGroup
	for _, h := range hits {
		by := fmt.Sprint(h.indexed[field])
		i, ok := index[by]
		if !ok {
			i = len(groups)
			index[by] = i
			groups = append(groups, SearchGroup{By: by})
		}
		groups[i].TotalRows++
		if len(groups[i].Rows) < limit {
			groups[i].Rows = append(groups[i].Rows, toRow(h, includeDocs))
		}
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a].By < groups[b].By })
	return groups
}

// EncodeBookmark returns the opaque bookmark for a page ending at offset.
func EncodeBookmark(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(offset)))
}

// DecodeBookmark is the inverse of EncodeBookmark. The empty bookmark is
// offset zero.
func DecodeBookmark(bookmark string) (int, error) {
	if bookmark == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(bookmark)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid bookmark", constants.ErrValidation)
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid bookmark", constants.ErrValidation)
	}
	return n, nil
}

// ScanFind filters, sorts, pages and projects docs. Index requirements are
// checked by the caller.
func ScanFind(docs []models.Document, q FindQuery) (*FindResult, error) {
	var out []models.Document
	for _, doc := range docs {
		ok, err := Match(q.Selector, doc)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, value.CloneMap(doc))
		}
	}
	SortDocs(out, q.Sort)

	if q.Skip > 0 {
		out = out[min(q.Skip, len(out)):]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	for i := range out {
		out[i] = Project(out[i], q.Fields)
	}
	return &FindResult{Docs: out}, nil
}
