package models

import (
	"sort"

	"github.com/surrealdb/entitygraph/pkg/constants"
)

// Reference is a denormalised pointer to another entity, option or file embedded
// inside a field value. Its display attributes are a cache kept fresh by propagation.
type Reference struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Schema      string     `json:"schema,omitempty"`
	Title       string     `json:"title,omitempty"`
	Slug        string     `json:"slug,omitempty"`
	Published   bool       `json:"published"`
	Thumbnail   *Thumbnail `json:"thumbnail,omitempty"`
	GroupBefore bool       `json:"groupBefore,omitempty"`
	GroupAfter  bool       `json:"groupAfter,omitempty"`
}

// ReferenceKeys are the attributes a stored reference may carry.
var ReferenceKeys = []string{
	"id", "type", "schema", "title", "slug", "published", "thumbnail", "groupBefore", "groupAfter",
}

// TaxonomyTerm is a term embedded in a taxonomy field, with its ancestors.
type TaxonomyTerm struct {
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Slug    string     `json:"slug"`
	Parents []TermLink `json:"parents,omitempty"`
}

// TermLink is an ancestor of a TaxonomyTerm.
type TermLink struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// ReferenceID returns the id of m when m is an entity reference.
func ReferenceID(m map[string]any) (string, bool) {
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return "", false
	}
	typ, _ := m["type"].(string)
	if typ != "" && typ != constants.TypeEntity {
		return "", false
	}
	return id, true
}

// IsTaxonomyField reports whether a field holds taxonomy terms. Terms look
// like untyped references but are never resolved, filtered or unlinked.
func IsTaxonomyField(field map[string]any) bool {
	typ, _ := field["type"].(string)
	return typ == constants.TypeTaxonomy
}

// ForEachReference calls fn for every entity reference inside the array-valued
// fields of doc, visiting fields in slug order. Taxonomy fields hold terms, not
// entity references, and are skipped. Returning false from fn stops the iteration.
func ForEachReference(doc Document, fn func(ref map[string]any) bool) {
	fields, _ := doc["fields"].(map[string]any)
	slugs := make([]string, 0, len(fields))
	for slug := range fields {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	for _, slug := range slugs {
		field, _ := fields[slug].(map[string]any)
		if IsTaxonomyField(field) {
			continue
		}
		items, ok := field["value"].([]any)
		if !ok {
			continue
		}
		for _, item := range items {
			ref, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if _, ok := ReferenceID(ref); !ok {
				continue
			}
			if !fn(ref) {
				return
			}
		}
	}
}

// ReferencedIDs returns the distinct entity ids referenced by doc, in the order
// ForEachReference visits them.
func ReferencedIDs(doc Document) []string {
	seen := map[string]bool{}
	var ids []string
	ForEachReference(doc, func(ref map[string]any) bool {
		id, _ := ReferenceID(ref)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		return true
	})
	return ids
}
