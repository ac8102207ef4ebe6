package docstore

import (
	"sort"
	"strings"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// Emit records one view row for the document being mapped.
type Emit func(key string, val any)

// MapFunc maps a document to view rows.
type MapFunc func(doc models.Document, emit Emit)

// Design is a named set of views.
type Design map[string]MapFunc

// Designs returns the design documents every adapter serves.
func Designs() map[string]Design {
	return map[string]Design{
		constants.DesignEntity: {
			constants.ViewChildren: mapChildren,
			constants.ViewSchema:   mapSchema,
			constants.ViewTrashed:  mapTrashed,
			constants.ViewTaxonomy: mapTaxonomy,
		},
	}
}

// MapView returns the map function of a view.
func MapView(design, view string) (MapFunc, bool) {
	d, ok := Designs()[design]
	if !ok {
		return nil, false
	}
	fn, ok := d[view]
	return fn, ok
}

// ViewKeys returns the keys doc emits in every view, by view name.
func ViewKeys(design string, doc models.Document) map[string][]string {
	out := map[string][]string{}
	for name, fn := range Designs()[design] {
		var keys []string
		fn(doc, func(key string, _ any) {
			keys = append(keys, key)
		})
		out[name] = keys
	}
	return out
}

func isEntity(doc models.Document) bool {
	return value.String(doc["type"]) == constants.TypeEntity
}

// children: referenced entity id -> referencing entity.
func mapChildren(doc models.Document, emit Emit) {
	if !isEntity(doc) {
		return
	}
	for _, id := range models.ReferencedIDs(doc) {
		emit(id, nil)
	}
}

func mapSchema(doc models.Document, emit Emit) {
	if !isEntity(doc) {
		return
	}
	if schema := value.String(doc["schema"]); schema != "" {
		emit(schema, nil)
	}
}

func mapTrashed(doc models.Document, emit Emit) {
	if isEntity(doc) && value.Bool(doc["trashed"]) {
		emit(models.DocID(doc), nil)
	}
}

// taxonomy: term id, and every ancestor term id, -> entity.
func mapTaxonomy(doc models.Document, emit Emit) {
	if !isEntity(doc) {
		return
	}
	seen := map[string]bool{}
	once := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			emit(id, nil)
		}
	}
	fields, _ := doc["fields"].(map[string]any)
	for _, slug := range sortedKeys(fields) {
		field, _ := fields[slug].(map[string]any)
		if value.String(field["type"]) != constants.TypeTaxonomy {
			continue
		}
		terms, _ := field["value"].([]any)
		for _, t := range terms {
			term, _ := t.(map[string]any)
			once(value.String(term["id"]))
			parents, _ := term["parents"].([]any)
			for _, p := range parents {
				parent, _ := p.(map[string]any)
				once(value.String(parent["id"]))
			}
		}
	}
}

// IndexFields returns the searchable fields of a document for the search
// index. The "default" field holds the free text.
func IndexFields(doc models.Document) map[string]any {
	if !isEntity(doc) {
		return nil
	}
	text := []string{value.String(doc["title"]), value.String(doc["slug"])}
	fields, _ := doc["fields"].(map[string]any)
	for _, slug := range sortedKeys(fields) {
		field, _ := fields[slug].(map[string]any)
		switch v := field["value"].(type) {
		case string:
			text = append(text, v)
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					text = append(text, value.String(m["title"]))
				}
			}
		}
	}
	return map[string]any{
		"default":    strings.ToLower(strings.Join(strings.Fields(strings.Join(text, " ")), " ")),
		"type":       value.String(doc["type"]),
		"schema":     value.String(doc["schema"]),
		"title":      value.String(doc["title"]),
		"slug":       value.String(doc["slug"]),
		"published":  value.Bool(doc["published"]),
		"trashed":    value.Bool(doc["trashed"]),
		"modifiedAt": value.String(doc["modifiedAt"]),
		"createdAt":  value.String(doc["createdAt"]),
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
