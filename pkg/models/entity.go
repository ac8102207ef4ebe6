package models

import (
	"time"

	"github.com/surrealdb/entitygraph/pkg/constants"
)

// Entity is a persisted content document with schema-typed fields.
type Entity struct {
	ID          string           `json:"_id,omitempty"`
	Rev         string           `json:"_rev,omitempty"`
	Type        string           `json:"type"`
	Schema      string           `json:"schema"`
	Title       string           `json:"title"`
	Slug        string           `json:"slug"`
	Fields      map[string]Field `json:"fields"`
	Thumbnail   *Thumbnail       `json:"thumbnail,omitempty"`
	Published   bool             `json:"published"`
	PublishedAt *time.Time       `json:"publishedAt,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
	CreatedBy   string           `json:"createdBy,omitempty"`
	ModifiedAt  *time.Time       `json:"modifiedAt,omitempty"`
	ModifiedBy  string           `json:"modifiedBy,omitempty"`
	Trashed     bool             `json:"trashed,omitempty"`
}

// Field holds one schema-typed value. Type mirrors the schema field's declared type.
type Field struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Thumbnail is the derived preview image of an entity or reference.
type Thumbnail struct {
	Name   string  `json:"name"`
	URL    string  `json:"url,omitempty"`
	Alt    string  `json:"alt,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Ratio  float64 `json:"ratio,omitempty"`
}

// ToDocument converts the entity into its stored representation.
func (e *Entity) ToDocument() (Document, error) {
	return ToDocument(e)
}

// EntityFromDocument decodes a stored document.
func EntityFromDocument(doc Document) (*Entity, error) {
	var e Entity
	if err := FromDocument(doc, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Reference builds the denormalised pointer other entities embed to link to e.
func (e *Entity) Reference() Reference {
	return Reference{
		ID:        e.ID,
		Type:      constants.TypeEntity,
		Schema:    e.Schema,
		Title:     e.Title,
		Slug:      e.Slug,
		Published: e.Published,
		Thumbnail: e.Thumbnail,
	}
}

// Attributes accepted from a raw payload. Everything else is discarded before
// normalisation; title, slug and thumbnail are always derived.
var Attributes = []string{
	"_id", "_rev", "type", "schema", "fields", "published", "publishedAt",
	"createdAt", "createdBy", "modifiedAt", "modifiedBy", "trashed",
}

// IsAttribute reports whether key is one of the accepted raw attributes.
func IsAttribute(key string) bool {
	for _, a := range Attributes {
		if a == key {
			return true
		}
	}
	return false
}

// entityKeys are the top-level keys of a stored entity document that are not
// field slugs.
var entityKeys = append([]string{"id", "title", "slug", "thumbnail", "parents"}, Attributes...)

// IsEntityKey reports whether key names a top-level entity attribute, derived
// ones included, rather than a field slug.
func IsEntityKey(key string) bool {
	for _, k := range entityKeys {
		if k == key {
			return true
		}
	}
	return false
}
