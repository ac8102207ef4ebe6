// Package normalize prepares raw entity payloads for persistence. It restricts
// the payload to the accepted attributes, stamps audit attributes and derives
// title, slug and thumbnail from the entity's schema.
package normalize

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"

	"github.com/surrealdb/entitygraph/internal/slug"
	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/fieldtype"
	"github.com/surrealdb/entitygraph/pkg/logger"
	"github.com/surrealdb/entitygraph/pkg/models"
	"github.com/surrealdb/entitygraph/pkg/selector"
)

// SchemaSource resolves schemas by slug.
type SchemaSource interface {
	Schema(ctx context.Context, slug string) (*models.Schema, error)
}

// Normalizer turns raw payloads into storable entity documents.
type Normalizer struct {
	types   *fieldtype.Registry
	schemas SchemaSource
	logger  logger.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger used to report dropped fields.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		n.logger = l
	}
}

// New returns a Normalizer over the given field types and schemas.
func New(types *fieldtype.Registry, schemas SchemaSource, opts ...Option) *Normalizer {
	n := &Normalizer{
		types:   types,
		schemas: schemas,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Restrict returns a copy of raw holding only the accepted attributes.
func Restrict(raw models.Document) models.Document {
	out := make(models.Document, len(models.Attributes))
	for _, key := range models.Attributes {
		if v, ok := raw[key]; ok {
			out[key] = value.Clone(v)
		}
	}
	return out
}

// Normalize validates raw against its schema and returns the document to store.
// raw is not modified.
func (n *Normalizer) Normalize(ctx context.Context, raw models.Document, actor string, now time.Time) (models.Document, error) {
	doc := Restrict(raw)

	schemaSlug := value.String(doc["schema"])
	if schemaSlug == "" {
		return nil, constants.Validationf("schema is required")
	}
	if id, ok := doc["_id"]; ok {
		if s, isString := id.(string); !isString || s == "" {
			return nil, constants.Validationf("_id must be a non-empty string")
		}
	}

	schema, err := n.schemas.Schema(ctx, schemaSlug)
	switch {
	case errors.Is(err, constants.ErrNotFound), err == nil && schema == nil:
		return nil, fmt.Errorf("%w: %s", constants.ErrSchemaNotFound, schemaSlug)
	case err != nil:
		return nil, fmt.Errorf("resolve schema %s: %w", schemaSlug, err)
	}

	stamp(doc, actor, now)
	doc["fields"] = n.fields(schema, doc["fields"])

	title := n.fill(titleTemplate(schema), doc, schema)
	doc["title"] = title

	slugSource := title
	if schema.SlugTemplate != "" {
		slugSource = n.fill(schema.SlugTemplate, doc, schema)
	}
	doc["slug"] = slug.Kebab(slugSource)

	if thumb := n.thumbnail(schema, doc); thumb != nil {
		doc["thumbnail"] = thumb
	} else {
		delete(doc, "thumbnail")
	}
	return doc, nil
}

func stamp(doc models.Document, actor string, now time.Time) {
	ts := now.UTC().Format(time.RFC3339Nano)

	doc["type"] = constants.TypeEntity
	if value.IsNullish(doc["createdAt"]) {
		doc["createdAt"] = ts
	}
	if value.IsNullish(doc["createdBy"]) && actor != "" {
		doc["createdBy"] = actor
	}
	doc["modifiedAt"] = ts
	if actor != "" {
		doc["modifiedBy"] = actor
	} else {
		delete(doc, "modifiedBy")
	}

	published := value.Bool(doc["published"])
	doc["published"] = published
	if published && value.IsNullish(doc["publishedAt"]) {
		doc["publishedAt"] = ts
	}
	if value.Bool(doc["trashed"]) {
		doc["trashed"] = true
	} else {
		delete(doc, "trashed")
	}
}

func (n *Normalizer) fields(schema *models.Schema, raw any) map[string]any {
	in, _ := raw.(map[string]any)
	out := make(map[string]any, len(in))
	for fieldSlug, f := range in {
		declared, ok := schema.Field(fieldSlug)
		if !ok {
			n.logger.Debug("dropping undeclared field", "schema", schema.Slug, "field", fieldSlug)
			continue
		}
		desc, ok := n.types.Describe(declared.Type)
		if !ok {
			n.logger.Warn("dropping field of unknown type", "schema", schema.Slug, "field", fieldSlug, "type", declared.Type)
			continue
		}

		v := f
		if m, ok := f.(map[string]any); ok {
			if inner, ok := m["value"]; ok {
				v = inner
			}
		}
		stored := desc.DB(v, declared.Settings)
		if value.IsNullish(stored) {
			continue
		}
		out[fieldSlug] = map[string]any{"type": declared.Type, "value": stored}
	}
	return out
}

func titleTemplate(schema *models.Schema) string {
	switch {
	case schema.TitleTemplate != "":
		return schema.TitleTemplate
	case schema.Settings.Singular:
		return schema.DisplayName()
	case len(schema.Fields) > 0:
		return "{" + schema.Fields[0].Slug + "}"
	default:
		return ""
	}
}

// fill replaces every {expression} placeholder in tpl with the text of the
// field value it selects, then trims separators and decodes html entities.
func (n *Normalizer) fill(tpl string, doc models.Document, schema *models.Schema) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(tpl, '{')
		if open < 0 {
			b.WriteString(tpl)
			break
		}
		end := strings.IndexByte(tpl[open:], '}')
		if end < 0 {
			b.WriteString(tpl)
			break
		}
		b.WriteString(tpl[:open])
		b.WriteString(n.placeholder(tpl[open+1:open+end], doc, schema))
		tpl = tpl[open+end+1:]
	}
	return clean(b.String())
}

func (n *Normalizer) placeholder(src string, doc models.Document, schema *models.Schema) string {
	expr, err := selector.ParseExpr(src, selector.FieldsOnly())
	if err != nil {
		n.logger.Warn("invalid template placeholder", "schema", schema.Slug, "placeholder", src, "error", err)
		return ""
	}
	fieldSlug := expr.FieldSlug()
	declared, ok := schema.Field(fieldSlug)
	if !ok {
		return ""
	}
	result := expr.Eval(doc)
	if result == nil {
		return ""
	}
	return n.types.Lookup(declared.Type).Text(result, declared.Settings)
}

func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune("-–—/:", r)
}

func clean(s string) string {
	return html.UnescapeString(strings.TrimFunc(s, isSeparator))
}

func (n *Normalizer) thumbnail(schema *models.Schema, doc models.Document) map[string]any {
	fields, _ := doc["fields"].(map[string]any)
	for _, declared := range schema.Fields {
		stored := value.Get(fields, declared.Slug, "value")
		if stored == nil {
			continue
		}
		thumb := n.types.Lookup(declared.Type).Thumbnail(stored, declared.Settings)
		if thumb == nil {
			continue
		}
		if thumb.Width > 0 && thumb.Height > 0 {
			thumb.Ratio = value.Round(thumb.Width/thumb.Height, 5)
		}
		out, err := models.ToDocument(thumb)
		if err != nil {
			n.logger.Warn("encode thumbnail", "schema", schema.Slug, "field", declared.Slug, "error", err)
			continue
		}
		return out
	}
	return nil
}
