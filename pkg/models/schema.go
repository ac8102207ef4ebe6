package models

// Schema is the type definition an entity conforms to. It is read-only to this
// module and provided by a schema source.
type Schema struct {
	Slug          string         `json:"slug" yaml:"slug"`
	Name          string         `json:"name,omitempty" yaml:"name,omitempty"`
	Fields        []SchemaField  `json:"fields" yaml:"fields"`
	TitleTemplate string         `json:"titleTemplate,omitempty" yaml:"titleTemplate,omitempty"`
	SlugTemplate  string         `json:"slugTemplate,omitempty" yaml:"slugTemplate,omitempty"`
	Settings      SchemaSettings `json:"settings" yaml:"settings"`
}

// SchemaField declares one field.
type SchemaField struct {
	Slug     string         `json:"slug" yaml:"slug"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Type     string         `json:"type" yaml:"type"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// SchemaSettings holds schema-wide flags.
type SchemaSettings struct {
	Singular bool `json:"singular,omitempty" yaml:"singular,omitempty"`
}

// Field returns the declared field with the given slug.
func (s *Schema) Field(slug string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Slug == slug {
			return f, true
		}
	}
	return SchemaField{}, false
}

// DisplayName returns Name, falling back to Slug.
func (s *Schema) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Slug
}
