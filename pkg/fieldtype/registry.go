// Package fieldtype is the table of field-type descriptors. Each descriptor is a
// capability set over toText, toDb and toThumbnail; a missing capability means the
// value passes through unchanged (toDb, toText) or yields no thumbnail.
//
// A Registry is immutable once built. Construct it at process start with
// [NewRegistry] or [Default] and inject it where needed.
package fieldtype

import (
	"fmt"
	"sort"

	"github.com/surrealdb/entitygraph/pkg/models"
)

// Settings is the per-field settings map declared on a schema field.
type Settings = map[string]any

// Kind classifies descriptors. Unknown is the explicit variant returned for
// tags the registry does not know.
type Kind int

const (
	KindUnknown Kind = iota
	KindScalar
	KindReference
	KindTaxonomy
	KindMedia
	KindStructured
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindReference:
		return "reference"
	case KindTaxonomy:
		return "taxonomy"
	case KindMedia:
		return "media"
	case KindStructured:
		return "structured"
	default:
		return "unknown"
	}
}

// Descriptor describes one field type.
type Descriptor struct {
	Name string
	Kind Kind

	ToText      func(value any, settings Settings) string
	ToDB        func(value any, settings Settings) any
	ToThumbnail func(value any, settings Settings) *models.Thumbnail
}

// Known reports whether the descriptor came from the registry table.
func (d Descriptor) Known() bool {
	return d.Kind != KindUnknown
}

// IsMedia reports whether values of this type point at stored binaries.
func (d Descriptor) IsMedia() bool {
	return d.Kind == KindMedia
}

// Text applies ToText, or formats the value as-is when the capability is absent.
func (d Descriptor) Text(value any, settings Settings) string {
	if d.ToText != nil {
		return d.ToText(value, settings)
	}
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// DB applies ToDB, passing the value through when the capability is absent.
func (d Descriptor) DB(value any, settings Settings) any {
	if d.ToDB != nil {
		return d.ToDB(value, settings)
	}
	return value
}

// Thumbnail applies ToThumbnail, returning nil when the capability is absent.
func (d Descriptor) Thumbnail(value any, settings Settings) *models.Thumbnail {
	if d.ToThumbnail == nil {
		return nil
	}
	return d.ToThumbnail(value, settings)
}

// Unknown is the descriptor returned for unregistered type tags.
func Unknown(name string) Descriptor {
	return Descriptor{Name: name, Kind: KindUnknown}
}

// Registry maps type tags to descriptors.
type Registry struct {
	descriptors map[string]Descriptor
}

// NewRegistry builds a registry from the given descriptors. Later descriptors
// with the same name replace earlier ones.
func NewRegistry(descriptors ...Descriptor) *Registry {
	r := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Kind == KindUnknown {
			d.Kind = KindScalar
		}
		r.descriptors[d.Name] = d
	}
	return r
}

// Describe returns the descriptor for typ and whether it is registered.
func (r *Registry) Describe(typ string) (Descriptor, bool) {
	d, ok := r.descriptors[typ]
	if !ok {
		return Unknown(typ), false
	}
	return d, true
}

// Lookup returns the descriptor for typ, or the Unknown variant.
func (r *Registry) Lookup(typ string) Descriptor {
	d, _ := r.Describe(typ)
	return d
}

// Names returns the registered type tags, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry holding every built-in field type.
func Default() *Registry {
	return NewRegistry(builtins()...)
}
