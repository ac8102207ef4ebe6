// Package selector implements the small expression language used to pick and
// reshape nested document values.
//
// A selector is a comma separated list of expressions. Each expression is a
// path into the document followed by zero or more modifier calls:
//
//	fields.gallery.value:slice(0,2)
//	fields.related.value[*].title
//	gallery:group(3)                 with field rewrite enabled
//	pick(id, title)
//
// Key segments applied to an array map over its items. Missing paths evaluate
// to nil. Parsing produces an [Expr] tree that is evaluated separately and never
// mutates the document it is evaluated against.
package selector

import (
	"strconv"
	"strings"
)

// SegmentKind is the kind of one path step.
type SegmentKind int

const (
	SegmentKey SegmentKind = iota
	SegmentIndex
	SegmentAll
)

// Segment is one step of a path.
type Segment struct {
	Kind  SegmentKind
	Key   string
	Index int
}

func (s Segment) String() string {
	switch s.Kind {
	case SegmentIndex:
		return "[" + strconv.Itoa(s.Index) + "]"
	case SegmentAll:
		return "[*]"
	default:
		return s.Key
	}
}

// Call is a modifier function applied to the value produced so far.
type Call struct {
	Name string
	Args []string

	ints  []int
	exprs []*Expr
}

// Expr is a single parsed expression.
type Expr struct {
	Source string
	Path   []Segment
	Calls  []Call
}

// IsRootCall reports whether the expression applies its first call to the
// whole document rather than to a path.
func (e *Expr) IsRootCall() bool {
	return len(e.Path) == 0 && len(e.Calls) > 0
}

// Keys returns the leading key segments of the path, up to the first index or
// wildcard segment.
func (e *Expr) Keys() []string {
	var keys []string
	for _, seg := range e.Path {
		if seg.Kind != SegmentKey {
			break
		}
		keys = append(keys, seg.Key)
	}
	return keys
}

// FieldSlug returns the field slug of an expression rooted at
// fields.<slug>.value, or "".
func (e *Expr) FieldSlug() string {
	if len(e.Path) < 3 {
		return ""
	}
	if e.Path[0].Kind != SegmentKey || e.Path[0].Key != "fields" || e.Path[1].Kind != SegmentKey ||
		e.Path[2].Kind != SegmentKey || e.Path[2].Key != "value" {
		return ""
	}
	return e.Path[1].Key
}

// PathString renders the path in canonical form.
func (e *Expr) PathString() string {
	var b strings.Builder
	for i, seg := range e.Path {
		if seg.Kind == SegmentKey && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.String())
	}
	return b.String()
}

// String renders the expression in canonical form.
func (e *Expr) String() string {
	var b strings.Builder
	b.WriteString(e.PathString())
	for i, c := range e.Calls {
		if i > 0 || len(e.Path) > 0 {
			b.WriteByte(':')
		}
		b.WriteString(c.Name)
		b.WriteByte('(')
		b.WriteString(strings.Join(c.Args, ","))
		b.WriteByte(')')
	}
	return b.String()
}

// Selector is a parsed, comma separated list of expressions.
type Selector struct {
	Source string
	Exprs  []*Expr
}

// String renders the selector in canonical form.
func (s *Selector) String() string {
	parts := make([]string, len(s.Exprs))
	for i, e := range s.Exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
