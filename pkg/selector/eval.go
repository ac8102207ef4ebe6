package selector

import (
	"sort"

	"github.com/surrealdb/entitygraph/internal/value"
)

// Eval evaluates the expression against v. The result shares nothing with v.
func (e *Expr) Eval(v any) any {
	return value.Clone(e.eval(v))
}

func (e *Expr) eval(v any) any {
	cur := walk(v, e.Path)
	for i := range e.Calls {
		if cur == nil {
			return nil
		}
		cur = e.Calls[i].apply(cur)
	}
	return cur
}

func walk(v any, path []Segment) any {
	cur := v
	for _, seg := range path {
		if cur == nil {
			return nil
		}
		switch seg.Kind {
		case SegmentKey:
			cur = key(cur, seg.Key)
		case SegmentIndex:
			items, ok := cur.([]any)
			if !ok {
				return nil
			}
			i := seg.Index
			if i < 0 {
				i += len(items)
			}
			if i < 0 || i >= len(items) {
				return nil
			}
			cur = items[i]
		case SegmentAll:
			cur = all(cur)
		}
	}
	return cur
}

// key looks up k in a map, or maps the lookup over the items of an array and
// drops the items that lack it.
func key(v any, k string) any {
	switch t := v.(type) {
	case map[string]any:
		return t[k]
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if r := key(item, k); r != nil {
				out = append(out, r)
			}
		}
		return out
	default:
		return nil
	}
}

// all returns arrays unchanged and the values of a map ordered by key.
func all(v any) any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = t[k]
		}
		return out
	default:
		return nil
	}
}

// Eval evaluates every expression against v, in order.
func (s *Selector) Eval(v any) []any {
	out := make([]any, len(s.Exprs))
	for i, e := range s.Exprs {
		out[i] = e.Eval(v)
	}
	return out
}

// Select evaluates the selector. A single expression yields its value; several
// yield the list of their values.
func (s *Selector) Select(v any) any {
	if len(s.Exprs) == 1 {
		return s.Exprs[0].Eval(v)
	}
	return s.Eval(v)
}

// Project builds a new document from doc holding the selected paths. The id
// attributes are always carried over.
func (s *Selector) Project(doc map[string]any) map[string]any {
	return value.CloneMap(project(doc, s.Exprs, "_id", "id"))
}

// Select parses src and evaluates it against v.
func Select(src string, v any, opts ...Option) (any, error) {
	sel, err := Parse(src, opts...)
	if err != nil {
		return nil, err
	}
	return sel.Select(v), nil
}
