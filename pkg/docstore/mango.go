package docstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/surrealdb/entitygraph/internal/value"
	"github.com/surrealdb/entitygraph/pkg/constants"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// Match reports whether doc satisfies a mango selector. Field names are dotted
// paths; a plain value is an implicit $eq.
func Match(selector map[string]any, doc models.Document) (bool, error) {
	for field, cond := range selector {
		ok, err := matchField(field, cond, doc)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchField(field string, cond any, doc models.Document) (bool, error) {
	switch field {
	case "$and", "$or":
		clauses, ok := cond.([]any)
		if !ok {
			return false, fmt.Errorf("%w: %s expects an array", constants.ErrValidation, field)
		}
		for _, c := range clauses {
			sub, ok := c.(map[string]any)
			if !ok {
				return false, fmt.Errorf("%w: %s clause must be an object", constants.ErrValidation, field)
			}
			matched, err := Match(sub, doc)
			if err != nil {
				return false, err
			}
			if field == "$or" && matched {
				return true, nil
			}
			if field == "$and" && !matched {
				return false, nil
			}
		}
		return field == "$and", nil
	case "$not":
		sub, ok := cond.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: $not expects an object", constants.ErrValidation)
		}
		matched, err := Match(sub, doc)
		return !matched, err
	}

	got, exists := lookup(doc, field)
	ops, isMap := cond.(map[string]any)
	if !isMap || !hasOperators(ops) {
		if isMap {
			sub, _ := got.(map[string]any)
			if sub == nil {
				return false, nil
			}
			return Match(ops, sub)
		}
		return exists && value.Equal(got, cond), nil
	}

	for op, arg := range ops {
		ok, err := apply(op, arg, got, exists)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func hasOperators(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func lookup(doc models.Document, field string) (any, bool) {
	var cur any = doc
	for _, key := range strings.Split(field, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func apply(op string, arg, got any, exists bool) (bool, error) {
	switch op {
	case "$exists":
		return exists == value.Bool(arg), nil
	case "$eq":
		return exists && value.Equal(got, arg), nil
	case "$ne":
		return !exists || !value.Equal(got, arg), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !exists {
			return false, nil
		}
		c, ok := Compare(got, arg)
		if !ok {
			return false, nil
		}
		switch op {
		case "$gt":
			return c > 0, nil
		case "$gte":
			return c >= 0, nil
		case "$lt":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "$in", "$nin":
		list, ok := arg.([]any)
		if !ok {
			return false, fmt.Errorf("%w: %s expects an array", constants.ErrValidation, op)
		}
		found := false
		for _, candidate := range list {
			if exists && value.Equal(got, candidate) {
				found = true
				break
			}
		}
		return found == (op == "$in"), nil
	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return false, fmt.Errorf("%w: $regex expects a string", constants.ErrValidation)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("%w: %v", constants.ErrValidation, err)
		}
		s, ok := got.(string)
		return ok && re.MatchString(s), nil
	case "$not":
		sub, ok := arg.(map[string]any)
		if !ok {
			return false, fmt.Errorf("%w: $not expects an object", constants.ErrValidation)
		}
		for innerOp, innerArg := range sub {
			matched, err := apply(innerOp, innerArg, got, exists)
			if err != nil {
				return false, err
			}
			if !matched {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unsupported operator %s", constants.ErrValidation, op)
	}
}

// Compare orders two scalars: numbers numerically, strings lexically, false
// before true. ok is false for mismatched kinds.
func Compare(a, b any) (int, bool) {
	if fa, ok := value.Float(a); ok {
		if _, isString := a.(string); !isString {
			fb, ok := value.Float(b)
			if !ok {
				return 0, false
			}
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

// SortDocs orders docs in place by the given fields. Missing values sort lowest.
func SortDocs(docs []models.Document, fields []SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			a, okA := lookup(docs[i], f.Field)
			b, okB := lookup(docs[j], f.Field)
			var c int
			switch {
			case !okA && !okB:
				continue
			case !okA:
				c = -1
			case !okB:
				c = 1
			default:
				c, _ = Compare(a, b)
			}
			if c == 0 {
				continue
			}
			if f.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// Project keeps only the given dotted fields of doc, plus `_id` and `_rev`.
func Project(doc models.Document, fields []string) models.Document {
	if len(fields) == 0 {
		return doc
	}
	out := models.Document{}
	for _, key := range []string{"_id", "_rev"} {
		if v, ok := doc[key]; ok {
			out[key] = v
		}
	}
	for _, field := range fields {
		if v, ok := lookup(doc, field); ok {
			value.Set(out, v, strings.Split(field, ".")...)
		}
	}
	return out
}
