package selector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/surrealdb/entitygraph/internal/rand"
	"github.com/surrealdb/entitygraph/internal/value"
)

type function struct {
	minArgs, maxArgs int
	paths            bool
	apply            func(c *Call, v any) any
}

var functions map[string]function

func init() {
	functions = map[string]function{
		"slice":  {minArgs: 1, maxArgs: 2, apply: applySlice},
		"sample": {minArgs: 1, maxArgs: 1, apply: applySample},
		"group":  {minArgs: 0, maxArgs: 1, apply: applyGroup},
		"pick":   {minArgs: 1, maxArgs: -1, paths: true, apply: applyPick},
	}
}

// Functions returns the names of the built-in modifiers.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bind(c *Call) error {
	fn, ok := functions[c.Name]
	if !ok {
		return fmt.Errorf("%w: unknown function %q, want one of %s", ErrSyntax, c.Name, strings.Join(Functions(), ", "))
	}
	if len(c.Args) < fn.minArgs || (fn.maxArgs >= 0 && len(c.Args) > fn.maxArgs) {
		return fmt.Errorf("%w: wrong number of arguments to %s: %d", ErrSyntax, c.Name, len(c.Args))
	}
	for _, arg := range c.Args {
		if fn.paths {
			expr, err := parseExpr(arg, parseOptions{})
			if err != nil {
				return err
			}
			c.exprs = append(c.exprs, expr)
			continue
		}
		n, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("%w: %s expects integer arguments, got %q", ErrSyntax, c.Name, arg)
		}
		c.ints = append(c.ints, n)
	}
	return nil
}

func (c *Call) apply(v any) any {
	return functions[c.Name].apply(c, v)
}

// slice(start[,end]) follows Go slice bounds; negative bounds count from the end.
func applySlice(c *Call, v any) any {
	var n int
	switch t := v.(type) {
	case []any:
		n = len(t)
	case string:
		n = utf8.RuneCountInString(t)
	default:
		return nil
	}

	start, end := bound(c.ints[0], n), n
	if len(c.ints) > 1 {
		end = bound(c.ints[1], n)
	}
	if end < start {
		end = start
	}

	if s, ok := v.(string); ok {
		return string([]rune(s)[start:end])
	}
	return v.([]any)[start:end]
}

func bound(i, n int) int {
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

// sample(n) returns n items chosen at random, in their original order.
func applySample(c *Call, v any) any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	size := c.ints[0]
	if size >= len(items) {
		return items
	}
	if size <= 0 {
		return []any{}
	}
	picked := rand.Perm(len(items))[:size]
	sort.Ints(picked)
	out := make([]any, size)
	for i, idx := range picked {
		out[i] = items[idx]
	}
	return out
}

// group(size) partitions items into groups of at most size. An item flagged
// groupBefore starts a new group; an item flagged groupAfter ends its group.
// Each grouped item receives a ratio: its own ratio over the sum of the ratios
// in the group. Item ratios come from thumbnail.ratio, then ratio, then 1.
func applyGroup(c *Call, v any) any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	size := 0
	if len(c.ints) > 0 {
		size = c.ints[0]
	}

	var (
		groups     []any
		current    []map[string]any
		breakAfter bool
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		groups = append(groups, ratios(current))
		current = nil
	}

	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if len(current) > 0 && (breakAfter || value.Bool(m["groupBefore"]) || (size > 0 && len(current) >= size)) {
			flush()
		}
		current = append(current, value.CloneMap(m))
		breakAfter = value.Bool(m["groupAfter"])
	}
	flush()

	if groups == nil {
		return []any{}
	}
	return groups
}

func ratios(group []map[string]any) []any {
	weights := make([]float64, len(group))
	total := 0.0
	for i, item := range group {
		w, ok := value.Float(value.Get(item, "thumbnail", "ratio"))
		if !ok || w <= 0 {
			w, ok = value.Float(item["ratio"])
		}
		if !ok || w <= 0 {
			w = 1
		}
		weights[i] = w
		total += w
	}

	out := make([]any, len(group))
	for i, item := range group {
		item["ratio"] = weights[i] / total
		out[i] = item
	}
	return out
}

// pick(path...) builds a new object holding only the given paths, keeping id.
func applyPick(c *Call, v any) any {
	switch t := v.(type) {
	case map[string]any:
		return project(t, c.exprs, "id")
	case []any:
		out := make([]any, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, project(m, c.exprs, "id"))
			}
		}
		return out
	default:
		return nil
	}
}

// project evaluates exprs against m and writes each result under the
// expression's key path in a new map. The keep keys are copied when present.
func project(m map[string]any, exprs []*Expr, keep ...string) map[string]any {
	out := map[string]any{}
	for _, key := range keep {
		if v, ok := m[key]; ok {
			out[key] = v
		}
	}
	for _, e := range exprs {
		result := e.eval(m)
		if e.IsRootCall() {
			if sub, ok := result.(map[string]any); ok {
				for k, v := range sub {
					out[k] = v
				}
			}
			continue
		}
		keys := e.Keys()
		if len(keys) == 0 || result == nil {
			continue
		}
		value.Set(out, result, keys...)
	}
	return out
}
