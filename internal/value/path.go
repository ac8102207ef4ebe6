package value

import "strings"

// Get walks path through nested maps and returns the value found, or nil.
func Get(v any, path ...string) any {
	cur := v
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// GetDotted is Get for a dot separated path.
func GetDotted(v any, path string) any {
	if path == "" {
		return v
	}
	return Get(v, strings.Split(path, ".")...)
}

// Set writes val at path inside m, creating intermediate maps. Non-map
// intermediates are replaced.
func Set(m map[string]any, val any, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := m
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = val
}

// Walk visits every map in the tree rooted at v, depth first, parents before
// children. Returning false from fn stops descent below that map.
func Walk(v any, fn func(m map[string]any) bool) {
	switch t := v.(type) {
	case map[string]any:
		if !fn(t) {
			return
		}
		for _, child := range t {
			Walk(child, fn)
		}
	case []any:
		for _, child := range t {
			Walk(child, fn)
		}
	}
}
