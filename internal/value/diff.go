package value

import (
	"reflect"
	"sort"
	"strings"
)

// Change is a single differing path between two documents.
type Change struct {
	Path []string
	Old  any
	New  any
}

// Key returns the top-level attribute of the change.
func (c Change) Key() string {
	if len(c.Path) == 0 {
		return ""
	}
	return c.Path[0]
}

// String returns the dotted path.
func (c Change) String() string {
	return strings.Join(c.Path, ".")
}

// Diff returns attribute-level changes between old and new. Maps are compared
// key by key; any other values, arrays included, are compared as a whole.
// Changes are sorted by path.
func Diff(old, new map[string]any) []Change {
	var changes []Change
	diffInto(&changes, nil, old, new)
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].String() < changes[j].String()
	})
	return changes
}

func diffInto(changes *[]Change, prefix []string, old, new map[string]any) {
	for key, nv := range new {
		path := appendPath(prefix, key)
		ov, exists := old[key]
		if !exists {
			*changes = append(*changes, Change{Path: path, New: nv})
			continue
		}
		om, oldIsMap := ov.(map[string]any)
		nm, newIsMap := nv.(map[string]any)
		if oldIsMap && newIsMap {
			diffInto(changes, path, om, nm)
			continue
		}
		if !Equal(ov, nv) {
			*changes = append(*changes, Change{Path: path, Old: ov, New: nv})
		}
	}
	for key, ov := range old {
		if _, exists := new[key]; !exists {
			*changes = append(*changes, Change{Path: appendPath(prefix, key), Old: ov})
		}
	}
}

func appendPath(prefix []string, key string) []string {
	path := make([]string, len(prefix), len(prefix)+1)
	copy(path, prefix)
	return append(path, key)
}

// Equal compares two document values, treating numeric representations alike.
func Equal(a, b any) bool {
	if fa, ok := Float(a); ok {
		if _, isString := a.(string); !isString {
			if fb, ok := Float(b); ok {
				if _, isString := b.(string); !isString {
					return fa == fb
				}
			}
		}
	}
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, exists := bt[k]
			if !exists || !Equal(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !Equal(at[i], bt[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}
