// Package value holds helpers over the generic document tree shared by the
// selector, resolver and propagator: maps of string to any, slices of any,
// strings, float64 numbers, booleans and nil.
package value

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/tiendc/go-deepcopy"
)

// Clone returns a deep copy of v. Values that cannot be copied are returned as-is.
func Clone(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, int, int64:
		return t
	case map[string]any:
		var out map[string]any
		if err := deepcopy.Copy(&out, &t); err != nil {
			return cloneMap(t)
		}
		return out
	case []any:
		var out []any
		if err := deepcopy.Copy(&out, &t); err != nil {
			return cloneSlice(t)
		}
		return out
	default:
		return v
	}
}

// CloneMap is Clone for a map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out, _ := Clone(m).(map[string]any)
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

func cloneSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = Clone(v)
	}
	return out
}

// String returns the string held by v, or "".
func String(v any) string {
	s, _ := v.(string)
	return s
}

// Bool returns the boolean held by v, or false.
func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}

// Float converts any numeric representation (including numeric strings) to float64.
func Float(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil && !math.IsNaN(f)
	default:
		return 0, false
	}
}

// Int converts v to an int the same way Float does, truncating toward zero.
func Int(v any) (int, bool) {
	f, ok := Float(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

// IsNullish reports whether v carries no value: nil, an empty string, slice or map.
func IsNullish(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// Round rounds f to the given number of decimals.
func Round(f float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(f*p) / p
}
