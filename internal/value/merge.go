package value

// Merge deep-merges src over dst and returns a new map. Objects merge key-wise
// recursively; arrays and scalars in src replace the value in dst. Neither input
// is modified.
func Merge(dst, src map[string]any) map[string]any {
	out := CloneMap(dst)
	if out == nil {
		out = map[string]any{}
	}
	for key, sv := range src {
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := out[key].(map[string]any)
		if srcIsMap && dstIsMap {
			out[key] = Merge(dm, sm)
			continue
		}
		out[key] = Clone(sv)
	}
	return out
}
