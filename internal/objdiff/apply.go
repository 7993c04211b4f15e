package objdiff

import "github.com/fensak-dev/approval-engine/internal/patch"

// Apply reproduces current from previous by replaying diff. It exists
// primarily so tests can exercise the inversion property (§8, property
// 3); the engine itself never needs to apply a diff at runtime.
func Apply(previous any, diff []patch.ObjectChange) any {
	result := deepCopy(previous)

	// Sequence removals target tail indices computed against the
	// pre-edit length; applying them in reverse keeps each index valid
	// as the backing slice shrinks. Map removals are order-independent,
	// so reversing them too is harmless.
	var removes, rest []patch.ObjectChange
	for _, change := range diff {
		if change.Type == patch.ObjectRemove {
			removes = append(removes, change)
		} else {
			rest = append(rest, change)
		}
	}

	for _, change := range rest {
		result = applyOne(result, change.Path, change)
	}
	for i := len(removes) - 1; i >= 0; i-- {
		result = applyOne(result, removes[i].Path, removes[i])
	}

	return result
}

func applyOne(root any, path []any, change patch.ObjectChange) any {
	if len(path) == 0 {
		if change.Type == patch.ObjectRemove {
			return nil
		}
		return change.Value
	}

	switch container := root.(type) {
	case map[string]any:
		key, _ := path[0].(string)
		out := make(map[string]any, len(container))
		for k, v := range container {
			out[k] = v
		}
		if len(path) == 1 {
			switch change.Type {
			case patch.ObjectRemove:
				delete(out, key)
			default:
				out[key] = change.Value
			}
			return out
		}
		out[key] = applyOne(out[key], path[1:], change)
		return out

	case []any:
		idx, _ := path[0].(int)
		out := make([]any, len(container))
		copy(out, container)
		if len(path) == 1 {
			switch change.Type {
			case patch.ObjectRemove:
				if idx < len(out) {
					out = append(out[:idx], out[idx+1:]...)
				}
			case patch.ObjectCreate:
				if idx == len(out) {
					out = append(out, change.Value)
				} else if idx < len(out) {
					out[idx] = change.Value
				}
			default:
				if idx < len(out) {
					out[idx] = change.Value
				}
			}
			return out
		}
		if idx < len(out) {
			out[idx] = applyOne(out[idx], path[1:], change)
		}
		return out

	default:
		return root
	}
}

func deepCopy(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}
