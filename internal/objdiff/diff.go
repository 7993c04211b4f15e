package objdiff

import (
	"reflect"
	"sort"

	"github.com/fensak-dev/approval-engine/internal/patch"
)

// Diff produces the minimal ordered sequence of ObjectChange such that
// applying them to previous reproduces current, per §4.C. Changed keys
// are emitted before created keys, which are emitted before removed
// keys, each group in sorted-key order, for deterministic output.
func Diff(previous, current any) []patch.ObjectChange {
	return diffAt(nil, previous, current)
}

func diffAt(path []any, previous, current any) []patch.ObjectChange {
	prevMap, prevIsMap := previous.(map[string]any)
	curMap, curIsMap := current.(map[string]any)
	if prevIsMap && curIsMap {
		return diffMaps(path, prevMap, curMap)
	}

	prevSeq, prevIsSeq := previous.([]any)
	curSeq, curIsSeq := current.([]any)
	if prevIsSeq && curIsSeq {
		return diffSequences(path, prevSeq, curSeq)
	}

	if reflect.DeepEqual(previous, current) {
		return nil
	}

	return []patch.ObjectChange{{
		Type:     patch.ObjectModify,
		Path:     appendPath(path),
		Value:    current,
		OldValue: previous,
	}}
}

func diffMaps(path []any, previous, current map[string]any) []patch.ObjectChange {
	changed := make([]string, 0)
	created := make([]string, 0)
	removed := make([]string, 0)

	for k := range previous {
		if _, ok := current[k]; ok {
			changed = append(changed, k)
		} else {
			removed = append(removed, k)
		}
	}
	for k := range current {
		if _, ok := previous[k]; !ok {
			created = append(created, k)
		}
	}
	sort.Strings(changed)
	sort.Strings(created)
	sort.Strings(removed)

	out := make([]patch.ObjectChange, 0)
	for _, k := range changed {
		pv, cv := previous[k], current[k]
		if reflect.DeepEqual(pv, cv) {
			continue
		}
		out = append(out, diffAt(appendPath(path, k), pv, cv)...)
	}
	for _, k := range created {
		out = append(out, patch.ObjectChange{
			Type:  patch.ObjectCreate,
			Path:  appendPath(path, k),
			Value: current[k],
		})
	}
	for _, k := range removed {
		out = append(out, patch.ObjectChange{
			Type:     patch.ObjectRemove,
			Path:     appendPath(path, k),
			OldValue: previous[k],
		})
	}
	return out
}

func diffSequences(path []any, previous, current []any) []patch.ObjectChange {
	out := make([]patch.ObjectChange, 0)
	minLen := len(previous)
	if len(current) < minLen {
		minLen = len(current)
	}

	for i := 0; i < minLen; i++ {
		pv, cv := previous[i], current[i]
		if reflect.DeepEqual(pv, cv) {
			continue
		}
		out = append(out, diffAt(appendPath(path, i), pv, cv)...)
	}

	for i := minLen; i < len(current); i++ {
		out = append(out, patch.ObjectChange{
			Type:  patch.ObjectCreate,
			Path:  appendPath(path, i),
			Value: current[i],
		})
	}
	for i := minLen; i < len(previous); i++ {
		out = append(out, patch.ObjectChange{
			Type:     patch.ObjectRemove,
			Path:     appendPath(path, i),
			OldValue: previous[i],
		})
	}

	return out
}

// appendPath returns a fresh slice so callers never alias the caller's
// backing array across sibling recursive calls.
func appendPath(path []any, step ...any) []any {
	out := make([]any, 0, len(path)+len(step))
	out = append(out, path...)
	out = append(out, step...)
	return out
}
