package objdiff

import "github.com/fensak-dev/approval-engine/internal/patch"

// Build assembles the ObjectDiff for a Patch given its PatchOp and the
// parsed tree(s) available for that op (§3's ObjectDiff invariants):
// Insert carries only current, Delete carries only previous, and
// Modified carries both plus the recursive diff between them.
func Build(op patch.PatchOp, previous, current any) *patch.ObjectDiff {
	switch op {
	case patch.PatchInsert:
		return &patch.ObjectDiff{Previous: nil, Current: current, Diff: []patch.ObjectChange{}}
	case patch.PatchDelete:
		return &patch.ObjectDiff{Previous: previous, Current: nil, Diff: []patch.ObjectChange{}}
	case patch.PatchModified:
		return &patch.ObjectDiff{Previous: previous, Current: current, Diff: Diff(previous, current)}
	default:
		return nil
	}
}
