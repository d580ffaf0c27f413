// Package merge implements the batch merge engine: a pure algorithm that
// turns an ordered list of partial updates plus a snapshot of current
// sink state into the minimal set of whole-row sink operations.
//
// The planner never touches the sink itself. Callers read the snapshot,
// call BuildPlan, then issue at most one batched append and one batched
// write - so the sink call count stays constant no matter how many
// updates a flush carries.
//
// BuildPlan is a pure function of (batch, snapshot). Recomputing it from
// the same inputs is free of side effects, which is what makes a full
// flush retry safe after a sink failure.
package merge

import (
	"gridsync/internal/grid"
)

// Plan is the minimal set of sink operations for one batch: whole rows
// to append (keys the sink has never seen) and whole rows to overwrite
// (keys the sink already holds, folded from the sink's current value).
//
// Row order within each slice follows first appearance in the batch, so
// plans are deterministic for a given input.
type Plan struct {
	Appends []grid.Row `json:"appends"`
	Updates []grid.Row `json:"updates"`
}

// IsEmpty reports whether the plan carries no work.
func (p Plan) IsEmpty() bool {
	return len(p.Appends) == 0 && len(p.Updates) == 0
}

// Keys returns the distinct keys referenced by the batch in first-appearance
// order. This is the key set the caller must cover with its single
// existence-check read before building the plan.
func Keys(batch []grid.PartialUpdate) []grid.Key {
	seen := make(map[grid.Key]bool, len(batch))
	keys := make([]grid.Key, 0, len(batch))
	for _, u := range batch {
		if !seen[u.Key] {
			seen[u.Key] = true
			keys = append(keys, u.Key)
		}
	}
	return keys
}

// Fold applies every update in order to base under the merge-preserve
// rule and returns the resulting fields. Updates for other keys must
// have been filtered out by the caller.
func Fold(base grid.Fields, updates []grid.Fields) grid.Fields {
	out := base
	for _, u := range updates {
		out = out.Merge(u)
	}
	return out
}

// BuildPlan folds an ordered batch of partial updates against a snapshot
// of existing sink rows.
//
// Keys absent from the snapshot fold from an all-unset base and land in
// Plan.Appends; keys present fold from the snapshot value and land in
// Plan.Updates, so a within-batch update that only sets one field can
// never blank out a field the sink already had.
//
// Duplicate updates for the same key - including exact duplicates from
// at-least-once delivery - collapse into a single folded row.
func BuildPlan(batch []grid.PartialUpdate, existing map[grid.Key]grid.Row) Plan {
	perKey := make(map[grid.Key][]grid.Fields, len(batch))
	for _, u := range batch {
		perKey[u.Key] = append(perKey[u.Key], u.Fields)
	}

	var plan Plan
	for _, key := range Keys(batch) {
		row, present := existing[key]
		if present {
			folded := Fold(row.Fields, perKey[key])
			plan.Updates = append(plan.Updates, grid.Row{Key: key, Fields: folded})
			continue
		}
		folded := Fold(grid.Fields{}, perKey[key])
		plan.Appends = append(plan.Appends, grid.Row{Key: key, Fields: folded})
	}
	return plan
}
