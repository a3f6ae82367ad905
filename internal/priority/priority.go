// Package priority maintains the dense sibling ordering: every sibling
// group holds priorities 0..N-1 after a rebuild, ties broken by the
// monotonic insertion sequence so renumbering is deterministic.
package priority

import (
	"fmt"
	"sort"

	"github.com/treedex/treedex/pkg/types"
)

// SortField selects the ordering key within a sibling group.
const (
	SortByPriority = "priority"
	SortByName     = "name"
)

// Sort orders a sibling group in place. The insertion sequence breaks
// ties so that two nodes that ended up with equal priorities mid-batch
// still order the same way on every rebuild.
func Sort(siblings []types.Node, sortField string) {
	switch sortField {
	case SortByName:
		sort.SliceStable(siblings, func(i, j int) bool {
			if siblings[i].Name != siblings[j].Name {
				return siblings[i].Name < siblings[j].Name
			}
			return siblings[i].Seq < siblings[j].Seq
		})
	default:
		sort.SliceStable(siblings, func(i, j int) bool {
			if siblings[i].Priority != siblings[j].Priority {
				return siblings[i].Priority < siblings[j].Priority
			}
			return siblings[i].Seq < siblings[j].Seq
		})
	}
}

// Renumber sorts a sibling group and reassigns dense priorities 0..N-1.
func Renumber(siblings []types.Node, sortField string) {
	Sort(siblings, sortField)
	for i := range siblings {
		siblings[i].Priority = i
	}
}

// ShiftForward bumps the priority of every sibling at or after rank by
// one, opening a slot for an insert.
func ShiftForward(siblings []types.Node, rank int) {
	for i := range siblings {
		if siblings[i].Priority >= rank {
			siblings[i].Priority++
		}
	}
}

// Clamp bounds a requested rank to [0, siblingCount]; out-of-range
// values land at the last position instead of erroring.
func Clamp(rank, siblingCount int) int {
	if rank < 0 {
		return 0
	}
	if rank > siblingCount {
		return siblingCount
	}
	return rank
}

// Place is the resolved parent and rank for an insert or move.
type Place struct {
	Parent   types.NodeID // zero parent means root level
	Priority int
}

// CountFunc returns how many children a parent currently has; a zero
// parent id counts root nodes.
type CountFunc func(parent types.NodeID) (int, error)

// ResolvePlace turns (target, position) into a concrete parent and rank.
//
//   - "*-root": parent is the root level, target is ignored
//   - "*-sibling": parent is target's parent
//   - "*-child": parent is target itself
//   - first=0, left=target rank, right=target rank+1, last=append;
//     sorted also appends, the configured sort field takes over at the
//     next rebuild
//   - an explicit integer position places the node among target's
//     children (or the roots when target is nil), clamped to bounds
func ResolvePlace(target *types.Node, position types.Position, count CountFunc) (Place, error) {
	if rank, ok := position.Index(); ok {
		var parent types.NodeID
		if target != nil {
			parent = target.ID
		}
		n, err := count(parent)
		if err != nil {
			return Place{}, err
		}
		return Place{Parent: parent, Priority: Clamp(rank, n)}, nil
	}

	where, rel, err := position.Parts()
	if err != nil {
		return Place{}, err
	}

	var parent types.NodeID
	switch rel {
	case "root":
		// zero parent
	case "sibling":
		if target == nil {
			return Place{}, fmt.Errorf("position %q requires a target node", position)
		}
		parent = target.Parent
	case "child":
		if target == nil {
			return Place{}, fmt.Errorf("position %q requires a target node", position)
		}
		parent = target.ID
	}

	switch where {
	case "first":
		return Place{Parent: parent, Priority: 0}, nil
	case "left":
		if rel != "sibling" {
			return Place{}, fmt.Errorf("position %q: left placement needs a sibling target", position)
		}
		return Place{Parent: parent, Priority: target.Priority}, nil
	case "right":
		if rel != "sibling" {
			return Place{}, fmt.Errorf("position %q: right placement needs a sibling target", position)
		}
		return Place{Parent: parent, Priority: target.Priority + 1}, nil
	default: // last, sorted
		n, err := count(parent)
		if err != nil {
			return Place{}, err
		}
		return Place{Parent: parent, Priority: n}, nil
	}
}
