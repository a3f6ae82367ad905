package treedex

import (
	"context"
	"fmt"
	"time"

	"github.com/treedex/treedex/internal/nodestore"
	"github.com/treedex/treedex/internal/priority"
	"github.com/treedex/treedex/pkg/types"
)

// InsertOptions describes a node to insert. Target and Position choose
// the placement; a zero Target with an empty Position appends a new
// root.
type InsertOptions struct {
	// Target is the node the Position is relative to. Ignored for
	// "*-root" positions.
	Target types.NodeID
	// Position defaults to last-child when Target is set and last-root
	// otherwise.
	Position types.Position
	Name     string
	Payload  []byte
}

func (t *Tree) childCount(parent types.NodeID) (int, error) {
	return t.index.ChildCount(parent), nil
}

// InsertNode creates a node at the given place. The adjacency pointer
// and sibling priority are written immediately; the materialized path
// and depth of the returned node are assigned by the deferred rebuild
// and become visible on the next read.
func (t *Tree) InsertNode(ctx context.Context, opts InsertOptions) (types.Node, error) {
	if err := ctx.Err(); err != nil {
		return types.Node{}, err
	}
	store, err := t.storeHandle()
	if err != nil {
		return types.Node{}, err
	}

	var target *types.Node
	if !opts.Target.IsZero() {
		tn, err := store.GetNode(opts.Target)
		if err != nil {
			return types.Node{}, fmt.Errorf("resolve target: %w", err)
		}
		target = &tn
	}

	pos := opts.Position
	if pos == "" {
		if target != nil {
			pos = types.LastChild
		} else {
			pos = types.LastRoot
		}
	}

	place, err := priority.ResolvePlace(target, pos, t.childCount)
	if err != nil {
		return types.Node{}, err
	}
	if err := t.checkCapacity(place, true); err != nil {
		return types.Node{}, err
	}

	puts, rank, err := t.reorder(place.Parent, types.NodeID{}, place.Priority)
	if err != nil {
		return types.Node{}, err
	}

	node := types.Node{
		ID:        types.NewNodeID(),
		Parent:    place.Parent,
		Priority:  rank,
		Seq:       t.nextSeq(),
		CreatedAt: time.Now().UTC(),
		Name:      opts.Name,
		Payload:   opts.Payload,
	}
	puts = append(puts, node)

	if err := store.ApplyBatch(nodestore.Batch{Puts: puts}); err != nil {
		return types.Node{}, err
	}
	t.index.AddChild(place.Parent, node.ID)
	t.enqueueRebuild(place.Parent)
	t.invalidateCache()
	return node, nil
}

// MoveNode reparents or reorders a node. Moving a node under itself or
// under one of its descendants fails with ErrCyclicMove and leaves the
// tree unchanged.
func (t *Tree) MoveNode(ctx context.Context, id, target types.NodeID, pos types.Position) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store, err := t.storeHandle()
	if err != nil {
		return err
	}

	node, err := store.GetNode(id)
	if err != nil {
		return err
	}

	var targetNode *types.Node
	if !target.IsZero() {
		tn, err := store.GetNode(target)
		if err != nil {
			return fmt.Errorf("resolve target: %w", err)
		}
		targetNode = &tn
	}

	if pos == "" {
		if targetNode != nil {
			pos = types.LastChild
		} else {
			pos = types.LastRoot
		}
	}

	place, err := priority.ResolvePlace(targetNode, pos, t.childCount)
	if err != nil {
		return err
	}
	// A same-parent forward move vacates a slot below the target, which
	// pulls the target's index down by one; left/right placements are
	// relative to that index, not the stored priority.
	if where, rel, perr := pos.Parts(); perr == nil &&
		rel == "sibling" && (where == "left" || where == "right") &&
		targetNode != nil && node.Parent == targetNode.Parent &&
		node.Priority < targetNode.Priority {
		place.Priority--
	}
	if err := t.checkCycle(id, place.Parent); err != nil {
		return err
	}
	if err := t.checkCapacity(place, place.Parent != node.Parent); err != nil {
		return err
	}

	puts, rank, err := t.reorder(place.Parent, id, place.Priority)
	if err != nil {
		return err
	}

	oldParent := node.Parent
	node.Parent = place.Parent
	node.Priority = rank
	puts = append(puts, node)

	if err := store.ApplyBatch(nodestore.Batch{Puts: puts}); err != nil {
		return err
	}
	t.index.MoveChild(oldParent, place.Parent, id)
	t.enqueueRebuild(oldParent)
	if place.Parent != oldParent {
		t.enqueueRebuild(place.Parent)
	}
	t.invalidateCache()
	return nil
}

// DeleteNode removes a node. With cascade the whole subtree goes; the
// deletion of all rows is a single atomic batch. Without cascade the
// node's children are promoted to its former parent (children of a
// deleted root become roots themselves).
func (t *Tree) DeleteNode(ctx context.Context, id types.NodeID, cascade bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store, err := t.storeHandle()
	if err != nil {
		return err
	}

	node, err := store.GetNode(id)
	if err != nil {
		return err
	}

	var batch nodestore.Batch
	var removed []types.Node

	if cascade {
		removed = append(removed, node)
		frontier := []types.NodeID{id}
		for len(frontier) > 0 {
			cur := frontier[0]
			frontier = frontier[1:]
			for _, cid := range t.index.ChildIDs(cur) {
				cn, err := store.GetNode(cid)
				if err != nil {
					return fmt.Errorf("collect subtree: %w", err)
				}
				removed = append(removed, cn)
				frontier = append(frontier, cid)
			}
		}
		for _, r := range removed {
			batch.Deletes = append(batch.Deletes, r.ID)
			batch.StalePaths = append(batch.StalePaths, r.Path)
		}
	} else {
		removed = append(removed, node)
		batch.Deletes = append(batch.Deletes, id)
		batch.StalePaths = append(batch.StalePaths, node.Path)
		for _, cid := range t.index.ChildIDs(id) {
			cn, err := store.GetNode(cid)
			if err != nil {
				return fmt.Errorf("promote child: %w", err)
			}
			cn.Parent = node.Parent
			batch.Puts = append(batch.Puts, cn)
		}
	}

	if err := store.ApplyBatch(batch); err != nil {
		return err
	}

	if cascade {
		t.index.RemoveChild(node.Parent, id)
		for _, r := range removed {
			t.index.Forget(r.ID)
		}
	} else {
		for _, cn := range batch.Puts {
			t.index.MoveChild(id, node.Parent, cn.ID)
		}
		t.index.RemoveChild(node.Parent, id)
	}

	t.enqueueRebuild(node.Parent)
	t.invalidateCache()
	return nil
}

// SetPriority reorders a node among its current siblings. The value is
// clamped to the valid rank range; out-of-range values land at the
// first or last position instead of erroring.
func (t *Tree) SetPriority(ctx context.Context, id types.NodeID, value int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	store, err := t.storeHandle()
	if err != nil {
		return err
	}

	node, err := store.GetNode(id)
	if err != nil {
		return err
	}

	puts, rank, err := t.reorder(node.Parent, id, value)
	if err != nil {
		return err
	}
	node.Priority = rank
	puts = append(puts, node)

	if err := store.ApplyBatch(nodestore.Batch{Puts: puts}); err != nil {
		return err
	}
	t.enqueueRebuild(node.Parent)
	t.invalidateCache()
	return nil
}

// reorder opens the slot for a node entering parent's child list at
// rank. skip names the node being placed so a same-parent move does not
// count itself. Returns the sibling rows whose priority changed plus
// the clamped rank. Appends past the current sibling count write
// nothing: stored priorities are kept dense by every mutation path.
func (t *Tree) reorder(parent, skip types.NodeID, rank int) ([]types.Node, int, error) {
	if skip.IsZero() && rank >= t.index.ChildCount(parent) {
		return nil, t.index.ChildCount(parent), nil
	}
	siblings, err := t.index.Children(parent, t.config.SortField)
	if err != nil {
		return nil, 0, err
	}
	others := siblings[:0]
	for _, s := range siblings {
		if s.ID != skip {
			others = append(others, s)
		}
	}
	rank = priority.Clamp(rank, len(others))

	var puts []types.Node
	for i := range others {
		p := i
		if i >= rank {
			p = i + 1
		}
		if others[i].Priority != p {
			others[i].Priority = p
			puts = append(puts, others[i])
		}
	}
	return puts, rank, nil
}

// checkCycle rejects a move that would make id its own ancestor. The
// adjacency index is always current, so the walk sees moves that have
// not been through a rebuild yet.
func (t *Tree) checkCycle(id, newParent types.NodeID) error {
	if newParent.IsZero() {
		return nil
	}
	if newParent == id {
		return ErrCyclicMove
	}
	chain, err := t.index.WalkUp(newParent)
	if err != nil {
		return err
	}
	for _, a := range chain {
		if a == id {
			return ErrCyclicMove
		}
	}
	return nil
}

// checkCapacity rejects placements the path codec cannot encode: a rank
// past the per-parent fan-out limit, a parent whose child list is full
// when the placement adds a node, or a parent already at the depth
// bound.
func (t *Tree) checkCapacity(place priority.Place, adding bool) error {
	if place.Priority > t.codec.MaxRank() {
		return fmt.Errorf("%w: rank %d exceeds fan-out limit %d",
			ErrCapacityExceeded, place.Priority, t.codec.MaxRank())
	}
	if adding && t.index.ChildCount(place.Parent) > t.codec.MaxRank() {
		return fmt.Errorf("%w: parent already holds %d children",
			ErrCapacityExceeded, t.index.ChildCount(place.Parent))
	}
	if place.Parent.IsZero() {
		return nil
	}
	chain, err := t.index.WalkUp(place.Parent)
	if err != nil {
		return err
	}
	// chain holds root..parent, so its length is the new child's depth.
	if len(chain) > t.config.MaxDepth {
		return fmt.Errorf("%w: depth %d exceeds limit %d",
			ErrCapacityExceeded, len(chain), t.config.MaxDepth)
	}
	return nil
}
