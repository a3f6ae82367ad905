// Package closure answers ancestor/descendant/depth/root queries without
// recursive traversal. Ancestor chains come from decoding a node's own
// materialized path; descendant sets come from one prefix scan over the
// path index. An in-memory parent-to-children map mirrors the adjacency
// pointers so that structural checks (cycle detection, rebuild ordering)
// never depend on possibly stale paths.
package closure

import (
	"fmt"
	"sync"

	"github.com/treedex/treedex/internal/nodestore"
	"github.com/treedex/treedex/internal/priority"
	"github.com/treedex/treedex/pkg/pathcodec"
	"github.com/treedex/treedex/pkg/types"
)

type Index struct {
	store *nodestore.NodeStore
	codec pathcodec.Codec

	childrenMu sync.RWMutex
	children   map[types.NodeID][]types.NodeID // zero key holds the roots
}

func NewIndex(store *nodestore.NodeStore, codec pathcodec.Codec) *Index {
	return &Index{
		store:    store,
		codec:    codec,
		children: make(map[types.NodeID][]types.NodeID),
	}
}

// RebuildAdjacency repopulates the parent-to-children map from stored
// rows. Called on startup and after bulk imports.
func (x *Index) RebuildAdjacency() (int, error) {
	nodes, err := x.store.AllNodes()
	if err != nil {
		return 0, err
	}

	x.childrenMu.Lock()
	defer x.childrenMu.Unlock()

	clear(x.children)
	for _, n := range nodes {
		x.children[n.Parent] = append(x.children[n.Parent], n.ID)
	}

	return len(nodes), nil
}

// AddChild records a new adjacency edge.
func (x *Index) AddChild(parent, child types.NodeID) {
	x.childrenMu.Lock()
	defer x.childrenMu.Unlock()
	x.children[parent] = append(x.children[parent], child)
}

// RemoveChild drops an adjacency edge.
func (x *Index) RemoveChild(parent, child types.NodeID) {
	x.childrenMu.Lock()
	defer x.childrenMu.Unlock()

	ids := x.children[parent]
	for i, id := range ids {
		if id == child {
			x.children[parent] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(x.children[parent]) == 0 {
		delete(x.children, parent)
	}
}

// Forget drops a node's own child list after its subtree was removed.
func (x *Index) Forget(id types.NodeID) {
	x.childrenMu.Lock()
	defer x.childrenMu.Unlock()
	delete(x.children, id)
}

// MoveChild rewires an adjacency edge from one parent to another.
func (x *Index) MoveChild(oldParent, newParent, child types.NodeID) {
	x.RemoveChild(oldParent, child)
	x.AddChild(newParent, child)
}

// ChildIDs returns the (unordered) child ids of a parent. A zero parent
// returns the root ids.
func (x *Index) ChildIDs(parent types.NodeID) []types.NodeID {
	x.childrenMu.RLock()
	defer x.childrenMu.RUnlock()
	return append([]types.NodeID(nil), x.children[parent]...)
}

func (x *Index) ChildCount(parent types.NodeID) int {
	x.childrenMu.RLock()
	defer x.childrenMu.RUnlock()
	return len(x.children[parent])
}

// Children returns a parent's child rows in sibling order.
func (x *Index) Children(parent types.NodeID, sortField string) ([]types.Node, error) {
	ids := x.ChildIDs(parent)
	nodes := make([]types.Node, 0, len(ids))
	for _, id := range ids {
		n, err := x.store.GetNode(id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	priority.Sort(nodes, sortField)
	return nodes, nil
}

// Roots returns all root rows in sibling order.
func (x *Index) Roots(sortField string) ([]types.Node, error) {
	return x.Children(types.NodeID{}, sortField)
}

// WalkUp follows adjacency pointers from a node to its root and returns
// the chain in root-to-node order, node included. Unlike path decoding
// this is always current, so it is safe for pre-mutation validation.
func (x *Index) WalkUp(id types.NodeID) ([]types.NodeID, error) {
	var chain []types.NodeID
	visited := make(map[types.NodeID]struct{})

	current := id
	for !current.IsZero() {
		if _, seen := visited[current]; seen {
			return nil, fmt.Errorf("adjacency cycle detected at %s", current)
		}
		visited[current] = struct{}{}
		chain = append(chain, current)

		n, err := x.store.GetNode(current)
		if err != nil {
			return nil, err
		}
		current = n.Parent
	}

	// reverse to root-to-node order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// CommonAncestorByAdjacency returns the deepest id shared by both
// nodes' parent chains, or a zero id when they share none. Both chains
// include the nodes themselves, so the ancestor of a node and its
// descendant is the node itself.
func (x *Index) CommonAncestorByAdjacency(a, b types.NodeID) (types.NodeID, error) {
	chainA, err := x.WalkUp(a)
	if err != nil {
		return types.NodeID{}, err
	}
	chainB, err := x.WalkUp(b)
	if err != nil {
		return types.NodeID{}, err
	}

	var common types.NodeID
	for i := 0; i < len(chainA) && i < len(chainB); i++ {
		if chainA[i] != chainB[i] {
			break
		}
		common = chainA[i]
	}
	return common, nil
}

// Ancestors returns the chain from root to node by decoding the node's
// path, one indexed lookup per ancestor. maxDepth > 0 keeps only the
// nearest maxDepth ancestors. includeSelf appends the node itself.
func (x *Index) Ancestors(n types.Node, includeSelf bool, maxDepth int) ([]types.Node, error) {
	if n.Path == "" {
		return nil, fmt.Errorf("node %s has no materialized path", n.ID)
	}

	segs, err := x.codec.Split(n.Path)
	if err != nil {
		return nil, err
	}

	var chain []types.Node
	prefix := ""
	for _, seg := range segs[:len(segs)-1] {
		prefix += seg
		id, err := x.store.GetIDByPath(prefix)
		if err != nil {
			return nil, err
		}
		ancestor, err := x.store.GetNode(id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, ancestor)
	}

	if maxDepth > 0 && len(chain) > maxDepth {
		chain = chain[len(chain)-maxDepth:]
	}
	if includeSelf {
		chain = append(chain, n)
	}
	return chain, nil
}

// Descendants returns the node's subtree in path (= depth-first) order
// via a single prefix scan. maxDepth > 0 bounds the relative depth.
func (x *Index) Descendants(n types.Node, includeSelf bool, maxDepth int) ([]types.Node, error) {
	if n.Path == "" {
		return nil, fmt.Errorf("node %s has no materialized path", n.ID)
	}

	entries, err := x.store.ScanPathPrefix(n.Path)
	if err != nil {
		return nil, err
	}

	var nodes []types.Node
	for _, e := range entries {
		if e.Path == n.Path {
			if includeSelf {
				nodes = append(nodes, n)
			}
			continue
		}
		if maxDepth > 0 {
			relDepth := (len(e.Path) - len(n.Path)) / x.codec.Width()
			if relDepth > maxDepth {
				continue
			}
		}
		node, err := x.store.GetNode(e.ID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// DescendantsCount counts the subtree without materializing it.
func (x *Index) DescendantsCount(n types.Node, includeSelf bool) (int, error) {
	if n.Path == "" {
		return 0, fmt.Errorf("node %s has no materialized path", n.ID)
	}
	count, err := x.store.CountPathPrefix(n.Path)
	if err != nil {
		return 0, err
	}
	if !includeSelf {
		count--
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}

// Siblings returns the nodes sharing n's parent, in sibling order.
func (x *Index) Siblings(n types.Node, includeSelf bool, sortField string) ([]types.Node, error) {
	all, err := x.Children(n.Parent, sortField)
	if err != nil {
		return nil, err
	}
	if includeSelf {
		return all, nil
	}
	out := all[:0]
	for _, sib := range all {
		if sib.ID != n.ID {
			out = append(out, sib)
		}
	}
	return out, nil
}

// Root resolves the root of n's tree from the first path segment.
func (x *Index) Root(n types.Node) (types.Node, error) {
	if n.Path == "" {
		return types.Node{}, fmt.Errorf("node %s has no materialized path", n.ID)
	}
	if len(n.Path) == x.codec.Width() {
		return n, nil
	}
	id, err := x.store.GetIDByPath(n.Path[:x.codec.Width()])
	if err != nil {
		return types.Node{}, err
	}
	return x.store.GetNode(id)
}

// Depth is the number of ancestors; roots have depth 0.
func (x *Index) Depth(n types.Node) int {
	return x.codec.Depth(n.Path)
}

// IsAncestorOf reports whether a's path is a proper prefix of b's.
func (x *Index) IsAncestorOf(a, b types.Node) bool {
	return x.codec.IsPrefix(a.Path, b.Path)
}

// CommonAncestor returns the node at the longest common path prefix of
// a and b, or false when they live under different roots.
func (x *Index) CommonAncestor(a, b types.Node) (types.Node, bool, error) {
	prefix := x.codec.CommonPrefix(a.Path, b.Path)
	if prefix == "" {
		return types.Node{}, false, nil
	}
	id, err := x.store.GetIDByPath(prefix)
	if err != nil {
		return types.Node{}, false, err
	}
	n, err := x.store.GetNode(id)
	if err != nil {
		return types.Node{}, false, err
	}
	return n, true, nil
}
