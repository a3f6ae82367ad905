package treedex

import (
	"context"
	"strconv"

	"github.com/treedex/treedex/internal/treecache"
	"github.com/treedex/treedex/pkg/types"
)

// cached serves a query result from the cache or computes and stores
// it. A type mismatch under a reused key counts as a miss.
func cached[T any](t *Tree, key string, fill func() (T, error)) (T, error) {
	if v, ok := t.cache.Get(key); ok {
		if tv, ok := v.(T); ok {
			return tv, nil
		}
	}
	v, err := fill()
	if err != nil {
		var zero T
		return zero, err
	}
	t.cache.Set(key, v)
	return v, nil
}

func (t *Tree) cacheKey(op string, id types.NodeID, args ...string) string {
	return treecache.Key(t.config.Label, op, id, args...)
}

func boolArg(b bool) string {
	return strconv.FormatBool(b)
}

// GetNode returns the stored row for id with its path, depth and
// priority up to date.
func (t *Tree) GetNode(ctx context.Context, id types.NodeID) (types.Node, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return types.Node{}, err
	}
	return store.GetNode(id)
}

// GetNodeByPath resolves a materialized path to its node.
func (t *Tree) GetNodeByPath(ctx context.Context, path string) (types.Node, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return types.Node{}, err
	}
	id, err := store.GetIDByPath(path)
	if err != nil {
		return types.Node{}, err
	}
	return store.GetNode(id)
}

// GetRoots returns the root nodes in sibling order.
func (t *Tree) GetRoots(ctx context.Context) ([]types.Node, error) {
	if _, err := t.readReady(ctx); err != nil {
		return nil, err
	}
	return cached(t, t.cacheKey("roots", types.NodeID{}), func() ([]types.Node, error) {
		return t.index.Roots(t.config.SortField)
	})
}

// GetChildren returns the direct children of parent in sibling order.
// A zero parent returns the roots.
func (t *Tree) GetChildren(ctx context.Context, parent types.NodeID) ([]types.Node, error) {
	if parent.IsZero() {
		return t.GetRoots(ctx)
	}
	if _, err := t.readReady(ctx); err != nil {
		return nil, err
	}
	return cached(t, t.cacheKey("children", parent), func() ([]types.Node, error) {
		return t.index.Children(parent, t.config.SortField)
	})
}

// GetChildrenCount reports the number of direct children without
// fetching their rows.
func (t *Tree) GetChildrenCount(ctx context.Context, parent types.NodeID) (int, error) {
	if _, err := t.readReady(ctx); err != nil {
		return 0, err
	}
	return t.index.ChildCount(parent), nil
}

// GetAncestors returns the chain from the root down to id. includeSelf
// appends id's own row; maxDepth > 0 keeps only the maxDepth ancestors
// nearest to id.
func (t *Tree) GetAncestors(ctx context.Context, id types.NodeID, includeSelf bool, maxDepth int) ([]types.Node, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return nil, err
	}
	key := t.cacheKey("ancestors", id, boolArg(includeSelf), strconv.Itoa(maxDepth))
	return cached(t, key, func() ([]types.Node, error) {
		n, err := store.GetNode(id)
		if err != nil {
			return nil, err
		}
		return t.index.Ancestors(n, includeSelf, maxDepth)
	})
}

// GetDescendants returns the subtree under id in depth-first order.
// maxDepth > 0 bounds the relative depth below id.
func (t *Tree) GetDescendants(ctx context.Context, id types.NodeID, includeSelf bool, maxDepth int) ([]types.Node, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return nil, err
	}
	key := t.cacheKey("descendants", id, boolArg(includeSelf), strconv.Itoa(maxDepth))
	return cached(t, key, func() ([]types.Node, error) {
		n, err := store.GetNode(id)
		if err != nil {
			return nil, err
		}
		return t.index.Descendants(n, includeSelf, maxDepth)
	})
}

// GetDescendantsCount counts the subtree under id without fetching
// rows; a single prefix scan over the path index.
func (t *Tree) GetDescendantsCount(ctx context.Context, id types.NodeID) (int, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return 0, err
	}
	return cached(t, t.cacheKey("descendantsCount", id), func() (int, error) {
		n, err := store.GetNode(id)
		if err != nil {
			return 0, err
		}
		return t.index.DescendantsCount(n, false)
	})
}

// GetSiblings returns the nodes sharing id's parent, in sibling order.
func (t *Tree) GetSiblings(ctx context.Context, id types.NodeID, includeSelf bool) ([]types.Node, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return nil, err
	}
	key := t.cacheKey("siblings", id, boolArg(includeSelf))
	return cached(t, key, func() ([]types.Node, error) {
		n, err := store.GetNode(id)
		if err != nil {
			return nil, err
		}
		return t.index.Siblings(n, includeSelf, t.config.SortField)
	})
}

// GetParent returns id's parent row; ok is false for a root.
func (t *Tree) GetParent(ctx context.Context, id types.NodeID) (types.Node, bool, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return types.Node{}, false, err
	}
	n, err := store.GetNode(id)
	if err != nil {
		return types.Node{}, false, err
	}
	if n.IsRoot() {
		return types.Node{}, false, nil
	}
	p, err := store.GetNode(n.Parent)
	if err != nil {
		return types.Node{}, false, err
	}
	return p, true, nil
}

// GetRoot returns the root of id's tree; a root returns itself.
func (t *Tree) GetRoot(ctx context.Context, id types.NodeID) (types.Node, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return types.Node{}, err
	}
	return cached(t, t.cacheKey("root", id), func() (types.Node, error) {
		n, err := store.GetNode(id)
		if err != nil {
			return types.Node{}, err
		}
		return t.index.Root(n)
	})
}

// GetDepth reports id's distance from its root; roots are at depth 0.
func (t *Tree) GetDepth(ctx context.Context, id types.NodeID) (int, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return 0, err
	}
	n, err := store.GetNode(id)
	if err != nil {
		return 0, err
	}
	return t.index.Depth(n), nil
}

// IsAncestorOf reports whether a lies on the path from b's root to b.
// Answered by a prefix comparison of the two materialized paths.
func (t *Tree) IsAncestorOf(ctx context.Context, a, b types.NodeID) (bool, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return false, err
	}
	an, err := store.GetNode(a)
	if err != nil {
		return false, err
	}
	bn, err := store.GetNode(b)
	if err != nil {
		return false, err
	}
	return t.index.IsAncestorOf(an, bn), nil
}

// GetCommonAncestor returns the deepest node that is an ancestor of
// both a and b (either node itself counts). ok is false when the two
// nodes live in different trees.
func (t *Tree) GetCommonAncestor(ctx context.Context, a, b types.NodeID) (types.Node, bool, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return types.Node{}, false, err
	}
	an, err := store.GetNode(a)
	if err != nil {
		return types.Node{}, false, err
	}
	bn, err := store.GetNode(b)
	if err != nil {
		return types.Node{}, false, err
	}
	return t.index.CommonAncestor(an, bn)
}

// GetBreadcrumbs returns the ids on the path from the root to id,
// id included, decoded straight from the materialized path.
func (t *Tree) GetBreadcrumbs(ctx context.Context, id types.NodeID) ([]types.NodeID, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return nil, err
	}
	return cached(t, t.cacheKey("breadcrumbs", id), func() ([]types.NodeID, error) {
		n, err := store.GetNode(id)
		if err != nil {
			return nil, err
		}
		chain, err := t.index.Ancestors(n, true, 0)
		if err != nil {
			return nil, err
		}
		ids := make([]types.NodeID, len(chain))
		for i, a := range chain {
			ids[i] = a.ID
		}
		return ids, nil
	})
}

// TreeDump is one node of a nested tree snapshot.
type TreeDump struct {
	Node     types.Node
	Children []TreeDump
}

// GetTree returns the whole forest as nested dumps, roots in sibling
// order.
func (t *Tree) GetTree(ctx context.Context) ([]TreeDump, error) {
	if _, err := t.readReady(ctx); err != nil {
		return nil, err
	}
	roots, err := t.index.Roots(t.config.SortField)
	if err != nil {
		return nil, err
	}
	return t.dumpLevel(roots)
}

func (t *Tree) dumpLevel(nodes []types.Node) ([]TreeDump, error) {
	out := make([]TreeDump, 0, len(nodes))
	for _, n := range nodes {
		children, err := t.index.Children(n.ID, t.config.SortField)
		if err != nil {
			return nil, err
		}
		sub, err := t.dumpLevel(children)
		if err != nil {
			return nil, err
		}
		out = append(out, TreeDump{Node: n, Children: sub})
	}
	return out, nil
}

// CountNodes reports the total number of stored nodes.
func (t *Tree) CountNodes(ctx context.Context) (int, error) {
	store, err := t.readReady(ctx)
	if err != nil {
		return 0, err
	}
	rows, err := store.AllNodes()
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
