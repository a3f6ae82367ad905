package closure

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treedex/treedex/internal/nodestore"
	"github.com/treedex/treedex/internal/priority"
	"github.com/treedex/treedex/pkg/pathcodec"
	"github.com/treedex/treedex/pkg/types"
)

// fixture builds this consistent tree directly in the store:
//
//	a (000)
//	  b (000000)
//	  c (000001)
//	    d (000001000)
//	r2 (001)
type fixture struct {
	idx            *Index
	a, b, c, d, r2 types.Node
}

func newFixture(t testing.TB) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := nodestore.NewNodeStore(nodestore.StoreConfig{
		Paths:            []string{t.TempDir()},
		MinimumFreeSpace: 1,
		Logger:           logger,
	})
	require.NoError(t, err)
	t.Cleanup(store.Close)

	codec, err := pathcodec.New(3)
	require.NoError(t, err)

	f := &fixture{idx: NewIndex(store, codec)}
	f.a = types.Node{ID: types.NewNodeID(), Name: "a", Priority: 0, Path: "000", Depth: 0, Seq: 1}
	f.b = types.Node{ID: types.NewNodeID(), Parent: f.a.ID, Name: "b", Priority: 0, Path: "000000", Depth: 1, Seq: 2}
	f.c = types.Node{ID: types.NewNodeID(), Parent: f.a.ID, Name: "c", Priority: 1, Path: "000001", Depth: 1, Seq: 3}
	f.d = types.Node{ID: types.NewNodeID(), Parent: f.c.ID, Name: "d", Priority: 0, Path: "000001000", Depth: 2, Seq: 4}
	f.r2 = types.Node{ID: types.NewNodeID(), Name: "r2", Priority: 1, Path: "001", Depth: 0, Seq: 5}

	for _, n := range []types.Node{f.a, f.b, f.c, f.d, f.r2} {
		require.NoError(t, store.PutNode(n))
	}

	total, err := f.idx.RebuildAdjacency()
	require.NoError(t, err)
	require.Equal(t, 5, total)
	return f
}

func nodeNames(nodes []types.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func TestIndex_Ancestors(t *testing.T) {
	f := newFixture(t)

	chain, err := f.idx.Ancestors(f.d, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, nodeNames(chain))

	chain, err = f.idx.Ancestors(f.d, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, nodeNames(chain))

	chain, err = f.idx.Ancestors(f.d, false, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, nodeNames(chain), "maxDepth keeps the nearest ancestors")

	chain, err = f.idx.Ancestors(f.a, false, 0)
	require.NoError(t, err)
	assert.Empty(t, chain, "roots have no ancestors")
}

func TestIndex_Descendants(t *testing.T) {
	f := newFixture(t)

	nodes, err := f.idx.Descendants(f.a, false, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, nodeNames(nodes), "path order is depth-first order")

	nodes, err = f.idx.Descendants(f.a, true, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, nodeNames(nodes))

	nodes, err = f.idx.Descendants(f.a, false, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, nodeNames(nodes), "maxDepth bounds relative depth")

	count, err := f.idx.DescendantsCount(f.a, false)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestIndex_ChildrenAndSiblings(t *testing.T) {
	f := newFixture(t)

	children, err := f.idx.Children(f.a.ID, priority.SortByPriority)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, nodeNames(children))

	roots, err := f.idx.Roots(priority.SortByPriority)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "r2"}, nodeNames(roots))

	siblings, err := f.idx.Siblings(f.b, false, priority.SortByPriority)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, nodeNames(siblings))

	siblings, err = f.idx.Siblings(f.b, true, priority.SortByPriority)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, nodeNames(siblings))
}

func TestIndex_RootAndDepth(t *testing.T) {
	f := newFixture(t)

	root, err := f.idx.Root(f.d)
	require.NoError(t, err)
	assert.Equal(t, f.a.ID, root.ID)

	root, err = f.idx.Root(f.a)
	require.NoError(t, err)
	assert.Equal(t, f.a.ID, root.ID, "a root is its own root")

	assert.Equal(t, 0, f.idx.Depth(f.a))
	assert.Equal(t, 2, f.idx.Depth(f.d))
}

func TestIndex_IsAncestorOf(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.idx.IsAncestorOf(f.a, f.d))
	assert.True(t, f.idx.IsAncestorOf(f.c, f.d))
	assert.False(t, f.idx.IsAncestorOf(f.d, f.c))
	assert.False(t, f.idx.IsAncestorOf(f.b, f.b), "a node is not its own ancestor")
	assert.False(t, f.idx.IsAncestorOf(f.r2, f.d), "different trees are unrelated")
}

func TestIndex_CommonAncestor(t *testing.T) {
	f := newFixture(t)

	lca, ok, err := f.idx.CommonAncestor(f.b, f.d)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.a.ID, lca.ID)

	_, ok, err = f.idx.CommonAncestor(f.b, f.r2)
	require.NoError(t, err)
	assert.False(t, ok, "nodes under different roots share no ancestor")
}

func TestIndex_WalkUp(t *testing.T) {
	f := newFixture(t)

	chain, err := f.idx.WalkUp(f.d.ID)
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{f.a.ID, f.c.ID, f.d.ID}, chain)

	common, err := f.idx.CommonAncestorByAdjacency(f.b.ID, f.d.ID)
	require.NoError(t, err)
	assert.Equal(t, f.a.ID, common)

	common, err = f.idx.CommonAncestorByAdjacency(f.b.ID, f.r2.ID)
	require.NoError(t, err)
	assert.True(t, common.IsZero())
}

func TestIndex_AdjacencyMaintenance(t *testing.T) {
	f := newFixture(t)

	e := types.NewNodeID()
	f.idx.AddChild(f.b.ID, e)
	assert.Equal(t, []types.NodeID{e}, f.idx.ChildIDs(f.b.ID))

	f.idx.MoveChild(f.b.ID, f.c.ID, e)
	assert.Empty(t, f.idx.ChildIDs(f.b.ID))
	assert.Equal(t, 2, f.idx.ChildCount(f.c.ID))

	f.idx.RemoveChild(f.c.ID, e)
	assert.Equal(t, 1, f.idx.ChildCount(f.c.ID))
}
