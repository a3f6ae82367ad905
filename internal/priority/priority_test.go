package priority

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treedex/treedex/pkg/types"
)

func mkNode(name string, prio int, seq uint64) types.Node {
	return types.Node{ID: types.NewNodeID(), Name: name, Priority: prio, Seq: seq}
}

func names(nodes []types.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func TestSort_TieBreakBySeq(t *testing.T) {
	siblings := []types.Node{
		mkNode("late", 1, 9),
		mkNode("early", 1, 2),
		mkNode("head", 0, 5),
	}

	Sort(siblings, SortByPriority)
	assert.Equal(t, []string{"head", "early", "late"}, names(siblings))
}

func TestSort_ByName(t *testing.T) {
	siblings := []types.Node{
		mkNode("cherry", 0, 1),
		mkNode("apple", 1, 2),
		mkNode("banana", 2, 3),
	}

	Sort(siblings, SortByName)
	assert.Equal(t, []string{"apple", "banana", "cherry"}, names(siblings))
}

func TestRenumber_Dense(t *testing.T) {
	siblings := []types.Node{
		mkNode("a", 7, 1),
		mkNode("b", 7, 2),
		mkNode("c", 3, 3),
	}

	Renumber(siblings, SortByPriority)

	assert.Equal(t, []string{"c", "a", "b"}, names(siblings))
	for i, n := range siblings {
		assert.Equal(t, i, n.Priority)
	}
}

func TestShiftForward(t *testing.T) {
	siblings := []types.Node{
		mkNode("a", 0, 1),
		mkNode("b", 1, 2),
		mkNode("c", 2, 3),
	}

	ShiftForward(siblings, 1)

	assert.Equal(t, 0, siblings[0].Priority)
	assert.Equal(t, 2, siblings[1].Priority)
	assert.Equal(t, 3, siblings[2].Priority)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0, Clamp(-5, 3))
	assert.Equal(t, 2, Clamp(2, 3))
	assert.Equal(t, 3, Clamp(99, 3))
}

func staticCount(n int) CountFunc {
	return func(types.NodeID) (int, error) { return n, nil }
}

func TestResolvePlace_Symbolic(t *testing.T) {
	parent := types.NewNodeID()
	target := types.Node{ID: types.NewNodeID(), Parent: parent, Priority: 2}

	tests := []struct {
		position types.Position
		parent   types.NodeID
		priority int
	}{
		{types.FirstChild, target.ID, 0},
		{types.LastChild, target.ID, 4},
		{types.SortedChild, target.ID, 4},
		{types.FirstSibling, parent, 0},
		{types.LeftSibling, parent, 2},
		{types.RightSibling, parent, 3},
		{types.LastSibling, parent, 4},
		{types.FirstRoot, types.NodeID{}, 0},
		{types.LastRoot, types.NodeID{}, 4},
	}

	for _, tt := range tests {
		place, err := ResolvePlace(&target, tt.position, staticCount(4))
		require.NoError(t, err, "position %q", tt.position)
		assert.Equal(t, tt.parent, place.Parent, "position %q", tt.position)
		assert.Equal(t, tt.priority, place.Priority, "position %q", tt.position)
	}
}

func TestResolvePlace_ExplicitIndex(t *testing.T) {
	target := types.Node{ID: types.NewNodeID()}

	place, err := ResolvePlace(&target, types.At(99), staticCount(3))
	require.NoError(t, err)
	assert.Equal(t, target.ID, place.Parent)
	assert.Equal(t, 3, place.Priority, "out-of-range index clamps to last")

	place, err = ResolvePlace(nil, types.At(1), staticCount(5))
	require.NoError(t, err)
	assert.True(t, place.Parent.IsZero())
	assert.Equal(t, 1, place.Priority)
}

func TestResolvePlace_Errors(t *testing.T) {
	_, err := ResolvePlace(nil, types.FirstChild, staticCount(0))
	assert.Error(t, err, "child placement needs a target")

	_, err = ResolvePlace(nil, types.Position("bogus"), staticCount(0))
	assert.Error(t, err)

	target := types.Node{ID: types.NewNodeID()}
	_, err = ResolvePlace(&target, types.Position("left-child"), staticCount(0))
	assert.Error(t, err, "left placement only applies to siblings")
}
