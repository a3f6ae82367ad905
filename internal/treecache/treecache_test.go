package treecache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treedex/treedex/pkg/types"
)

func TestCache_SetGet(t *testing.T) {
	c := New(0, 0)

	key := Key("tree", "children", types.NewNodeID())
	ids := []types.NodeID{types.NewNodeID(), types.NewNodeID()}

	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Set(key, ids)
	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, ids, got)
}

func TestCache_FIFOEviction(t *testing.T) {
	// Room for roughly four string entries of 52 bytes each.
	c := New(220, 100)

	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("tree|op:%d", i), "xxxx")
	}

	// Oldest entry is gone, newest survives.
	_, ok := c.Get("tree|op:0")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("tree|op:4")
	assert.True(t, ok)
}

func TestCache_PromotionResistsEviction(t *testing.T) {
	c := New(220, 2)

	c.Set("tree|hot:1", "xxxx")
	c.Set("tree|cold:1", "xxxx")

	// Two reads promote the hot entry behind the cold one.
	c.Get("tree|hot:1")
	c.Get("tree|hot:1")

	c.Set("tree|new:1", "xxxx")
	c.Set("tree|new:2", "xxxx")
	c.Set("tree|new:3", "xxxx")

	_, hotOK := c.Get("tree|hot:1")
	_, coldOK := c.Get("tree|cold:1")
	assert.True(t, hotOK, "promoted entry should outlive the cold one")
	assert.False(t, coldOK)
}

func TestCache_InvalidatePrefix(t *testing.T) {
	c := New(0, 0)

	c.Set("alpha|children:1", 1)
	c.Set("alpha|children:2", 2)
	c.Set("beta|children:1", 3)

	c.Invalidate("alpha")

	_, ok := c.Get("alpha|children:1")
	assert.False(t, ok)
	_, ok = c.Get("alpha|children:2")
	assert.False(t, ok)
	_, ok = c.Get("beta|children:1")
	assert.True(t, ok, "other labels must be untouched")
}

func TestCache_Clear(t *testing.T) {
	c := New(0, 0)
	c.Set("tree|a:1", 1)
	c.Set("tree|b:2", 2)

	c.Clear()

	assert.Equal(t, 0, c.Info().TotalKeys)
	_, ok := c.Get("tree|a:1")
	assert.False(t, ok)
}

func TestCache_SetReplacesExisting(t *testing.T) {
	c := New(0, 0)

	c.Set("tree|a:1", "first")
	c.Set("tree|a:1", "second")

	got, ok := c.Get("tree|a:1")
	require.True(t, ok)
	assert.Equal(t, "second", got)
	assert.Equal(t, 1, c.Info().TotalKeys)
}

func TestCache_Info(t *testing.T) {
	c := New(1024, 3)
	c.Set("tree|a:1", "value")

	info := c.Info()
	assert.Equal(t, 1, info.TotalKeys)
	assert.Equal(t, int64(1024), info.MaxSize)
	assert.Greater(t, info.TotalSize, int64(0))
	assert.Equal(t, 1, info.Prefixes)
	assert.NotEmpty(t, info.TotalSizeHuman)
}

func TestEstimateSize_Deterministic(t *testing.T) {
	ids := []types.NodeID{types.NewNodeID(), types.NewNodeID(), types.NewNodeID()}
	assert.Equal(t, estimateSize(ids), estimateSize(ids))
	assert.Equal(t, int64(48+3*16), estimateSize(ids))
}

func TestCache_EntriesDoNotAliasCallerSlices(t *testing.T) {
	c := New(0, 0)
	key := Key("tree", "children", types.NewNodeID())

	rows := []types.Node{
		{ID: types.NewNodeID(), Name: "a", Priority: 0},
		{ID: types.NewNodeID(), Name: "b", Priority: 1},
	}
	c.Set(key, rows)

	// Mutating the slice given to Set must not touch the cached value.
	rows[0], rows[1] = rows[1], rows[0]

	got, ok := c.Get(key)
	require.True(t, ok)
	first := got.([]types.Node)
	assert.Equal(t, "a", first[0].Name)

	// Mutating a returned slice must not poison later hits.
	first[0].Name = "mutated"
	first[0], first[1] = first[1], first[0]

	again, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "a", again.([]types.Node)[0].Name)
	assert.Equal(t, "b", again.([]types.Node)[1].Name)
}
