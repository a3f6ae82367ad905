package pathcodec

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_EncodeDecode(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	tests := []struct {
		rank int
		want string
	}{
		{0, "000"},
		{1, "001"},
		{10, "00A"},
		{35, "00Z"},
		{36, "010"},
		{46655, "ZZZ"},
	}

	for _, tt := range tests {
		got, err := c.Encode(tt.rank)
		require.NoError(t, err, "rank %d", tt.rank)
		assert.Equal(t, tt.want, got)

		back, err := c.Decode(got)
		require.NoError(t, err)
		assert.Equal(t, tt.rank, back)
	}
}

func TestCodec_EncodeOutOfRange(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	_, err = c.Encode(46656)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = c.Encode(-1)
	assert.ErrorIs(t, err, ErrBadSegment)
}

func TestCodec_DecodeBadInput(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	_, err = c.Decode("00")
	assert.ErrorIs(t, err, ErrBadSegment)

	_, err = c.Decode("0a0")
	assert.ErrorIs(t, err, ErrBadSegment, "lowercase digits are not part of the alphabet")
}

func TestNew_InvalidWidth(t *testing.T) {
	_, err := New(0)
	assert.Error(t, err)
	_, err = New(9)
	assert.Error(t, err)
}

// Encoding must preserve numeric order under plain string comparison;
// this is what makes prefix scans return nodes in tree order.
func TestCodec_LexicographicOrder(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	ranks := make([]int, 500)
	for i := range ranks {
		ranks[i] = r.Intn(c.MaxRank() + 1)
	}
	sort.Ints(ranks)

	encoded := make([]string, len(ranks))
	for i, rank := range ranks {
		encoded[i], err = c.Encode(rank)
		require.NoError(t, err)
	}

	assert.True(t, sort.StringsAreSorted(encoded))
}

func TestCodec_SplitDepth(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	path, err := c.Append("", 0)
	require.NoError(t, err)
	path, err = c.Append(path, 12)
	require.NoError(t, err)
	path, err = c.Append(path, 35)
	require.NoError(t, err)

	segs, err := c.Split(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"000", "00C", "00Z"}, segs)
	assert.Equal(t, 2, c.Depth(path))
	assert.Equal(t, 0, c.Depth("000"))

	_, err = c.Split("0000")
	assert.ErrorIs(t, err, ErrBadSegment)
}

func TestCodec_IsPrefix(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	assert.True(t, c.IsPrefix("000", "000001"))
	assert.False(t, c.IsPrefix("000", "000"), "a node is not its own ancestor")
	assert.False(t, c.IsPrefix("000001", "000"))
	assert.False(t, c.IsPrefix("", "000"))
}

func TestCodec_CommonPrefix(t *testing.T) {
	c, err := New(3)
	require.NoError(t, err)

	assert.Equal(t, "000001", c.CommonPrefix("000001002", "000001003"))
	assert.Equal(t, "", c.CommonPrefix("000001", "001002"))
	assert.Equal(t, "000", c.CommonPrefix("000001", "000"))
}
