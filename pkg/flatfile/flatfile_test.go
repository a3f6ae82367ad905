package flatfile

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func sampleRecords() []Record {
	return []Record{
		{ID: "a", Name: "alpha", Priority: intPtr(0)},
		{ID: "b", Parent: "a", Name: "beta", Payload: []byte("hello")},
		{ID: "c", Parent: "a", Name: "gamma", Priority: intPtr(1)},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleRecords()))

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)
}

func TestRead_SkipsBlankLines(t *testing.T) {
	in := "\n{\"id\":\"a\"}\n\n{\"id\":\"b\",\"parent\":\"a\"}\n"
	got, err := Read(bytes.NewBufferString(in))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "a", got[1].Parent)
}

func TestRead_RejectsEmptyID(t *testing.T) {
	_, err := Read(bytes.NewBufferString("{\"name\":\"orphan\"}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty id")
}

func TestWrite_RejectsEmptyID(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, []Record{{Name: "orphan"}})
	require.Error(t, err)
}

func TestFile_PlainAndCompressed(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"snapshot.jsonl", "snapshot.jsonl.xz"} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, sampleRecords()), name)

		got, err := ReadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, sampleRecords(), got, name)
	}
}
