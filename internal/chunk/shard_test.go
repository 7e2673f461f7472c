package chunk

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShardRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shard_0.gz")

	recs := []Record{
		buildRecord([]recStep{{val: 1}, {val: 2}}, 0),
		buildRecord([]recStep{{val: 3}, {val: 4, terminal: true}}, 7),
		buildRecord([]recStep{{val: 5, terminal: true}, {pad: true}}, 5),
	}

	w, err := CreateShard(path)
	require.NoError(t, err)
	for _, rec := range recs {
		require.NoError(t, w.Append(rec))
	}
	require.NoError(t, w.Close())

	r, err := OpenShard(path)
	require.NoError(t, err)
	defer r.Close()

	for i, want := range recs {
		got, err := r.Next()
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, want, got, "record %d", i)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenShardMissingFile(t *testing.T) {
	_, err := OpenShard(filepath.Join(t.TempDir(), "nope.gz"))
	assert.Error(t, err)
}
