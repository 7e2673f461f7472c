package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestListShardsOrdering(t *testing.T) {
	root := t.TempDir()

	// Root files come first, ordered by numeric suffix, then subdirectories
	// in name order.
	touch(t, filepath.Join(root, "chunks_10.gz"))
	touch(t, filepath.Join(root, "chunks_2.gz"))
	touch(t, filepath.Join(root, "Good", "chunks_1.gz"))
	touch(t, filepath.Join(root, "Good", "chunks_0.gz"))
	touch(t, filepath.Join(root, "Medium", "chunks_0.gz"))
	touch(t, filepath.Join(root, "README.md"))

	shards, err := ListShards(root)
	require.NoError(t, err)

	want := []string{
		filepath.Join(root, "chunks_2.gz"),
		filepath.Join(root, "chunks_10.gz"),
		filepath.Join(root, "Good", "chunks_0.gz"),
		filepath.Join(root, "Good", "chunks_1.gz"),
		filepath.Join(root, "Medium", "chunks_0.gz"),
	}
	assert.Equal(t, want, shards)
}

func TestListShardsEmptyAndMissing(t *testing.T) {
	shards, err := ListShards(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, shards)

	_, err = ListShards(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestSuffixNumber(t *testing.T) {
	n, ok := suffixNumber("chunks_0007.gz")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	n, ok = suffixNumber("shard42")
	assert.True(t, ok)
	assert.Equal(t, 42, n)

	_, ok = suffixNumber("README.md")
	assert.False(t, ok)
}
