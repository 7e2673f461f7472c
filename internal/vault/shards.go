package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// shardSuffix matches the trailing run of digits before the file extension,
// e.g. chunks_0007.gz -> 7.
var shardSuffix = regexp.MustCompile(`(\d+)\D*$`)

type shardFile struct {
	path string
	key  int
}

// ListShards returns the shard files under root in reassembly order. Vaults
// organize shards into per-quality subdirectories; ordering is the
// directory index (subdirectories sorted by name, files at the root first)
// times 1000 plus the numeric suffix embedded in each filename. Files
// without a numeric suffix are skipped.
func ListShards(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("vault: list shards in %s: %w", root, err)
	}

	var dirs []string
	var shards []shardFile
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
			continue
		}
		if n, ok := suffixNumber(e.Name()); ok {
			shards = append(shards, shardFile{path: filepath.Join(root, e.Name()), key: n})
		}
	}
	sort.Strings(dirs)

	for i, dir := range dirs {
		sub, err := os.ReadDir(filepath.Join(root, dir))
		if err != nil {
			return nil, fmt.Errorf("vault: list shards in %s: %w", filepath.Join(root, dir), err)
		}
		for _, e := range sub {
			if e.IsDir() {
				continue
			}
			if n, ok := suffixNumber(e.Name()); ok {
				shards = append(shards, shardFile{
					path: filepath.Join(root, dir, e.Name()),
					key:  (i+1)*1000 + n,
				})
			}
		}
	}

	sort.Slice(shards, func(a, b int) bool { return shards[a].key < shards[b].key })
	paths := make([]string, len(shards))
	for i, s := range shards {
		paths[i] = s.path
	}
	return paths, nil
}

func suffixNumber(name string) (int, bool) {
	m := shardSuffix.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	var n int
	if _, err := fmt.Sscanf(m[1], "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
