// Package testutil holds helpers shared by the cache's tests and benchmarks.
package testutil

import (
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Pattern selects how Payload fills its bytes.
type Pattern string

const (
	// PatternUniform repeats one byte, tagged by the payload index.
	PatternUniform Pattern = "uniform"
	// PatternRandom uses a seeded PRNG.
	PatternRandom Pattern = "random"
)

// Payload returns size deterministic bytes for item i. Different items get
// different content so they land at different digests.
func Payload(tb testing.TB, pattern Pattern, i, size int) []byte {
	tb.Helper()
	data := make([]byte, size)
	switch pattern {
	case PatternRandom:
		rng := rand.New(rand.NewSource(int64(i) + 1)) //nolint:gosec // test data only
		_, err := rng.Read(data)
		require.NoError(tb, err)
	default:
		fill := byte('a' + (i % 26))
		for j := range data {
			data[j] = fill
		}
		if size > 0 {
			data[0] = byte(i)
		}
		if size > 1 {
			data[1] = byte(i >> 8)
		}
	}
	return data
}

// CountFiles returns the number of regular files below dir. A missing dir
// has none.
func CountFiles(tb testing.TB, dir string) int {
	tb.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	require.NoError(tb, err)
	return n
}

// Overwrite replaces the contents of an existing file in place, the way
// disk corruption or a misbehaving process would.
func Overwrite(tb testing.TB, path string, data []byte) {
	tb.Helper()
	info, err := os.Stat(path)
	require.NoError(tb, err)
	require.NoError(tb, os.WriteFile(path, data, info.Mode().Perm()))
}
