package index

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/pathutil"
	"github.com/meigma/cacache/internal/platform"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	return New(platform.NewOwner(t.TempDir()))
}

func sriOf(t *testing.T, data string) integrity.Integrity {
	t.Helper()
	sri, err := integrity.FromBytes([]byte(data))
	require.NoError(t, err)
	return sri
}

func TestInsertAndFind(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)
	sri := sriOf(t, "hello")

	entry, live, err := x.Insert("pkg@1.0.0", sri, InsertOptions{
		Size:     5,
		Metadata: json.RawMessage(`{"etag":"abc"}`),
	})
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, "pkg@1.0.0", entry.Key)

	wantPath, err := pathutil.ContentPath(x.Root(), sri)
	require.NoError(t, err)
	assert.Equal(t, wantPath, entry.Path)

	got, ok, err := x.Find("pkg@1.0.0")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Integrity.Equal(sri))
	assert.Equal(t, int64(5), got.Size)
	assert.JSONEq(t, `{"etag":"abc"}`, string(got.Metadata))
	assert.Equal(t, wantPath, got.Path)

	bucket := x.BucketPath("pkg@1.0.0")
	hashed := pathutil.HashKey("pkg@1.0.0")
	assert.Equal(t, filepath.Join(x.Root(), "index-v5", hashed[:2], hashed[2:4], hashed[4:]), bucket)
}

func TestFindMissing(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, ok, err := x.Find("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertTimeOverride(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)
	ts := time.UnixMilli(1_700_000_000_123)

	_, _, err := x.Insert("k", sriOf(t, "v"), InsertOptions{Time: ts})
	require.NoError(t, err)

	got, ok, err := x.Find("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Time.Equal(ts))
}

func TestLatestRecordWins(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, _, err := x.Insert("k", sriOf(t, "one"), InsertOptions{})
	require.NoError(t, err)
	_, _, err = x.Insert("k", sriOf(t, "two"), InsertOptions{})
	require.NoError(t, err)

	got, ok, err := x.Find("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Integrity.Equal(sriOf(t, "two")))
}

func TestDeleteAppendsTombstone(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, _, err := x.Insert("k", sriOf(t, "v"), InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, x.Delete("k", false))

	_, ok, err := x.Find("k")
	require.NoError(t, err)
	assert.False(t, ok)

	recs, err := x.BucketEntries(x.BucketPath("k"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[1].Integrity.IsZero())

	// A later insert revives the key.
	_, _, err = x.Insert("k", sriOf(t, "again"), InsertOptions{})
	require.NoError(t, err)
	_, ok, err = x.Find("k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeleteRemoveFully(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, _, err := x.Insert("k", sriOf(t, "v"), InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, x.Delete("k", true))

	_, err = os.Stat(x.BucketPath("k"))
	require.ErrorIs(t, err, os.ErrNotExist)

	// Removing an absent bucket is not an error.
	require.NoError(t, x.Delete("k", true))
}

func TestCorruptedLinesSkipped(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, _, err := x.Insert("k", sriOf(t, "good"), InsertOptions{})
	require.NoError(t, err)

	bucket := x.BucketPath("k")
	f, err := os.OpenFile(bucket, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n0000000000000000000000000000000000000000\t{\"key\":\"k\",\"integrity\":null}")
	require.NoError(t, err)
	_, err = f.WriteString("\nnot a record at all\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, ok, err := x.Find("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Integrity.Equal(sriOf(t, "good")))
}

func TestBucketLineFormat(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, _, err := x.Insert("k", sriOf(t, "v"), InsertOptions{Size: 1})
	require.NoError(t, err)

	data, err := os.ReadFile(x.BucketPath("k"))
	require.NoError(t, err)
	require.Equal(t, byte('\n'), data[0])

	sum, body, ok := strings.Cut(string(data[1:]), "\t")
	require.True(t, ok)
	assert.Equal(t, pathutil.HashEntry(body), sum)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	assert.Equal(t, "k", raw["key"])
	assert.Contains(t, raw, "integrity")
	assert.Contains(t, raw, "time")
	assert.Contains(t, raw, "size")
	assert.Contains(t, raw, "metadata")
}

func TestListAndWalk(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, _, err := x.Insert(k, sriOf(t, k), InsertOptions{})
		require.NoError(t, err)
	}
	_, _, err := x.Insert("b", sriOf(t, "b2"), InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, x.Delete("c", false))

	// A stray atomic rewrite temp file is not a bucket.
	stray := filepath.Join(filepath.Dir(x.BucketPath("a")), "aftmp.junk")
	require.NoError(t, os.WriteFile(stray, []byte("garbage"), 0o644))

	all, err := x.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all["a"].Integrity.Equal(sriOf(t, "a")))
	assert.True(t, all["b"].Integrity.Equal(sriOf(t, "b2")))
	assert.NotContains(t, all, "c")

	n := 0
	for entry, err := range x.Walk(ctx) {
		require.NoError(t, err)
		assert.NotEmpty(t, entry.Path)
		n++
	}
	assert.Equal(t, 2, n)
}

func TestListEmptyCache(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	all, err := x.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWalkCanceled(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)
	_, _, err := x.Insert("k", sriOf(t, "v"), InsertOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = x.List(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func sameIntegrity(kept, candidate cachetype.Entry) bool {
	return kept.Integrity.Equal(candidate.Integrity)
}

func TestCompactDeduplicates(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	for _, v := range []string{"x", "y", "x", "y", "z"} {
		_, _, err := x.Insert("k", sriOf(t, v), InsertOptions{})
		require.NoError(t, err)
	}

	kept, err := x.Compact("k", sameIntegrity, CompactOptions{})
	require.NoError(t, err)
	require.Len(t, kept, 3)
	// Newest survivor of each class, in original relative order.
	assert.True(t, kept[0].Integrity.Equal(sriOf(t, "x")))
	assert.True(t, kept[1].Integrity.Equal(sriOf(t, "y")))
	assert.True(t, kept[2].Integrity.Equal(sriOf(t, "z")))

	recs, err := x.BucketEntries(x.BucketPath("k"))
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	got, ok, err := x.Find("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Integrity.Equal(sriOf(t, "z")))
}

func TestCompactStopsAtTombstone(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, _, err := x.Insert("k", sriOf(t, "old"), InsertOptions{})
	require.NoError(t, err)
	require.NoError(t, x.Delete("k", false))
	_, _, err = x.Insert("k", sriOf(t, "new"), InsertOptions{})
	require.NoError(t, err)

	kept, err := x.Compact("k", sameIntegrity, CompactOptions{})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.True(t, kept[0].Integrity.Equal(sriOf(t, "new")))
}

func TestCompactWithValidate(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	_, _, err := x.Insert("k", sriOf(t, "keep"), InsertOptions{Size: 1})
	require.NoError(t, err)
	require.NoError(t, x.Delete("k", false))
	_, _, err = x.Insert("k", sriOf(t, "drop"), InsertOptions{Size: 2})
	require.NoError(t, err)

	kept, err := x.Compact("k", sameIntegrity, CompactOptions{
		Validate: func(e cachetype.Entry) bool { return e.Size == 1 },
	})
	require.NoError(t, err)
	require.Len(t, kept, 1)
	assert.True(t, kept[0].Integrity.Equal(sriOf(t, "keep")))

	got, ok, err := x.Find("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Size)
}

func TestCompactMissingBucket(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	kept, err := x.Compact("absent", sameIntegrity, CompactOptions{})
	require.NoError(t, err)
	assert.Empty(t, kept)
	assert.NoFileExists(t, x.BucketPath("absent"))
	assert.NoDirExists(t, pathutil.IndexDir(x.Root()))
}

func TestBucketsKeepFileOrder(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)

	// Two keys sharing one bucket, newest first in the file.
	bucket := x.BucketPath("a")
	require.NoError(t, x.RewriteBucket(bucket, []cachetype.Entry{
		{Key: "z", Integrity: sriOf(t, "z"), Time: time.UnixMilli(2_000)},
		{Key: "a", Integrity: sriOf(t, "a"), Time: time.UnixMilli(1_000)},
	}))

	var got []Bucket
	for b, err := range x.Buckets(context.Background()) {
		require.NoError(t, err)
		got = append(got, b)
	}
	require.Len(t, got, 1)
	assert.Equal(t, bucket, got[0].Path)
	require.Len(t, got[0].Entries, 2)
	assert.Equal(t, "z", got[0].Entries[0].Key)
	assert.Equal(t, "a", got[0].Entries[1].Key)
}

func TestRewriteBucketPreservesTime(t *testing.T) {
	t.Parallel()
	x := newTestIndex(t)
	ts := time.UnixMilli(1_600_000_000_000)

	entry, _, err := x.Insert("k", sriOf(t, "v"), InsertOptions{Time: ts})
	require.NoError(t, err)
	require.NoError(t, x.Delete("k", false))

	require.NoError(t, x.RewriteBucket(x.BucketPath("k"), []cachetype.Entry{entry}))

	got, ok, err := x.Find("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Time.Equal(ts))
}
