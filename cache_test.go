package cacache

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/pathutil"
	"github.com/meigma/cacache/internal/testutil"
)

const helloSHA512 = "sha512-m3HSJL1i83hdltRq0+o9czGb+8KJDKra4t/3JRlnPKcjI8PZm6XBHXx6zG4UuMXaDEZjR1wuXDre9G9zvN7AQw=="

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	sri, err := c.Put("pkg@1.0.0", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, helloSHA512, sri.String())

	info, err := c.Info("pkg@1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "pkg@1.0.0", info.Key)
	assert.Equal(t, helloSHA512, info.Integrity.String())
	assert.Equal(t, int64(5), info.Size)
	assert.NotEmpty(t, info.Path)

	res, err := c.Get("pkg@1.0.0")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), res.Data)
	assert.Equal(t, helloSHA512, res.Integrity.String())
	assert.Equal(t, int64(5), res.Size)
	assert.Nil(t, res.Metadata)

	data, err := c.GetByDigest(sri)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestPutSizeMismatch(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("k", []byte("abc"), PutWithSize(4))
	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(4), sizeErr.Expected)
	assert.Equal(t, int64(3), sizeErr.Found)
	assert.Equal(t, CodeBadSize, ErrorCode(err))

	_, err = c.Get("k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutMetadataAndTime(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ts := time.UnixMilli(1_700_000_000_000)

	_, err := c.Put("k", []byte("v"),
		PutWithMetadata(json.RawMessage(`{"etag":"W/1"}`)),
		PutWithTime(ts),
	)
	require.NoError(t, err)

	res, err := c.Get("k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"etag":"W/1"}`, string(res.Metadata))

	info, err := c.Info("k")
	require.NoError(t, err)
	assert.True(t, info.Time.Equal(ts))

	var meta struct {
		ETag string `json:"etag"`
	}
	require.NoError(t, info.DecodeMetadata(&meta))
	assert.Equal(t, "W/1", meta.ETag)
}

func TestPutOptionsErrors(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("k", []byte("v"), PutWithAlgorithms(integrity.SHA256, integrity.SHA512))
	require.ErrorIs(t, err, ErrMultipleAlgorithms)
	assert.Equal(t, CodeMisuse, ErrorCode(err))

	_, err = c.Put("k", []byte("v"), PutWithIntegrity(integrity.MustParse(helloSHA512)))
	require.ErrorIs(t, err, ErrChecksumMismatch)
	assert.Equal(t, CodeIntegrity, ErrorCode(err))

	_, err = c.Put("", []byte("v"))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestPutAlgorithm(t *testing.T) {
	t.Parallel()
	c := newTestCache(t, WithAlgorithm(integrity.BLAKE3))

	sri, err := c.Put("k", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{integrity.BLAKE3}, sri.Algorithms())

	res, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), res.Data)

	sri, err = c.Put("k2", []byte("hello"), PutWithAlgorithms(integrity.SHA256))
	require.NoError(t, err)
	assert.Equal(t, "sha256-LPJNul+wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ=", sri.String())
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Get("missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, c.Root(), nf.Cache)
	assert.Equal(t, "missing", nf.Key)
	assert.Equal(t, CodeNotFound, ErrorCode(err))

	_, err = c.Info("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetByDigest(integrity.MustParse(helloSHA512))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTombstoneShadowing(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("k", []byte("one"))
	require.NoError(t, err)
	require.NoError(t, c.Remove("k"))

	_, err = c.Get("k")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Put("k", []byte("two"))
	require.NoError(t, err)
	res, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), res.Data)
}

func TestRemoveFully(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("k", []byte("v"))
	require.NoError(t, err)
	require.NoError(t, c.Remove("k", RemoveFully()))

	assert.NoFileExists(t, pathutil.BucketPath(c.Root(), "k"))
	_, err = c.Get("k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveContent(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	sri, err := c.Put("k", []byte("v"))
	require.NoError(t, err)

	removed, err := c.RemoveContent(sri)
	require.NoError(t, err)
	assert.True(t, removed)

	// The entry survives but its content is gone.
	_, err = c.Info("k")
	require.NoError(t, err)
	_, err = c.Get("k")
	require.ErrorIs(t, err, ErrNotFound)

	removed, err = c.RemoveContent(sri)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRemoveAll(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("a", []byte("1"))
	require.NoError(t, err)
	_, err = c.Verify(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.RemoveAll())

	assert.NoDirExists(t, pathutil.ContentDir(c.Root()))
	assert.NoDirExists(t, pathutil.IndexDir(c.Root()))
	assert.FileExists(t, pathutil.VerifiedFile(c.Root()))

	all, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestDuplicateContentStoredOnce(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("a", []byte("same"))
	require.NoError(t, err)
	_, err = c.Put("b", []byte("same"))
	require.NoError(t, err)

	assert.Equal(t, 1, testutil.CountFiles(t, pathutil.ContentDir(c.Root())))
}

func TestCorruptedContentDetected(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("k", []byte("hello"))
	require.NoError(t, err)
	info, err := c.Info("k")
	require.NoError(t, err)
	testutil.Overwrite(t, info.Path, []byte("hel"))

	_, err = c.Get("k")
	var ie *IntegrityError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, info.Path, ie.Path)
	assert.Equal(t, CodeIntegrity, ErrorCode(err))

	_, err = c.Get("k", GetWithSize(5))
	require.ErrorIs(t, err, ErrBadSize)
}

func TestCorruptedIndexLineSkipped(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("k", []byte("one"))
	require.NoError(t, err)
	_, err = c.Put("k", []byte("two"))
	require.NoError(t, err)

	// Flip a byte in the checksum of the newest line.
	bucket := pathutil.BucketPath(c.Root(), "k")
	data, err := os.ReadFile(bucket)
	require.NoError(t, err)
	last := len(data) - 1
	for data[last] != '\n' {
		last--
	}
	if data[last+1] == 'a' {
		data[last+1] = 'b'
	} else {
		data[last+1] = 'a'
	}
	require.NoError(t, os.WriteFile(bucket, data, 0o644))

	res, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), res.Data)

	all, err := c.List(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, "k")
	assert.Equal(t, int64(3), all["k"].Size)
}

func TestMemoization(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("k", []byte("hello"), PutWithMemoize())
	require.NoError(t, err)

	// Remove the content behind the memo's back.
	info, err := c.Info("k", GetWithMemoize(false))
	require.NoError(t, err)
	require.NoError(t, os.Remove(info.Path))

	res, err := c.Get("k")
	require.NoError(t, err, "memoized value served without disk")
	assert.Equal(t, []byte("hello"), res.Data)

	data, err := c.GetByDigest(integrity.MustParse(helloSHA512))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	_, err = c.Get("k", GetWithMemoize(false))
	require.ErrorIs(t, err, ErrNotFound)

	c.ClearMemoized()
	_, err = c.Get("k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoizedDataIsIsolated(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	buf := []byte("hello")
	sri, err := c.Put("k", buf, PutWithMemoize())
	require.NoError(t, err)
	buf[0] = 'J'

	res, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), res.Data)
	res.Data[0] = 'Y'

	res, err = c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), res.Data)
	_, ok := integrity.CheckBytes(res.Data, sri)
	assert.True(t, ok)
}

func TestGetPopulatesMemo(t *testing.T) {
	t.Parallel()
	m := NewMemo(0)
	c := newTestCache(t, WithMemo(m))

	_, err := c.Put("k", []byte("hello"))
	require.NoError(t, err)
	assert.Zero(t, m.Len())

	_, err = c.Get("k")
	require.NoError(t, err)
	assert.Zero(t, m.Len(), "plain Get does not memoize")

	_, err = c.Get("k", GetWithMemoize(true))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
}

func TestCopy(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	sri, err := c.Put("k", []byte("hello"))
	require.NoError(t, err)
	dir := t.TempDir()

	entry, err := c.CopyTo("k", filepath.Join(dir, "by-key"))
	require.NoError(t, err)
	assert.Equal(t, "k", entry.Key)
	got, err := os.ReadFile(filepath.Join(dir, "by-key"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	info, err := c.CopyByDigest(sri, filepath.Join(dir, "by-digest"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	got, err = os.ReadFile(filepath.Join(dir, "by-digest"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = c.CopyTo("missing", filepath.Join(dir, "x"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHasContent(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, ok, err := c.HasContent(integrity.MustParse(helloSHA512))
	require.NoError(t, err)
	assert.False(t, ok)

	sri, err := c.Put("k", []byte("hello"))
	require.NoError(t, err)
	info, ok, err := c.HasContent(sri)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, helloSHA512, info.Integrity.String())
	assert.Equal(t, int64(5), info.Size)
}

func TestListAndWalk(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, err := c.Put(k, []byte("value-"+k))
		require.NoError(t, err)
	}
	require.NoError(t, c.Remove("b"))

	all, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, "a")
	assert.Contains(t, all, "c")

	var keys []string
	for e, err := range c.Walk(ctx) {
		require.NoError(t, err)
		keys = append(keys, e.Key)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, keys)
}

func TestCompact(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	for _, v := range []string{"1", "2", "1"} {
		_, err := c.Put("k", []byte(v))
		require.NoError(t, err)
	}
	kept, err := c.Compact("k", func(kept, candidate Entry) bool {
		return kept.Integrity.Equal(candidate.Integrity)
	})
	require.NoError(t, err)
	require.Len(t, kept, 2)
	assert.Equal(t, int64(1), kept[0].Size)

	res, err := c.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), res.Data)

	kept, err = c.Compact("k", func(Entry, Entry) bool { return true },
		CompactWithValidate(func(e Entry) bool { return true }))
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestVerify(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)
	ctx := context.Background()

	_, err := c.LastVerified()
	require.ErrorIs(t, err, ErrNotFound)

	_, err = c.Put("a", []byte("alpha"))
	require.NoError(t, err)
	orphan, err := c.Put("b", []byte("bravo"))
	require.NoError(t, err)
	require.NoError(t, c.Remove("b"))

	stats, err := c.Verify(ctx, VerifyWithConcurrency(2))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.VerifiedContent)
	assert.Equal(t, 1, stats.ReclaimedCount)
	assert.Equal(t, 1, stats.TotalEntries)

	_, ok, err := c.HasContent(orphan)
	require.NoError(t, err)
	assert.False(t, ok)

	last, err := c.LastVerified()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), last, time.Minute)

	stats, err = c.Verify(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ReclaimedCount)
	assert.Zero(t, stats.MissingContent)
}

func TestVerifyWithFilter(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	_, err := c.Put("keep", []byte("1"))
	require.NoError(t, err)
	_, err = c.Put("drop", []byte("2"))
	require.NoError(t, err)

	stats, err := c.Verify(context.Background(), VerifyWithFilter(func(e Entry) bool {
		return e.Key == "keep"
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.RejectedEntries)

	_, err = c.Get("drop")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get("keep")
	require.NoError(t, err)
}

func TestConcurrentPuts(t *testing.T) {
	t.Parallel()
	c := newTestCache(t)

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for range writers {
		wg.Go(func() {
			if _, err := c.Put("shared", []byte("same bytes")); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	res, err := c.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, []byte("same bytes"), res.Data)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)

	_, err = New(t.TempDir(), WithAlgorithm("md5"))
	require.ErrorIs(t, err, integrity.ErrUnsupportedAlgorithm)

	c, err := New(t.TempDir(), WithDirPerm(0o700), WithFilePerm(0o600))
	require.NoError(t, err)
	_, err = c.Put("k", []byte("v"))
	require.NoError(t, err)

	st, err := os.Stat(pathutil.BucketPath(c.Root(), "k"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestErrorCodeForeignError(t *testing.T) {
	t.Parallel()
	assert.Empty(t, ErrorCode(errors.New("other")))
	assert.Empty(t, ErrorCode(nil))
}
