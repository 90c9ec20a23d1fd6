// Package index implements the cache's key index: an append-only log of
// checksummed JSON records, sharded into bucket files by a hash of the key.
//
// A bucket line has the form
//
//	<sha1-hex of json>\t<json>
//
// and lines whose checksum does not match are skipped, never reported. The
// latest record for a key is the last one in file order; a record with null
// integrity is a tombstone.
package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/pathutil"
	"github.com/meigma/cacache/internal/platform"
)

const defaultFilePerm = 0o644

// Index reads and writes the index subtree of one cache root.
// It is safe for concurrent use.
type Index struct {
	root     string
	owner    *platform.Owner
	filePerm fs.FileMode
	logger   *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Index) {
		x.logger = logger
	}
}

// WithFilePerm sets the mode of newly created bucket files.
func WithFilePerm(mode fs.FileMode) Option {
	return func(x *Index) {
		x.filePerm = mode
	}
}

// New returns an Index for the cache managed by owner.
func New(owner *platform.Owner, opts ...Option) *Index {
	x := &Index{
		root:     owner.Root(),
		owner:    owner,
		filePerm: defaultFilePerm,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Index) log() *slog.Logger {
	if x.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return x.logger
}

// Root returns the cache root.
func (x *Index) Root() string {
	return x.root
}

// BucketPath returns the bucket file for key.
func (x *Index) BucketPath(key string) string {
	return pathutil.BucketPath(x.root, key)
}

// InsertOptions describe the record to append.
type InsertOptions struct {
	Metadata json.RawMessage
	Size     int64
	// Time overrides the record time; zero means now.
	Time time.Time
}

// Insert appends a record binding key to sri. A zero sri appends a
// tombstone. It returns the formatted entry and false for tombstones.
//
// If the bucket directory vanishes between creation and the append, the
// write is dropped silently: a cache prefers availability over the
// durability of a single record.
func (x *Index) Insert(key string, sri integrity.Integrity, opts InsertOptions) (cachetype.Entry, bool, error) {
	ts := opts.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	rec := Record{
		Key:       key,
		Integrity: sri,
		Time:      ts.UnixMilli(),
		Size:      opts.Size,
		Metadata:  opts.Metadata,
	}
	line, err := encodeLine(rec)
	if err != nil {
		return cachetype.Entry{}, false, err
	}

	bucket := x.BucketPath(key)
	if _, err := x.owner.MkdirFix(filepath.Dir(bucket)); err != nil {
		return cachetype.Entry{}, false, fmt.Errorf("insert %q: %w", key, err)
	}
	if err := appendLine(bucket, line, x.filePerm); err != nil {
		if !platform.IsBenignRace(err) {
			return cachetype.Entry{}, false, fmt.Errorf("insert %q: %w", key, err)
		}
		x.log().Debug("index bucket vanished during insert", "key", key, "bucket", bucket)
	} else if err := x.owner.Chownr(bucket); err != nil {
		return cachetype.Entry{}, false, fmt.Errorf("insert %q: %w", key, err)
	}

	entry := rec.Entry(x.root)
	return entry, !entry.IsTombstone(), nil
}

func appendLine(path string, line []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm) //nolint:gosec // path is derived from a key hash
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Find returns the latest live entry for key. It reports false when the
// bucket is absent, holds no record for key, or the latest record for key is
// a tombstone.
func (x *Index) Find(key string) (cachetype.Entry, bool, error) {
	recs, err := x.BucketEntries(x.BucketPath(key))
	if err != nil {
		if isMissing(err) {
			return cachetype.Entry{}, false, nil
		}
		return cachetype.Entry{}, false, fmt.Errorf("find %q: %w", key, err)
	}
	var (
		latest Record
		found  bool
	)
	for _, rec := range recs {
		if rec.Key == key {
			latest, found = rec, true
		}
	}
	if !found || latest.Integrity.IsZero() {
		return cachetype.Entry{}, false, nil
	}
	return latest.Entry(x.root), true, nil
}

// Delete logically removes key by appending a tombstone. With removeFully it
// deletes the whole bucket file instead, which also drops any other keys
// sharing the bucket.
func (x *Index) Delete(key string, removeFully bool) error {
	if !removeFully {
		_, _, err := x.Insert(key, integrity.Integrity{}, InsertOptions{})
		return err
	}
	if err := os.Remove(x.BucketPath(key)); err != nil && !isMissing(err) {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// BucketEntries parses every valid record in bucket, oldest first. Corrupted
// and unparseable lines are skipped.
func (x *Index) BucketEntries(bucket string) ([]Record, error) {
	data, err := os.ReadFile(bucket) //nolint:gosec // bucket is derived from a key hash
	if err != nil {
		return nil, err
	}
	var recs []Record
	for line := range bytes.SplitSeq(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		rec, ok := decodeLine(line)
		if !ok {
			x.log().Debug("skipping corrupted index line", "bucket", bucket)
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// isMissing reports whether err means a path (or one of its parents) is
// absent.
func isMissing(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
