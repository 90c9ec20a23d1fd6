package index

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/pathutil"
)

// atomicTempPrefix marks in-progress rewrites left by atomicfile; they are
// not buckets.
const atomicTempPrefix = "aftmp."

// Bucket is the live content of one bucket file, in file order.
type Bucket struct {
	Path    string
	Entries []cachetype.Entry
}

// Buckets yields every bucket file under the index with its live entries.
// Within a bucket the last record per key wins, tombstones hide their key,
// and keys keep the order in which they first appear in the file. Missing
// directories at any level are treated as empty.
func (x *Index) Buckets(ctx context.Context) iter.Seq2[Bucket, error] {
	return func(yield func(Bucket, error) bool) {
		for bucket, err := range x.buckets() {
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				yield(Bucket{}, err)
				return
			}
			recs, err := x.BucketEntries(bucket)
			if err != nil {
				if isMissing(err) {
					continue
				}
				yield(Bucket{}, fmt.Errorf("read bucket %s: %w", bucket, err))
				return
			}
			if !yield(Bucket{Path: bucket, Entries: reduceBucket(x.root, recs)}, nil) {
				return
			}
		}
	}
}

// Walk yields the live entry of every key in the index, one bucket at a
// time.
func (x *Index) Walk(ctx context.Context) iter.Seq2[cachetype.Entry, error] {
	return func(yield func(cachetype.Entry, error) bool) {
		for b, err := range x.Buckets(ctx) {
			if err != nil {
				yield(cachetype.Entry{}, err)
				return
			}
			for _, entry := range b.Entries {
				if !yield(entry, nil) {
					return
				}
			}
		}
	}
}

// List collects Walk into a map keyed by entry key.
func (x *Index) List(ctx context.Context) (map[string]cachetype.Entry, error) {
	out := make(map[string]cachetype.Entry)
	for entry, err := range x.Walk(ctx) {
		if err != nil {
			return nil, err
		}
		out[entry.Key] = entry
	}
	return out, nil
}

// reduceBucket keeps the last record per key, dropping keys whose last
// record is a tombstone. Keys appear in first-seen order.
func reduceBucket(root string, recs []Record) []cachetype.Entry {
	latest := make(map[string]Record, len(recs))
	var order []string
	for _, rec := range recs {
		if _, seen := latest[rec.Key]; !seen {
			order = append(order, rec.Key)
		}
		latest[rec.Key] = rec
	}
	out := make([]cachetype.Entry, 0, len(order))
	for _, key := range order {
		rec := latest[key]
		if rec.Integrity.IsZero() {
			continue
		}
		out = append(out, rec.Entry(root))
	}
	return out
}

// buckets yields every bucket file path under the index directory.
func (x *Index) buckets() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		indexDir := pathutil.IndexDir(x.root)
		level1, err := readDirNames(indexDir)
		if err != nil {
			yield("", err)
			return
		}
		for _, a := range level1 {
			dirA := filepath.Join(indexDir, a)
			level2, err := readDirNames(dirA)
			if err != nil {
				yield("", err)
				return
			}
			for _, b := range level2 {
				dirB := filepath.Join(dirA, b)
				files, err := readDirNames(dirB)
				if err != nil {
					yield("", err)
					return
				}
				for _, name := range files {
					if strings.HasPrefix(name, atomicTempPrefix) {
						continue
					}
					if !yield(filepath.Join(dirB, name), nil) {
						return
					}
				}
			}
		}
	}
}

// readDirNames lists dir, treating a missing or non-directory path as empty.
func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names, nil
}
