package index

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/creachadair/atomicfile"

	"github.com/meigma/cacache/internal/cachetype"
)

// MatchFunc reports whether an older candidate entry belongs to the same
// logical record as an entry already kept. kept is always newer than
// candidate.
type MatchFunc func(kept, candidate cachetype.Entry) bool

// CompactOptions tune Compact.
type CompactOptions struct {
	// Validate, when set, decides which entries may be kept at all. Without
	// it, compaction stops at the newest tombstone and drops everything
	// older.
	Validate func(cachetype.Entry) bool
}

// Compact rewrites key's bucket keeping, for each class of entries that
// match considers equal, only the newest one. Kept entries retain their
// original relative order. The rewrite replaces the bucket atomically, but
// the read-rewrite sequence is not safe against concurrent inserts into the
// same bucket; such inserts may be lost. A key with no bucket is left
// untouched.
func (x *Index) Compact(key string, match MatchFunc, opts CompactOptions) ([]cachetype.Entry, error) {
	bucket := x.BucketPath(key)
	recs, err := x.BucketEntries(bucket)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("compact %q: %w", key, err)
	}

	var kept []Record
	var keptEntries []cachetype.Entry
	for i := len(recs) - 1; i >= 0; i-- {
		rec := recs[i]
		if rec.Integrity.IsZero() && opts.Validate == nil {
			break
		}
		entry := rec.Entry(x.root)
		if opts.Validate != nil && !opts.Validate(entry) {
			continue
		}
		if slices.ContainsFunc(keptEntries, func(k cachetype.Entry) bool { return match(k, entry) }) {
			continue
		}
		kept = append(kept, rec)
		keptEntries = append(keptEntries, entry)
	}
	slices.Reverse(kept)
	slices.Reverse(keptEntries)

	if err := x.rewrite(bucket, kept); err != nil {
		return nil, fmt.Errorf("compact %q: %w", key, err)
	}
	return keptEntries, nil
}

// rewrite atomically replaces bucket with recs.
func (x *Index) rewrite(bucket string, recs []Record) error {
	if _, err := x.owner.MkdirFix(filepath.Dir(bucket)); err != nil {
		return err
	}
	err := atomicfile.Tx(bucket, x.filePerm, func(f *atomicfile.File) error {
		for _, rec := range recs {
			line, err := encodeLine(rec)
			if err != nil {
				return err
			}
			if _, err := f.Write(line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return x.owner.Chownr(bucket)
}

// RewriteBucket atomically replaces bucket with entries, in order. An empty
// entries slice leaves an empty bucket file behind.
func (x *Index) RewriteBucket(bucket string, entries []cachetype.Entry) error {
	recs := make([]Record, len(entries))
	for i, e := range entries {
		recs[i] = recordFromEntry(e)
	}
	if err := x.rewrite(bucket, recs); err != nil {
		return fmt.Errorf("rewrite bucket %s: %w", bucket, err)
	}
	return nil
}
