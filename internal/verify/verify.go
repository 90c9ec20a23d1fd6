// Package verify implements cache maintenance: a mark-and-sweep collection
// of unreferenced or corrupt content followed by an index rebuild that drops
// entries whose content is gone.
package verify

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creachadair/atomicfile"
	"github.com/creachadair/mds/mapset"
	"golang.org/x/sync/errgroup"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/content"
	"github.com/meigma/cacache/internal/index"
	"github.com/meigma/cacache/internal/pathutil"
	"github.com/meigma/cacache/internal/platform"
)

const (
	// DefaultConcurrency bounds the parallel hashing and bucket rewrites.
	DefaultConcurrency = 20

	markerPerm = 0o644
)

// Filter decides whether an index entry survives a run.
type Filter func(cachetype.Entry) bool

// Verifier runs the maintenance pipeline over one cache root.
type Verifier struct {
	owner       *platform.Owner
	index       *index.Index
	content     *content.Store
	concurrency int
	filter      Filter
	logger      *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithConcurrency sets how many files are hashed, and buckets rewritten, at
// once. Values below 1 use DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(v *Verifier) {
		v.concurrency = n
	}
}

// WithFilter drops index entries for which f returns false; their content
// becomes unreferenced and is collected in the same run.
func WithFilter(f Filter) Option {
	return func(v *Verifier) {
		v.filter = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// New returns a Verifier over the given index and content store, which must
// share owner's root.
func New(owner *platform.Owner, idx *index.Index, store *content.Store, opts ...Option) *Verifier {
	v := &Verifier{
		owner:       owner,
		index:       idx,
		content:     store,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.concurrency < 1 {
		v.concurrency = DefaultConcurrency
	}
	return v
}

func (v *Verifier) log() *slog.Logger {
	if v.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return v.logger
}

type step struct {
	name string
	run  func(context.Context, *Stats) (Stats, error)
}

// Run executes the pipeline: mark start, fix permissions, collect garbage,
// rebuild the index, clean tmp, write the marker, mark end. Problems with
// individual files or entries are counted, not returned; errors mean the
// cache itself could not be processed.
func (v *Verifier) Run(ctx context.Context) (Stats, error) {
	root := v.owner.Root()
	v.log().Info("verify starting", "cache", root)

	steps := []step{
		{"markStartTime", func(_ context.Context, s *Stats) (Stats, error) {
			s.StartTime = time.Now()
			return Stats{}, nil
		}},
		{"fixPerms", v.fixPerms},
		{"garbageCollect", v.garbageCollect},
		{"rebuildIndex", v.rebuildIndex},
		{"cleanTmp", v.cleanTmp},
		{"writeVerifile", v.writeVerifile},
		{"markEndTime", func(_ context.Context, s *Stats) (Stats, error) {
			s.EndTime = time.Now()
			return Stats{}, nil
		}},
	}

	stats := Stats{RunTime: make(map[string]time.Duration, len(steps)+1)}
	for _, st := range steps {
		start := time.Now()
		got, err := st.run(ctx, &stats)
		if err != nil {
			return stats, fmt.Errorf("verify %s: %w", st.name, err)
		}
		stats.add(got)
		elapsed := time.Since(start)
		stats.RunTime[st.name] = elapsed
		v.log().Debug("verify step done", "step", st.name, "elapsed", elapsed)
	}
	stats.RunTime["total"] = stats.EndTime.Sub(stats.StartTime)

	v.log().Info("verify finished",
		"cache", root,
		"verified", stats.VerifiedContent,
		"reclaimed", stats.ReclaimedCount,
		"reclaimedSize", stats.ReclaimedSize,
		"badContent", stats.BadContentCount,
		"missingContent", stats.MissingContent,
		"entries", stats.TotalEntries,
		"elapsed", stats.RunTime["total"],
	)
	return stats, nil
}

func (v *Verifier) fixPerms(context.Context, *Stats) (Stats, error) {
	_, err := v.owner.MkdirFix(v.owner.Root())
	return Stats{}, err
}

// liveKey identifies a hash in the live set regardless of options.
func liveKey(h integrity.Hash) string {
	return h.Algorithm + "-" + h.Digest
}

func (v *Verifier) keep(e cachetype.Entry) bool {
	return v.filter == nil || v.filter(e)
}

func (v *Verifier) garbageCollect(ctx context.Context, _ *Stats) (Stats, error) {
	live := mapset.New[string]()
	for entry, err := range v.index.Walk(ctx) {
		if err != nil {
			return Stats{}, err
		}
		if !v.keep(entry) {
			continue
		}
		for _, h := range entry.Integrity.Hashes() {
			live.Add(liveKey(h))
		}
	}

	files, err := contentFiles(pathutil.ContentDir(v.owner.Root()))
	if err != nil {
		return Stats{}, err
	}

	var (
		mu    sync.Mutex
		stats Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for _, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			got, err := v.sweep(path, live)
			if err != nil {
				return err
			}
			mu.Lock()
			stats.add(got)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// sweep verifies a live content file or deletes an unreferenced one.
func (v *Verifier) sweep(path string, live mapset.Set[string]) (Stats, error) {
	h, ok := pathutil.HashFromPath(v.owner.Root(), path)
	if ok && live.Has(liveKey(h)) {
		size, valid, err := v.verifyContent(path, h)
		if err != nil {
			return Stats{}, err
		}
		if !valid {
			return Stats{ReclaimedCount: 1, BadContentCount: 1, ReclaimedSize: size}, nil
		}
		return Stats{VerifiedContent: 1, KeptSize: size}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		if platform.IsBenignRace(err) {
			return Stats{}, nil
		}
		return Stats{}, err
	}
	if err := os.RemoveAll(path); err != nil {
		return Stats{}, err
	}
	v.log().Debug("reclaimed unreferenced content", "path", path, "size", info.Size())
	return Stats{ReclaimedCount: 1, ReclaimedSize: info.Size()}, nil
}

// verifyContent hashes path against h, deleting the file when it does not
// match. A file that vanished counts as invalid with size zero.
func (v *Verifier) verifyContent(path string, h integrity.Hash) (int64, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if platform.IsBenignRace(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	ok, err := v.content.CheckFile(path, h)
	switch {
	case err != nil && platform.IsBenignRace(err):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	case ok:
		return info.Size(), true, nil
	}
	if err := os.RemoveAll(path); err != nil {
		return 0, false, err
	}
	v.log().Debug("reclaimed corrupt content", "path", path, "integrity", h.String())
	return info.Size(), false, nil
}

// contentFiles lists every regular file below dir; a missing dir is empty.
func contentFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if platform.IsBenignRace(err) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (v *Verifier) rebuildIndex(ctx context.Context, _ *Stats) (Stats, error) {
	var (
		mu    sync.Mutex
		stats Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for bucket, err := range v.index.Buckets(gctx) {
		if err != nil {
			if werr := g.Wait(); werr != nil {
				return Stats{}, werr
			}
			return Stats{}, err
		}
		kept := make([]cachetype.Entry, 0, len(bucket.Entries))
		rejected := 0
		for _, entry := range bucket.Entries {
			if !v.keep(entry) {
				rejected++
				continue
			}
			kept = append(kept, entry)
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			got, err := v.rebuildBucket(bucket.Path, kept)
			if err != nil {
				return err
			}
			got.RejectedEntries += rejected
			mu.Lock()
			stats.add(got)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// rebuildBucket rewrites bucket with the entries whose content still
// exists, keeping their order and timestamps. Concurrent inserts into the same
// bucket during the rewrite may be lost.
func (v *Verifier) rebuildBucket(bucket string, entries []cachetype.Entry) (Stats, error) {
	var stats Stats
	kept := make([]cachetype.Entry, 0, len(entries))
	for _, e := range entries {
		if _, err := os.Stat(e.Path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return Stats{}, err
			}
			stats.RejectedEntries++
			stats.MissingContent++
			continue
		}
		kept = append(kept, e)
		stats.TotalEntries++
	}
	if err := v.index.RewriteBucket(bucket, kept); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (v *Verifier) cleanTmp(context.Context, *Stats) (Stats, error) {
	v.log().Debug("cleaning tmp directory")
	return Stats{}, os.RemoveAll(pathutil.TmpDir(v.owner.Root()))
}

func (v *Verifier) writeVerifile(context.Context, *Stats) (Stats, error) {
	path := pathutil.VerifiedFile(v.owner.Root())
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := atomicfile.WriteData(path, []byte(stamp), markerPerm); err != nil {
		return Stats{}, err
	}
	return Stats{}, v.owner.Chownr(path)
}

// LastRun returns when verify last completed for the cache at root.
func LastRun(root string) (time.Time, error) {
	path := pathutil.VerifiedFile(root)
	data, err := os.ReadFile(path) //nolint:gosec // fixed name under the cache root
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, &cachetype.NotFoundError{Cache: root, Err: err}
		}
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return time.UnixMilli(ms), nil
}
