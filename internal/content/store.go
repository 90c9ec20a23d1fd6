// Package content implements the content-addressed half of the cache: bytes
// are written once under a path derived from their digest and verified
// against that digest on every read.
package content

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/pathutil"
	"github.com/meigma/cacache/internal/platform"
)

const (
	defaultFilePerm = 0o644

	// LargeObjectThreshold is the size above which reads hash the file while
	// streaming it instead of reading it whole first.
	LargeObjectThreshold = 64 << 20
)

// Store reads and writes the content subtree of one cache root.
// It is safe for concurrent use.
type Store struct {
	root      string
	owner     *platform.Owner
	filePerm  fs.FileMode
	algorithm string
	large     int64
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithFilePerm sets the mode of newly written content files.
func WithFilePerm(mode fs.FileMode) Option {
	return func(s *Store) {
		s.filePerm = mode
	}
}

// WithAlgorithm sets the hashing algorithm used when a write does not name
// one.
func WithAlgorithm(alg string) Option {
	return func(s *Store) {
		s.algorithm = alg
	}
}

// WithLargeObjectThreshold sets the size above which reads hash while
// streaming. Defaults to LargeObjectThreshold.
func WithLargeObjectThreshold(n int64) Option {
	return func(s *Store) {
		s.large = n
	}
}

// New returns a Store for the cache managed by owner.
func New(owner *platform.Owner, opts ...Option) *Store {
	s := &Store{
		root:      owner.Root(),
		owner:     owner,
		filePerm:  defaultFilePerm,
		algorithm: integrity.Default,
		large:     LargeObjectThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Root returns the cache root.
func (s *Store) Root() string {
	return s.root
}

// Info describes content present on disk.
type Info struct {
	// Integrity is the single hash whose file was found.
	Integrity integrity.Integrity
	Size      int64
	Path      string
}

// Result is the outcome of a successful write.
type Result struct {
	Integrity integrity.Integrity
	Size      int64
}

// createTemp opens a new uniquely named file in the cache's tmp directory.
func (s *Store) createTemp() (*os.File, error) {
	dir := pathutil.TmpDir(s.root)
	if _, err := s.owner.MkdirFix(dir); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, uuid.NewString())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, s.filePerm) //nolint:gosec // path is a fresh uuid under the cache root
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// publish moves a completed temp file to the content path for sri.
func (s *Store) publish(tmp string, sri integrity.Integrity) error {
	dest, err := pathutil.ContentPath(s.root, sri)
	if err != nil {
		return err
	}
	if _, err := s.owner.MkdirFix(filepath.Dir(dest)); err != nil {
		return err
	}
	if err := platform.MoveIntoPlace(tmp, dest); err != nil {
		return fmt.Errorf("publish %s: %w", sri.String(), err)
	}
	return s.owner.Chownr(dest)
}

// candidates lists the hashes of sri to try on reads, strongest algorithm
// first and in written order within an algorithm.
func candidates(sri integrity.Integrity) []integrity.Hash {
	algs := sri.Algorithms()
	slices.SortStableFunc(algs, func(a, b string) int {
		switch {
		case integrity.Stronger(a, b):
			return -1
		case integrity.Stronger(b, a):
			return 1
		}
		return 0
	})
	var out []integrity.Hash
	for _, a := range algs {
		out = append(out, sri.HashesFor(a)...)
	}
	return out
}

// firstAvailable calls fn with each candidate hash of sri and its content
// path under root until one succeeds. When all fail it returns a non-ENOENT
// error if any occurred, and an ENOENT error otherwise.
func firstAvailable[T any](root string, sri integrity.Integrity, fn func(h integrity.Hash, path string) (T, error)) (T, error) {
	var zero T
	hashes := candidates(sri)
	if len(hashes) == 0 {
		return zero, integrity.ErrInvalid
	}
	var notFound, other error
	for _, h := range hashes {
		path, err := pathutil.HashPath(root, h)
		if err == nil {
			var v T
			v, err = fn(h, path)
			if err == nil {
				return v, nil
			}
		}
		if errors.Is(err, fs.ErrNotExist) {
			if notFound == nil {
				notFound = err
			}
		} else if other == nil {
			other = err
		}
	}
	if other != nil {
		return zero, other
	}
	return zero, notFound
}
