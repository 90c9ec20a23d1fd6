package content

import (
	"errors"
	"fmt"
	"os"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
)

// WriteOptions constrain a write.
type WriteOptions struct {
	// Algorithms names the hashing algorithm to use. At most one is allowed;
	// empty means the store default.
	Algorithms []string
	// Size is the expected byte count; zero means unchecked.
	Size int64
	// Integrity, when set, is verified against the bytes before publishing.
	Integrity integrity.Integrity
}

func (s *Store) writeAlgorithm(opts WriteOptions) (string, error) {
	switch len(opts.Algorithms) {
	case 0:
		return s.algorithm, nil
	case 1:
		return opts.Algorithms[0], nil
	default:
		return "", cachetype.ErrMultipleAlgorithms
	}
}

// check validates a completed payload of size bytes against opts. expectedSum
// must include the strongest algorithm of opts.Integrity.
func check(opts WriteOptions, size int64, expectedSum integrity.Integrity) error {
	if opts.Size != 0 && opts.Size != size {
		return &cachetype.SizeError{Expected: opts.Size, Found: size}
	}
	if want, ok := opts.Integrity.PickAlgorithm(); ok {
		found := integrity.New(expectedSum.HashesFor(want)...)
		if _, ok := opts.Integrity.Match(found); !ok {
			return &cachetype.ChecksumError{Expected: opts.Integrity, Found: found}
		}
	}
	return nil
}

// expectedAlgorithms returns the algorithms a Hasher must compute to produce
// the written integrity (alg) and to check opts.Integrity.
func expectedAlgorithms(alg string, opts WriteOptions) []string {
	algs := []string{alg}
	if want, ok := opts.Integrity.PickAlgorithm(); ok && want != alg {
		algs = append(algs, want)
	}
	return algs
}

// split separates a Hasher sum into the written integrity (first algorithm)
// and the full sum used for checking.
func split(sum integrity.Integrity) integrity.Integrity {
	return integrity.New(sum.Hashes()[0])
}

// Write stores data and returns its integrity. Writing bytes that are already
// present is a no-op publish, not an error.
func (s *Store) Write(data []byte, opts WriteOptions) (Result, error) {
	alg, err := s.writeAlgorithm(opts)
	if err != nil {
		return Result{}, err
	}
	size := int64(len(data))
	sum, err := integrity.FromBytes(data, expectedAlgorithms(alg, opts)...)
	if err != nil {
		return Result{}, err
	}
	if err := check(opts, size, sum); err != nil {
		return Result{}, err
	}
	sri := split(sum)

	f, err := s.createTemp()
	if err != nil {
		return Result{}, err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		removeTemp(tmp)
		return Result{}, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		removeTemp(tmp)
		return Result{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := s.publish(tmp, sri); err != nil {
		removeTemp(tmp)
		return Result{}, err
	}
	s.log().Debug("wrote content", "integrity", sri.String(), "size", size)
	return Result{Integrity: sri, Size: size}, nil
}

// Writer is a streaming content write. Bytes are hashed as they are written
// to a temp file; nothing is published until Commit succeeds.
type Writer struct {
	s      *Store
	opts   WriteOptions
	f      *os.File
	hasher *integrity.Hasher
	closed bool
}

// NewWriter starts a streaming write. The caller must call Commit or
// Discard.
func (s *Store) NewWriter(opts WriteOptions) (*Writer, error) {
	alg, err := s.writeAlgorithm(opts)
	if err != nil {
		return nil, err
	}
	h, err := integrity.NewHasher(expectedAlgorithms(alg, opts)...)
	if err != nil {
		return nil, err
	}
	f, err := s.createTemp()
	if err != nil {
		return nil, err
	}
	return &Writer{s: s, opts: opts, f: f, hasher: h}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, cachetype.ErrClosed
	}
	n, err := w.f.Write(p)
	_, _ = w.hasher.Write(p[:n]) //nolint:errcheck // hasher writes never fail
	return n, err
}

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	return w.hasher.Size()
}

// Commit verifies what was written and publishes it. The temp file is
// removed on every failure path.
func (w *Writer) Commit() (Result, error) {
	if w.closed {
		return Result{}, cachetype.ErrClosed
	}
	w.closed = true
	tmp := w.f.Name()
	if err := w.f.Close(); err != nil {
		removeTemp(tmp)
		return Result{}, fmt.Errorf("close temp file: %w", err)
	}
	size := w.hasher.Size()
	if size == 0 {
		removeTemp(tmp)
		return Result{}, cachetype.ErrEmptyStream
	}
	sum := w.hasher.Sum()
	if err := check(w.opts, size, sum); err != nil {
		removeTemp(tmp)
		return Result{}, err
	}
	sri := split(sum)
	if err := w.s.publish(tmp, sri); err != nil {
		removeTemp(tmp)
		return Result{}, err
	}
	w.s.log().Debug("wrote content stream", "integrity", sri.String(), "size", size)
	return Result{Integrity: sri, Size: size}, nil
}

// Discard abandons the write. It is safe to call after Commit.
func (w *Writer) Discard() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.f.Close()
	if err := os.Remove(w.f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func removeTemp(path string) {
	_ = os.Remove(path)
}
