package integrity

import (
	"bytes"
	"fmt"
	"io"
)

// FromBytes computes the integrity of data for each of algs (Default when
// none are given).
func FromBytes(data []byte, algs ...string) (Integrity, error) {
	h, err := NewHasher(algs...)
	if err != nil {
		return Integrity{}, err
	}
	_, _ = h.Write(data) //nolint:errcheck // hasher writes never fail
	return h.Sum(), nil
}

// FromReader computes the integrity of everything in r, returning the
// number of bytes read.
func FromReader(r io.Reader, algs ...string) (Integrity, int64, error) {
	h, err := NewHasher(algs...)
	if err != nil {
		return Integrity{}, 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return Integrity{}, n, err
	}
	return h.Sum(), n, nil
}

// CheckBytes hashes data with the strongest algorithm in sri and returns the
// matching hash of sri, if any.
func CheckBytes(data []byte, sri Integrity) (Hash, bool) {
	h, ok := checkWith(bytes.NewReader(data), sri)
	return h, ok
}

// CheckReader is like CheckBytes for a stream. Read errors are returned as-is;
// a mismatch is reported as ok == false with a nil error.
func CheckReader(r io.Reader, sri Integrity) (Hash, bool, error) {
	alg, ok := sri.PickAlgorithm()
	if !ok {
		return Hash{}, false, ErrInvalid
	}
	found, _, err := FromReader(r, alg)
	if err != nil {
		return Hash{}, false, err
	}
	h, ok := sri.Match(found)
	return h, ok, nil
}

func checkWith(r io.Reader, sri Integrity) (Hash, bool) {
	h, ok, err := CheckReader(r, sri)
	if err != nil {
		return Hash{}, false
	}
	return h, ok
}

// Checker verifies a stream incrementally against an expected integrity using
// its strongest algorithm.
type Checker struct {
	expected Integrity
	hasher   *Hasher
}

// NewChecker returns a Checker for expected.
func NewChecker(expected Integrity) (*Checker, error) {
	alg, ok := expected.PickAlgorithm()
	if !ok {
		return nil, ErrInvalid
	}
	h, err := NewHasher(alg)
	if err != nil {
		return nil, fmt.Errorf("integrity: checker: %w", err)
	}
	return &Checker{expected: expected, hasher: h}, nil
}

// Write implements io.Writer.
func (c *Checker) Write(p []byte) (int, error) {
	return c.hasher.Write(p)
}

// Size returns the number of bytes checked so far.
func (c *Checker) Size() int64 {
	return c.hasher.Size()
}

// Sum returns the integrity computed so far.
func (c *Checker) Sum() Integrity {
	return c.hasher.Sum()
}

// Verify reports whether the bytes written so far match the expected value.
func (c *Checker) Verify() (Hash, bool) {
	return c.expected.Match(c.hasher.Sum())
}
