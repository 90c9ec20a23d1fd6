package integrity

import (
	"errors"
	"io"
)

// ErrMismatch is returned by a VerifyingReader whose stream does not hash to
// the expected integrity.
var ErrMismatch = errors.New("integrity: content does not match expected integrity")

// VerifyingReader passes reads through while hashing them, and checks the
// result against an expected integrity once the underlying reader is
// exhausted. On mismatch the final Read returns ErrMismatch instead of
// io.EOF.
type VerifyingReader struct {
	r        io.Reader
	checker  *Checker
	verified bool
	err      error
}

// NewVerifyingReader wraps r to verify it against expected using the
// strongest algorithm in expected.
func NewVerifyingReader(r io.Reader, expected Integrity) (*VerifyingReader, error) {
	c, err := NewChecker(expected)
	if err != nil {
		return nil, err
	}
	return &VerifyingReader{r: r, checker: c}, nil
}

// Read implements io.Reader.
func (v *VerifyingReader) Read(p []byte) (int, error) {
	if v.err != nil {
		return 0, v.err
	}
	n, err := v.r.Read(p)
	if n > 0 {
		_, _ = v.checker.Write(p[:n]) //nolint:errcheck // hasher writes never fail
	}
	if errors.Is(err, io.EOF) {
		if _, ok := v.checker.Verify(); !ok {
			v.err = ErrMismatch
			return n, ErrMismatch
		}
		v.verified = true
	}
	if err != nil {
		v.err = err
	}
	return n, err
}

// Size returns the number of bytes read so far.
func (v *VerifyingReader) Size() int64 {
	return v.checker.Size()
}

// Sum returns the integrity of the bytes read so far.
func (v *VerifyingReader) Sum() Integrity {
	return v.checker.Sum()
}

// Verified reports whether the stream reached EOF and matched.
func (v *VerifyingReader) Verified() bool {
	return v.verified
}
