package cachetype

import (
	"errors"
	"fmt"

	"github.com/meigma/cacache/integrity"
)

// Machine-readable error codes. They are stable across releases and are the
// intended way for callers to branch on failure kind.
const (
	CodeNotFound  = "ENOENT"
	CodeBadSize   = "EBADSIZE"
	CodeIntegrity = "EINTEGRITY"
	CodeNoData    = "ENODATA"
	CodeMisuse    = "EMISUSE"
	CodeBadIndex  = "EBADINDEX"
)

// Coder is implemented by every error this module returns across its API.
type Coder interface {
	Code() string
}

// Code returns the machine-readable code carried by err or any error it
// wraps, or "" when there is none.
func Code(err error) string {
	var c Coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

type codedError struct {
	code string
	msg  string
}

func (e *codedError) Error() string { return e.msg }
func (e *codedError) Code() string  { return e.code }

// Sentinel errors. Typed errors below match them via errors.Is.
var (
	// ErrNotFound is returned when a key has no live entry or a digest has no
	// local content.
	ErrNotFound error = &codedError{CodeNotFound, "cacache: not found"}

	// ErrBadSize is returned when an expected size does not match the actual
	// byte count.
	ErrBadSize error = &codedError{CodeBadSize, "cacache: bad data size"}

	// ErrChecksumMismatch is returned when data about to be written does not
	// match a caller-supplied integrity.
	ErrChecksumMismatch error = &codedError{CodeIntegrity, "cacache: integrity checksum failed"}

	// ErrIntegrity is returned when stored content does not hash to its digest.
	ErrIntegrity error = &codedError{CodeIntegrity, "cacache: integrity verification failed"}

	// ErrEmptyStream is returned when a streaming write receives no data.
	ErrEmptyStream error = &codedError{CodeNoData, "cacache: input stream was empty"}

	// ErrMultipleAlgorithms is returned when more than one algorithm is
	// requested for a single write.
	ErrMultipleAlgorithms error = &codedError{CodeMisuse, "cacache: only a single write algorithm is supported"}

	// ErrInvalidKey is returned for keys the index cannot store.
	ErrInvalidKey error = &codedError{CodeBadIndex, "cacache: invalid key"}

	// ErrClosed is returned when a streaming writer is used after Commit or
	// Discard.
	ErrClosed error = &codedError{CodeMisuse, "cacache: writer already closed"}
)

// NotFoundError reports a missing key or missing content.
type NotFoundError struct {
	Cache     string
	Key       string
	Integrity string
	// Err is the underlying filesystem error, if any.
	Err error
}

func (e *NotFoundError) Error() string {
	switch {
	case e.Key != "":
		return fmt.Sprintf("cacache: no cache entry for %s found in %s", e.Key, e.Cache)
	case e.Integrity != "":
		return fmt.Sprintf("cacache: no matching content found for %s in %s", e.Integrity, e.Cache)
	default:
		return fmt.Sprintf("cacache: not found in %s", e.Cache)
	}
}

// Code implements Coder.
func (e *NotFoundError) Code() string { return CodeNotFound }

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Unwrap returns the underlying filesystem error.
func (e *NotFoundError) Unwrap() error { return e.Err }

// SizeError reports a size mismatch.
type SizeError struct {
	Expected int64
	Found    int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("cacache: bad data size: expected inserted data to be %d bytes, but got %d instead", e.Expected, e.Found)
}

// Code implements Coder.
func (e *SizeError) Code() string { return CodeBadSize }

// Is matches ErrBadSize.
func (e *SizeError) Is(target error) bool { return target == ErrBadSize }

// ChecksumError reports that data did not match its expected integrity
// before being written.
type ChecksumError struct {
	Expected integrity.Integrity
	Found    integrity.Integrity
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("cacache: integrity check failed: wanted %s but got %s", e.Expected, e.Found)
}

// Code implements Coder.
func (e *ChecksumError) Code() string { return CodeIntegrity }

// Is matches ErrChecksumMismatch.
func (e *ChecksumError) Is(target error) bool { return target == ErrChecksumMismatch }

// IntegrityError reports stored content that failed verification.
type IntegrityError struct {
	Integrity integrity.Integrity
	Path      string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("cacache: integrity verification failed for %s (%s)", e.Integrity, e.Path)
}

// Code implements Coder.
func (e *IntegrityError) Code() string { return CodeIntegrity }

// Is matches ErrIntegrity.
func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }
