package cacache

import "github.com/meigma/cacache/internal/cachetype"

// Sentinel errors. Every error returned by the cache matches one of these
// with errors.Is when it belongs to the corresponding class.
var (
	// ErrNotFound is returned when a key has no live entry or a digest has no
	// local content.
	ErrNotFound = cachetype.ErrNotFound

	// ErrBadSize is returned when a payload does not have the expected size.
	ErrBadSize = cachetype.ErrBadSize

	// ErrChecksumMismatch is returned when bytes about to be written do not
	// match a caller-supplied integrity.
	ErrChecksumMismatch = cachetype.ErrChecksumMismatch

	// ErrIntegrity is returned when stored bytes do not match their digest.
	ErrIntegrity = cachetype.ErrIntegrity

	// ErrEmptyStream is returned when a streaming write receives no data.
	ErrEmptyStream = cachetype.ErrEmptyStream

	// ErrMultipleAlgorithms is returned when a write names more than one
	// hashing algorithm.
	ErrMultipleAlgorithms = cachetype.ErrMultipleAlgorithms

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = cachetype.ErrInvalidKey

	// ErrClosed is returned when a Writer is used after Commit or Discard.
	ErrClosed = cachetype.ErrClosed
)

// Typed errors carrying details about a failure.
type (
	// NotFoundError carries the cache root and the missing key or digest.
	NotFoundError = cachetype.NotFoundError

	// SizeError carries the expected and found sizes.
	SizeError = cachetype.SizeError

	// ChecksumError carries the expected and computed integrity.
	ChecksumError = cachetype.ChecksumError

	// IntegrityError carries the digest and path of corrupt content.
	IntegrityError = cachetype.IntegrityError
)

// Machine-readable error codes returned by [ErrorCode].
const (
	CodeNotFound  = cachetype.CodeNotFound
	CodeBadSize   = cachetype.CodeBadSize
	CodeIntegrity = cachetype.CodeIntegrity
	CodeNoData    = cachetype.CodeNoData
	CodeMisuse    = cachetype.CodeMisuse
	CodeBadIndex  = cachetype.CodeBadIndex
)

// ErrorCode returns the machine-readable code of err, or "" when err did not
// originate in the cache.
func ErrorCode(err error) string {
	return cachetype.Code(err)
}
