package integrity

import (
	"crypto/sha1" //nolint:gosec // sha1 is accepted for reading legacy integrity values, never chosen by default
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"hash"
	"slices"

	digest "github.com/opencontainers/go-digest"
	"github.com/zeebo/blake3"
)

// Supported algorithm names, as they appear in integrity strings.
const (
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA384 = "sha384"
	SHA512 = "sha512"
	BLAKE3 = "blake3"

	// Default is the algorithm used for writes when none is requested.
	Default = SHA512
)

// priority orders algorithms from weakest to strongest.
var priority = []string{SHA1, SHA256, BLAKE3, SHA384, SHA512}

// Supported reports whether alg can be computed and verified.
func Supported(alg string) bool {
	return slices.Contains(priority, alg)
}

// Algorithms returns the supported algorithm names, weakest first.
func Algorithms() []string {
	return slices.Clone(priority)
}

// strength ranks alg; unsupported algorithms rank below every supported one.
func strength(alg string) int {
	return slices.Index(priority, alg)
}

// Stronger reports whether a is a stronger algorithm than b.
func Stronger(a, b string) bool {
	return strength(a) > strength(b)
}

// NewHash returns a fresh hash.Hash for alg.
func NewHash(alg string) (hash.Hash, error) {
	switch alg {
	case SHA256, SHA384, SHA512:
		a := digest.Algorithm(alg)
		if !a.Available() {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, alg)
		}
		return a.Hash(), nil
	case SHA1:
		return sha1.New(), nil //nolint:gosec // see import note
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}
