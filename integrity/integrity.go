// Package integrity computes, parses, and verifies multi-algorithm content
// digests in the Subresource Integrity textual form.
//
// An integrity value holds one or more algorithm-tagged hashes of the same
// content, serialized as whitespace-separated tokens:
//
//	sha512-<base64> sha256-<base64>?opt
//
// Values are immutable; every method returns copies.
package integrity

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	digest "github.com/opencontainers/go-digest"
)

var (
	// ErrInvalid is returned when a string holds no usable integrity tokens.
	ErrInvalid = errors.New("integrity: no valid hashes")

	// ErrUnsupportedAlgorithm is returned when an algorithm cannot be computed.
	ErrUnsupportedAlgorithm = errors.New("integrity: unsupported algorithm")
)

var tokenPattern = regexp.MustCompile(`^([a-z0-9]+)-([^?]+)((?:\?[\x21-\x7e]*)*)$`)

// Hash is a single algorithm-tagged digest.
type Hash struct {
	// Algorithm is the hash algorithm name, e.g. "sha512".
	Algorithm string
	// Digest is the standard base64 encoding of the raw hash.
	Digest string
	// Options are the "?"-separated suffixes carried by the token, if any.
	Options []string
}

// String returns the token form: algo-digest[?opt...].
func (h Hash) String() string {
	var b strings.Builder
	b.WriteString(h.Algorithm)
	b.WriteByte('-')
	b.WriteString(h.Digest)
	for _, opt := range h.Options {
		b.WriteByte('?')
		b.WriteString(opt)
	}
	return b.String()
}

// Sum returns the raw hash bytes.
func (h Hash) Sum() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(h.Digest)
	if err != nil {
		return nil, fmt.Errorf("integrity: decode %s digest: %w", h.Algorithm, err)
	}
	return raw, nil
}

// Hex returns the hex encoding of the raw hash.
func (h Hash) Hex() (string, error) {
	d, err := h.OCIDigest()
	if err != nil {
		return "", err
	}
	return d.Encoded(), nil
}

// OCIDigest converts the hash into its "algorithm:hex" form.
func (h Hash) OCIDigest() (digest.Digest, error) {
	raw, err := h.Sum()
	if err != nil {
		return "", err
	}
	return digest.NewDigestFromBytes(digest.Algorithm(h.Algorithm), raw), nil
}

// Integrity returns a value holding only h.
func (h Hash) Integrity() Integrity {
	return Integrity{hashes: []Hash{h}}
}

// FromOCIDigest converts an "algorithm:hex" digest into a Hash.
func FromOCIDigest(d digest.Digest) (Hash, error) {
	if err := d.Validate(); err != nil && !errors.Is(err, digest.ErrDigestUnsupported) {
		return Hash{}, fmt.Errorf("integrity: %w", err)
	}
	alg := d.Algorithm().String()
	if !Supported(alg) {
		return Hash{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	return FromHex(alg, d.Encoded())
}

// FromHex builds a Hash from an algorithm name and a hex-encoded digest.
func FromHex(alg, hexDigest string) (Hash, error) {
	raw, err := hex.DecodeString(hexDigest)
	if err != nil {
		return Hash{}, fmt.Errorf("integrity: decode hex: %w", err)
	}
	return Hash{Algorithm: alg, Digest: base64.StdEncoding.EncodeToString(raw)}, nil
}

// Integrity is an ordered set of hashes describing one piece of content.
// The zero value holds no hashes; an index entry with a zero integrity is a
// tombstone.
type Integrity struct {
	hashes []Hash
}

// New returns an Integrity holding hashes in order.
func New(hashes ...Hash) Integrity {
	if len(hashes) == 0 {
		return Integrity{}
	}
	out := make([]Hash, len(hashes))
	copy(out, hashes)
	return Integrity{hashes: out}
}

// Parse reads the textual form. Tokens that are malformed or name an
// unsupported algorithm are skipped; ErrInvalid is returned only when
// nothing usable remains.
func Parse(s string) (Integrity, error) {
	var hashes []Hash
	for _, tok := range strings.Fields(s) {
		h, ok := parseToken(tok)
		if !ok {
			continue
		}
		hashes = append(hashes, h)
	}
	if len(hashes) == 0 {
		return Integrity{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	return Integrity{hashes: hashes}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Integrity {
	sri, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sri
}

func parseToken(tok string) (Hash, bool) {
	m := tokenPattern.FindStringSubmatch(tok)
	if m == nil || !Supported(m[1]) {
		return Hash{}, false
	}
	if _, err := base64.StdEncoding.DecodeString(m[2]); err != nil {
		return Hash{}, false
	}
	h := Hash{Algorithm: m[1], Digest: m[2]}
	if m[3] != "" {
		h.Options = strings.Split(m[3][1:], "?")
	}
	return h, true
}

// String returns the whitespace-separated token form, preserving order.
func (i Integrity) String() string {
	parts := make([]string, len(i.hashes))
	for n, h := range i.hashes {
		parts[n] = h.String()
	}
	return strings.Join(parts, " ")
}

// IsZero reports whether i holds no hashes.
func (i Integrity) IsZero() bool {
	return len(i.hashes) == 0
}

// Hashes returns a copy of the hashes in order.
func (i Integrity) Hashes() []Hash {
	out := make([]Hash, len(i.hashes))
	copy(out, i.hashes)
	return out
}

// Algorithms returns the distinct algorithms present, in first-seen order.
func (i Integrity) Algorithms() []string {
	var algs []string
	seen := make(map[string]struct{}, len(i.hashes))
	for _, h := range i.hashes {
		if _, ok := seen[h.Algorithm]; ok {
			continue
		}
		seen[h.Algorithm] = struct{}{}
		algs = append(algs, h.Algorithm)
	}
	return algs
}

// HashesFor returns the hashes computed with alg.
func (i Integrity) HashesFor(alg string) []Hash {
	var out []Hash
	for _, h := range i.hashes {
		if h.Algorithm == alg {
			out = append(out, h)
		}
	}
	return out
}

// PickAlgorithm returns the strongest algorithm present.
func (i Integrity) PickAlgorithm() (string, bool) {
	best := ""
	for _, h := range i.hashes {
		if best == "" || Stronger(h.Algorithm, best) {
			best = h.Algorithm
		}
	}
	return best, best != ""
}

// Pick returns the first hash of the strongest algorithm present.
func (i Integrity) Pick() (Hash, bool) {
	alg, ok := i.PickAlgorithm()
	if !ok {
		return Hash{}, false
	}
	return i.HashesFor(alg)[0], true
}

// Match returns the first hash of i that also appears in other under the
// strongest algorithm they share.
func (i Integrity) Match(other Integrity) (Hash, bool) {
	alg := ""
	for _, a := range i.Algorithms() {
		if len(other.HashesFor(a)) == 0 {
			continue
		}
		if alg == "" || Stronger(a, alg) {
			alg = a
		}
	}
	if alg == "" {
		return Hash{}, false
	}
	for _, h := range i.HashesFor(alg) {
		for _, o := range other.HashesFor(alg) {
			if h.Digest == o.Digest {
				return h, true
			}
		}
	}
	return Hash{}, false
}

// Equal reports whether i and other serialize identically.
func (i Integrity) Equal(other Integrity) bool {
	return i.String() == other.String()
}

// MarshalJSON encodes i as a string, or null when zero.
func (i Integrity) MarshalJSON() ([]byte, error) {
	if i.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(i.String())
}

// UnmarshalJSON decodes a string or null.
func (i *Integrity) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*i = Integrity{}
		return nil
	}
	parsed, err := Parse(*s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
