// Package pathutil maps digests and keys onto the sharded on-disk layout of a
// cache root.
//
//	<root>/content-v2/<algo>/<xx>/<yy>/<rest>   content files
//	<root>/index-v5/<xx>/<yy>/<rest>            index buckets
//	<root>/tmp/                                 transient write targets
//	<root>/_lastverified                        last verify marker
package pathutil

import (
	"crypto/sha1" //nolint:gosec // line checksums only need to detect torn writes
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/meigma/cacache/integrity"
)

const (
	// ContentVersion is the on-disk content format version.
	ContentVersion = "2"
	// IndexVersion is the on-disk index format version.
	IndexVersion = "5"

	shardWidth = 2

	tmpDirName       = "tmp"
	verifiedFileName = "_lastverified"
)

// ErrEmptyDigest is returned when a path is requested for an integrity with
// no hashes.
var ErrEmptyDigest = errors.New("pathutil: integrity has no hashes")

// Shard splits a hex string into fan-out segments: the first two characters,
// the next two, and the remainder. Short inputs yield fewer segments.
func Shard(hexStr string) []string {
	var parts []string
	rest := hexStr
	for range 2 {
		if len(rest) <= shardWidth {
			break
		}
		parts = append(parts, rest[:shardWidth])
		rest = rest[shardWidth:]
	}
	return append(parts, rest)
}

// ContentDir returns the versioned content subtree of root.
func ContentDir(root string) string {
	return filepath.Join(root, "content-v"+ContentVersion)
}

// IndexDir returns the versioned index subtree of root.
func IndexDir(root string) string {
	return filepath.Join(root, "index-v"+IndexVersion)
}

// TmpDir returns the temporary files directory of root.
func TmpDir(root string) string {
	return filepath.Join(root, tmpDirName)
}

// VerifiedFile returns the path of the last-verified marker.
func VerifiedFile(root string) string {
	return filepath.Join(root, verifiedFileName)
}

// ContentPath returns the content path for the strongest hash in sri.
func ContentPath(root string, sri integrity.Integrity) (string, error) {
	h, ok := sri.Pick()
	if !ok {
		return "", ErrEmptyDigest
	}
	return HashPath(root, h)
}

// HashPath returns the content path for a single hash.
func HashPath(root string, h integrity.Hash) (string, error) {
	hexDigest, err := h.Hex()
	if err != nil {
		return "", fmt.Errorf("content path: %w", err)
	}
	if hexDigest == "" || strings.ContainsAny(h.Algorithm, `/\.`) {
		return "", fmt.Errorf("content path: malformed hash %q", h.String())
	}
	parts := append([]string{ContentDir(root), h.Algorithm}, Shard(hexDigest)...)
	return filepath.Join(parts...), nil
}

// HashFromPath reconstructs the hash implied by a content path under root.
// It reports false for paths that do not follow the content layout.
func HashFromPath(root, path string) (integrity.Hash, bool) {
	rel, err := filepath.Rel(ContentDir(root), path)
	if err != nil {
		return integrity.Hash{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 || parts[0] == ".." {
		return integrity.Hash{}, false
	}
	alg := parts[0]
	if !integrity.Supported(alg) {
		return integrity.Hash{}, false
	}
	h, err := integrity.FromHex(alg, strings.Join(parts[1:], ""))
	if err != nil {
		return integrity.Hash{}, false
	}
	return h, true
}

// HashKey returns the hex SHA-256 of an index key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// HashEntry returns the hex SHA-1 checksum of a serialized index entry.
func HashEntry(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec // see import note
	return hex.EncodeToString(sum[:])
}

// BucketPath returns the index bucket path for key.
func BucketPath(root, key string) string {
	return BucketPathForHash(root, HashKey(key))
}

// BucketPathForHash returns the index bucket path for an already hashed key.
func BucketPathForHash(root, hashed string) string {
	return filepath.Join(append([]string{IndexDir(root)}, Shard(hashed)...)...)
}
