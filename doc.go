// Package cacache provides a content-addressable disk cache.
//
// Content is stored once under a digest of its bytes, and any number of
// string keys can point at a digest together with a small metadata blob. The
// cache tolerates concurrent readers and writers across processes, crashes
// mid-write, and partially corrupted index files, and offers periodic
// verification that reclaims unreferenced or corrupt content.
//
// # Layout
//
// A cache root holds:
//   - content-v2/<algo>/<xx>/<yy>/<rest>: content files named by digest
//   - index-v5/<xx>/<yy>/<rest>: append-only index buckets named by a hash of the key
//   - tmp/: in-progress writes
//   - _lastverified: the time of the last Verify, in epoch milliseconds
//
// # Quick Start
//
//	c, err := cacache.New("/var/cache/app")
//	if err != nil {
//	    return err
//	}
//	sri, err := c.Put("pkg@1.0.0", []byte("hello"))
//	if err != nil {
//	    return err
//	}
//	res, err := c.Get("pkg@1.0.0")
//	if errors.Is(err, cacache.ErrNotFound) {
//	    // fetch and Put again
//	}
//	data, err := c.GetByDigest(sri)
//
// # Integrity
//
// Digests use the Subresource Integrity textual form, for example
// "sha512-<base64>". See the [integrity] package for parsing and hashing.
// Every read re-hashes the bytes it returns, so a corrupted file surfaces as
// [ErrIntegrity] rather than wrong data.
//
// # Maintenance
//
// [Cache.Verify] garbage-collects content no index entry references, deletes
// content that no longer hashes to its name, and rewrites the index without
// entries whose content is gone. [Cache.Compact] trims the history of a
// single key.
package cacache
