package cacache

import (
	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/content"
	"github.com/meigma/cacache/internal/memo"
	"github.com/meigma/cacache/internal/platform"
	"github.com/meigma/cacache/internal/verify"
)

// Entry is an index entry: a key bound to a digest, size, time, and
// metadata, with the resolved content path.
type Entry = cachetype.Entry

// ContentInfo describes content present on disk.
type ContentInfo = content.Info

// Stats summarizes a Verify run.
type Stats = verify.Stats

// Identity is a user/group pair.
type Identity = platform.Identity

// IdentityProvider reports the effective identity of the process. Code that
// changes the process identity at runtime must call Refresh afterwards.
type IdentityProvider = platform.IdentityProvider

// Memo is an in-memory, best-effort layer over one or more caches. Share
// one between Cache values with [WithMemo].
type Memo = memo.Store

// NewMemo returns a Memo whose maps each hold at most maxBytes of content.
// Values <= 0 use a 50 MiB budget.
func NewMemo(maxBytes int64) *Memo {
	return memo.New(maxBytes)
}

// Format constants.
const (
	// ContentVersion is the on-disk content format version.
	ContentVersion = "2"
	// IndexVersion is the on-disk index format version.
	IndexVersion = "5"
	// LargeObjectThreshold is the size above which reads hash while streaming.
	LargeObjectThreshold = content.LargeObjectThreshold
)
