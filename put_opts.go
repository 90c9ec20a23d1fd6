package cacache

import (
	"encoding/json"
	"time"

	"github.com/meigma/cacache/integrity"
)

// PutOption configures a Put, PutReader, or PutWriter.
type PutOption func(*putConfig)

type putConfig struct {
	size      int64
	integrity integrity.Integrity
	metadata  json.RawMessage
	algs      []string
	memoize   bool
	time      time.Time
}

// PutWithSize fails the write with [ErrBadSize] unless the payload is
// exactly n bytes. Zero disables the check.
func PutWithSize(n int64) PutOption {
	return func(cfg *putConfig) {
		cfg.size = n
	}
}

// PutWithIntegrity fails the write with [ErrChecksumMismatch] unless the
// payload matches sri. The check uses the strongest algorithm in sri.
func PutWithIntegrity(sri integrity.Integrity) PutOption {
	return func(cfg *putConfig) {
		cfg.integrity = sri
	}
}

// PutWithMetadata stores raw JSON alongside the entry.
func PutWithMetadata(metadata json.RawMessage) PutOption {
	return func(cfg *putConfig) {
		cfg.metadata = metadata
	}
}

// PutWithAlgorithms selects the hashing algorithm for this write. Only one
// algorithm is supported; naming more fails with [ErrMultipleAlgorithms].
func PutWithAlgorithms(algs ...string) PutOption {
	return func(cfg *putConfig) {
		cfg.algs = algs
	}
}

// PutWithMemoize also stores the entry and data in the cache's memo.
func PutWithMemoize() PutOption {
	return func(cfg *putConfig) {
		cfg.memoize = true
	}
}

// PutWithTime records t as the entry time instead of the current time.
func PutWithTime(t time.Time) PutOption {
	return func(cfg *putConfig) {
		cfg.time = t
	}
}

func newPutConfig(opts []PutOption) putConfig {
	var cfg putConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
