package cacache

import (
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/meigma/cacache/integrity"
)

const (
	defaultDirPerm  fs.FileMode = 0o755
	defaultFilePerm fs.FileMode = 0o644
)

// Option configures a Cache.
type Option func(*Cache) error

// WithLogger sets the logger used by every component of the cache.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) error {
		c.logger = logger
		return nil
	}
}

// WithAlgorithm sets the hashing algorithm for writes that do not name one.
// Defaults to sha512.
func WithAlgorithm(alg string) Option {
	return func(c *Cache) error {
		if !integrity.Supported(alg) {
			return fmt.Errorf("cacache: %w: %q", integrity.ErrUnsupportedAlgorithm, alg)
		}
		c.algorithm = alg
		return nil
	}
}

// WithMemo shares m between caches instead of giving this cache its own.
func WithMemo(m *Memo) Option {
	return func(c *Cache) error {
		c.memo = m
		return nil
	}
}

// WithIdentity overrides how the process identity is determined for
// ownership reconciliation.
func WithIdentity(ids IdentityProvider) Option {
	return func(c *Cache) error {
		c.ids = ids
		return nil
	}
}

// WithDirPerm sets the mode of directories the cache creates.
// Defaults to 0o755.
func WithDirPerm(mode fs.FileMode) Option {
	return func(c *Cache) error {
		c.dirPerm = mode
		return nil
	}
}

// WithFilePerm sets the mode of files the cache creates.
// Defaults to 0o644.
func WithFilePerm(mode fs.FileMode) Option {
	return func(c *Cache) error {
		c.filePerm = mode
		return nil
	}
}
