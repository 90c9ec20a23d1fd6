package cacache

import (
	"context"
	"time"

	"github.com/meigma/cacache/internal/verify"
)

// Verify checks the whole cache: it deletes content no entry references and
// content that fails to hash, rewrites the index without entries whose
// content is gone, empties the tmp directory, and records the run time.
//
// Problems found in individual files are counted in the returned Stats, not
// returned as errors. Verify clears the cache's memo.
func (c *Cache) Verify(ctx context.Context, opts ...VerifyOption) (Stats, error) {
	var cfg verifyConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	vopts := append([]verify.Option{verify.WithLogger(c.logger)}, cfg.opts...)
	stats, err := verify.New(c.owner, c.index, c.content, vopts...).Run(ctx)
	c.memo.Clear()
	return stats, err
}

// LastVerified returns when Verify last completed. It fails with a
// [NotFoundError] if Verify has never run.
func (c *Cache) LastVerified() (time.Time, error) {
	return verify.LastRun(c.root)
}
