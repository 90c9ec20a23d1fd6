package cacache

import (
	"context"
	"iter"
)

// List returns the live entry of every key in the cache.
func (c *Cache) List(ctx context.Context) (map[string]Entry, error) {
	return c.index.List(ctx)
}

// Walk yields the live entry of every key, one index bucket at a time,
// without holding the whole index in memory. Iteration stops at the first
// error, which is yielded with a zero Entry.
func (c *Cache) Walk(ctx context.Context) iter.Seq2[Entry, error] {
	return c.index.Walk(ctx)
}
