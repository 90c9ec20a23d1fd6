package cacache

import (
	"fmt"

	"github.com/meigma/cacache/internal/index"
)

// MatchFunc reports whether an older candidate entry is superseded by a
// newer entry already kept.
type MatchFunc = index.MatchFunc

// Compact rewrites the index bucket of key so that, among entries match
// considers equal, only the newest survives. It returns the kept entries in
// write order.
//
// Compact is not safe against concurrent writes to the same bucket; an entry
// inserted while it runs may be lost.
func (c *Cache) Compact(key string, match MatchFunc, opts ...CompactOption) ([]Entry, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	var cfg compactConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	c.memo.Delete(c.root, key)
	kept, err := c.index.Compact(key, match, index.CompactOptions{Validate: cfg.validate})
	if err != nil {
		return nil, fmt.Errorf("compact %q: %w", key, err)
	}
	return kept, nil
}
