package cacache

import (
	"fmt"

	"github.com/meigma/cacache/integrity"
)

// Remove deletes the index entry for key. The content it pointed at is left
// in place; it is reclaimed by Verify once nothing references it.
func (c *Cache) Remove(key string, opts ...RemoveOption) error {
	if err := checkKey(key); err != nil {
		return err
	}
	var cfg removeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	c.memo.Delete(c.root, key)
	if err := c.index.Delete(key, cfg.removeFully); err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

// RemoveContent deletes the content for sri regardless of which entries
// reference it. It reports whether anything was removed.
func (c *Cache) RemoveContent(sri integrity.Integrity) (bool, error) {
	removed, err := c.content.Remove(sri)
	if err != nil {
		return false, fmt.Errorf("remove %s: %w", sri.String(), err)
	}
	return removed, nil
}
