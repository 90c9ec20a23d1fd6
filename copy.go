package cacache

import (
	"fmt"

	"github.com/meigma/cacache/integrity"
)

// CopyTo copies the content stored under key to dest, replacing dest, and
// returns the entry. The parent of dest must exist.
func (c *Cache) CopyTo(key, dest string) (Entry, error) {
	entry, err := c.find(key)
	if err != nil {
		return Entry{}, err
	}
	if _, err := c.content.Copy(entry.Integrity, dest); err != nil {
		return Entry{}, fmt.Errorf("copy %q: %w", key, err)
	}
	return entry, nil
}

// CopyByDigest copies the content for sri to dest, replacing dest.
func (c *Cache) CopyByDigest(sri integrity.Integrity, dest string) (ContentInfo, error) {
	info, err := c.content.Copy(sri, dest)
	if err != nil {
		return ContentInfo{}, fmt.Errorf("copy %s: %w", sri.String(), err)
	}
	return info, nil
}
