package cacache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/meigma/cacache/integrity"
)

// GetReader opens the content stored under key for streaming. The returned
// reader verifies the content as it is read: the final Read returns an
// [IntegrityError] or [SizeError] instead of io.EOF when the bytes are bad,
// so callers must read to EOF before trusting the data.
func (c *Cache) GetReader(key string, opts ...GetOption) (io.ReadCloser, Entry, error) {
	cfg := newGetConfig(opts)
	if cfg.lookup() {
		if v, ok := c.memo.Get(c.root, key); ok {
			return io.NopCloser(bytes.NewReader(v.Data)), v.Entry, nil
		}
	}
	entry, err := c.find(key)
	if err != nil {
		return nil, Entry{}, err
	}
	rc, err := c.content.Open(entry.Integrity, cfg.size)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("get %q: %w", key, err)
	}
	return rc, entry, nil
}

// GetReaderByDigest opens the content for sri for streaming, verifying it
// as GetReader does.
func (c *Cache) GetReaderByDigest(sri integrity.Integrity, opts ...GetOption) (io.ReadCloser, error) {
	cfg := newGetConfig(opts)
	if cfg.lookup() {
		if data, ok := c.memo.GetDigest(c.root, sri.String()); ok {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	rc, err := c.content.Open(sri, cfg.size)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", sri.String(), err)
	}
	return rc, nil
}
