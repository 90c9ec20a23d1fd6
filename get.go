package cacache

import (
	"encoding/json"
	"fmt"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
)

// GetResult is the content and entry details for a key.
type GetResult struct {
	Data      []byte
	Metadata  json.RawMessage
	Integrity integrity.Integrity
	Size      int64
}

// Get returns the content stored under key. A key with no live entry fails
// with a [NotFoundError]; corrupted content fails with an [IntegrityError].
func (c *Cache) Get(key string, opts ...GetOption) (GetResult, error) {
	cfg := newGetConfig(opts)
	if cfg.lookup() {
		if v, ok := c.memo.Get(c.root, key); ok {
			return resultOf(v.Entry, v.Data), nil
		}
	}
	entry, err := c.find(key)
	if err != nil {
		return GetResult{}, err
	}
	data, err := c.content.Read(entry.Integrity, cfg.size)
	if err != nil {
		return GetResult{}, fmt.Errorf("get %q: %w", key, err)
	}
	if cfg.populate() {
		c.memo.Put(c.root, entry, data)
	}
	return resultOf(entry, data), nil
}

// GetByDigest returns the content for sri, independent of any key.
func (c *Cache) GetByDigest(sri integrity.Integrity, opts ...GetOption) ([]byte, error) {
	cfg := newGetConfig(opts)
	if cfg.lookup() {
		if data, ok := c.memo.GetDigest(c.root, sri.String()); ok {
			return data, nil
		}
	}
	data, err := c.content.Read(sri, cfg.size)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", sri.String(), err)
	}
	if cfg.populate() {
		c.memo.PutDigest(c.root, sri.String(), data)
	}
	return data, nil
}

// Info returns the live entry for key without reading its content.
func (c *Cache) Info(key string, opts ...GetOption) (Entry, error) {
	cfg := newGetConfig(opts)
	if cfg.lookup() {
		if v, ok := c.memo.Get(c.root, key); ok {
			return v.Entry, nil
		}
	}
	return c.find(key)
}

// HasContent reports whether content for sri is present, returning its
// descriptor when it is.
func (c *Cache) HasContent(sri integrity.Integrity) (ContentInfo, bool, error) {
	return c.content.Has(sri)
}

func (c *Cache) find(key string) (cachetype.Entry, error) {
	entry, ok, err := c.index.Find(key)
	if err != nil {
		return cachetype.Entry{}, fmt.Errorf("get %q: %w", key, err)
	}
	if !ok {
		return cachetype.Entry{}, c.notFound(key)
	}
	return entry, nil
}

func resultOf(entry cachetype.Entry, data []byte) GetResult {
	return GetResult{
		Data:      data,
		Metadata:  entry.Metadata,
		Integrity: entry.Integrity,
		Size:      entry.Size,
	}
}
