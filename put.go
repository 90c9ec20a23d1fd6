package cacache

import (
	"context"
	"fmt"
	"io"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/content"
	"github.com/meigma/cacache/internal/file"
	"github.com/meigma/cacache/internal/index"
)

// Put stores data under key and returns its integrity. Writing bytes the
// cache already holds only appends a new index entry.
func (c *Cache) Put(key string, data []byte, opts ...PutOption) (integrity.Integrity, error) {
	if err := checkKey(key); err != nil {
		return integrity.Integrity{}, err
	}
	cfg := newPutConfig(opts)
	res, err := c.content.Write(data, cfg.writeOptions())
	if err != nil {
		return integrity.Integrity{}, fmt.Errorf("put %q: %w", key, err)
	}
	if err := c.insert(key, res, cfg, data); err != nil {
		return integrity.Integrity{}, err
	}
	return res.Integrity, nil
}

// PutReader streams r into the cache under key. The copy stops at the first
// read error or when ctx is canceled, and nothing is published in that case.
func (c *Cache) PutReader(ctx context.Context, key string, r io.Reader, opts ...PutOption) (integrity.Integrity, error) {
	w, err := c.PutWriter(key, opts...)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := file.CopyWithContext(ctx, w, r, nil); err != nil {
		_ = w.Discard()
		return integrity.Integrity{}, fmt.Errorf("put %q: %w", key, err)
	}
	res, err := w.Commit()
	if err != nil {
		return integrity.Integrity{}, err
	}
	return res.Integrity, nil
}

func (cfg putConfig) writeOptions() content.WriteOptions {
	return content.WriteOptions{
		Algorithms: cfg.algs,
		Size:       cfg.size,
		Integrity:  cfg.integrity,
	}
}

// insert binds key to written content and memoizes it when asked.
func (c *Cache) insert(key string, res content.Result, cfg putConfig, data []byte) error {
	entry, _, err := c.index.Insert(key, res.Integrity, index.InsertOptions{
		Metadata: cfg.metadata,
		Size:     res.Size,
		Time:     cfg.time,
	})
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	if cfg.memoize {
		c.memo.Put(c.root, entry, data)
	} else {
		c.memo.Delete(c.root, key)
	}
	return nil
}
