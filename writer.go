package cacache

import (
	"bytes"
	"fmt"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/content"
)

// PutResult is the outcome of a committed streaming write.
type PutResult struct {
	Integrity integrity.Integrity
	Size      int64
}

// Writer streams a payload into the cache. Bytes are hashed as they arrive;
// the content is published and the index entry written only by Commit.
//
// A Writer is not safe for concurrent use. Callers must finish with Commit
// or Discard.
type Writer struct {
	c   *Cache
	key string
	cfg putConfig
	w   *content.Writer
	buf *bytes.Buffer
}

// PutWriter starts a streaming write of key.
func (c *Cache) PutWriter(key string, opts ...PutOption) (*Writer, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	cfg := newPutConfig(opts)
	cw, err := c.content.NewWriter(cfg.writeOptions())
	if err != nil {
		return nil, fmt.Errorf("put %q: %w", key, err)
	}
	w := &Writer{c: c, key: key, cfg: cfg, w: cw}
	if cfg.memoize {
		w.buf = new(bytes.Buffer)
	}
	return w, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if w.buf != nil && n > 0 {
		w.buf.Write(p[:n])
	}
	return n, err
}

// Commit verifies the stream, publishes the content, and writes the index
// entry. An empty stream fails with [ErrEmptyStream].
func (w *Writer) Commit() (PutResult, error) {
	res, err := w.w.Commit()
	if err != nil {
		return PutResult{}, fmt.Errorf("put %q: %w", w.key, err)
	}
	var data []byte
	if w.buf != nil {
		data = w.buf.Bytes()
	}
	if err := w.c.insert(w.key, res, w.cfg, data); err != nil {
		return PutResult{}, err
	}
	return PutResult{Integrity: res.Integrity, Size: res.Size}, nil
}

// Discard abandons the write, removing anything written so far. It is safe
// to call after Commit.
func (w *Writer) Discard() error {
	return w.w.Discard()
}
