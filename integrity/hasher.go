package integrity

import (
	"encoding/base64"
	"hash"
	"io"
)

// Hasher computes one or more algorithms over the bytes written to it.
type Hasher struct {
	algs   []string
	hashes []hash.Hash
	size   int64
}

// NewHasher returns a Hasher for algs. With no algorithms it uses Default.
func NewHasher(algs ...string) (*Hasher, error) {
	if len(algs) == 0 {
		algs = []string{Default}
	}
	h := &Hasher{algs: make([]string, 0, len(algs)), hashes: make([]hash.Hash, 0, len(algs))}
	for _, alg := range algs {
		hh, err := NewHash(alg)
		if err != nil {
			return nil, err
		}
		h.algs = append(h.algs, alg)
		h.hashes = append(h.hashes, hh)
	}
	return h, nil
}

// Write implements io.Writer. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	for _, hh := range h.hashes {
		_, _ = hh.Write(p) //nolint:errcheck // hash writes never fail
	}
	h.size += int64(len(p))
	return len(p), nil
}

// Size returns the number of bytes hashed so far.
func (h *Hasher) Size() int64 {
	return h.size
}

// Sum returns the integrity of the bytes hashed so far, in algorithm order.
func (h *Hasher) Sum() Integrity {
	out := make([]Hash, len(h.hashes))
	for i, hh := range h.hashes {
		out[i] = Hash{Algorithm: h.algs[i], Digest: base64.StdEncoding.EncodeToString(hh.Sum(nil))}
	}
	return Integrity{hashes: out}
}

// HashingReader wraps an io.Reader and hashes all data read through it.
type HashingReader struct {
	r io.Reader
	h *Hasher
}

// NewHashingReader creates a reader that feeds h while reading from r.
func NewHashingReader(r io.Reader, h *Hasher) *HashingReader {
	return &HashingReader{r: r, h: h}
}

// Read implements io.Reader.
func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n]) //nolint:errcheck // hasher writes never fail
	}
	return n, err
}

// Sum returns the integrity of everything read so far.
func (hr *HashingReader) Sum() Integrity {
	return hr.h.Sum()
}

// Size returns the number of bytes read so far.
func (hr *HashingReader) Size() int64 {
	return hr.h.Size()
}
