// Package memo is a process-local, best-effort, in-memory layer over the disk
// cache. It is never a source of truth: a miss always falls through to disk,
// and entries may be evicted at any time.
package memo

import (
	"bytes"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/meigma/cacache/internal/cachetype"
)

// DefaultMaxBytes is the default byte budget of each map.
const DefaultMaxBytes int64 = 50 << 20

// Value is a memoized entry and its content.
type Value struct {
	Entry cachetype.Entry
	Data  []byte
}

// Store holds two independent LRU maps: one keyed by (cache root, key) and
// one keyed by (cache root, digest). It is safe for concurrent use.
type Store struct {
	byKey    *sizedLRU
	byDigest *sizedLRU
}

// New returns a Store whose maps each hold at most maxBytes of content.
// Values <= 0 select DefaultMaxBytes.
func New(maxBytes int64) *Store {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{
		byKey:    newSizedLRU(maxBytes),
		byDigest: newSizedLRU(maxBytes),
	}
}

// Put memoizes entry and a copy of data under both its key and its digest.
func (s *Store) Put(root string, entry cachetype.Entry, data []byte) {
	v := Value{Entry: entry, Data: bytes.Clone(data)}
	if entry.Key != "" {
		s.byKey.add(keyID(root, entry.Key), v)
	}
	if !entry.Integrity.IsZero() {
		s.byDigest.add(digestID(root, entry.Integrity.String()), v)
	}
}

// PutDigest memoizes content reachable only by digest.
func (s *Store) PutDigest(root, sri string, data []byte) {
	s.byDigest.add(digestID(root, sri), Value{Data: bytes.Clone(data)})
}

// Get returns the value memoized for key under root. The returned data is a
// copy the caller may modify.
func (s *Store) Get(root, key string) (Value, bool) {
	v, ok := s.byKey.get(keyID(root, key))
	if !ok {
		return Value{}, false
	}
	v.Data = bytes.Clone(v.Data)
	return v, true
}

// GetDigest returns the content memoized for sri under root.
func (s *Store) GetDigest(root, sri string) ([]byte, bool) {
	v, ok := s.byDigest.get(digestID(root, sri))
	if !ok {
		return nil, false
	}
	return bytes.Clone(v.Data), true
}

// Delete drops the memoized value for key under root.
func (s *Store) Delete(root, key string) {
	s.byKey.remove(keyID(root, key))
}

// Clear drops everything.
func (s *Store) Clear() {
	s.byKey.clear()
	s.byDigest.clear()
}

// Len returns the number of memoized values in both maps.
func (s *Store) Len() int {
	return s.byKey.len() + s.byDigest.len()
}

func keyID(root, key string) string {
	return "key:" + root + ":" + key
}

func digestID(root, sri string) string {
	return "digest:" + root + ":" + sri
}

// sizedLRU bounds an lru.Cache by the total size of memoized content.
type sizedLRU struct {
	mu       sync.Mutex
	cache    *lru.Cache
	size     int64
	maxBytes int64
}

func newSizedLRU(maxBytes int64) *sizedLRU {
	s := &sizedLRU{cache: lru.New(0), maxBytes: maxBytes}
	s.cache.OnEvicted = func(_ lru.Key, value any) {
		if v, ok := value.(Value); ok {
			s.size -= cost(v)
		}
	}
	return s
}

func cost(v Value) int64 {
	n := int64(len(v.Data))
	if n == 0 {
		n = 1
	}
	return n
}

func (s *sizedLRU) add(id string, v Value) {
	c := cost(v)
	if c > s.maxBytes {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(id)
	s.cache.Add(id, v)
	s.size += c
	for s.size > s.maxBytes && s.cache.Len() > 0 {
		s.cache.RemoveOldest()
	}
}

func (s *sizedLRU) get(id string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.cache.Get(id)
	if !ok {
		return Value{}, false
	}
	v, ok := value.(Value)
	return v, ok
}

func (s *sizedLRU) remove(id string) {
	s.mu.Lock()
	s.cache.Remove(id)
	s.mu.Unlock()
}

func (s *sizedLRU) clear() {
	s.mu.Lock()
	s.cache.Clear()
	s.size = 0
	s.mu.Unlock()
}

func (s *sizedLRU) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}
