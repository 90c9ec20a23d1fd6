package cacache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/content"
	"github.com/meigma/cacache/internal/index"
	"github.com/meigma/cacache/internal/memo"
	"github.com/meigma/cacache/internal/platform"
)

// Cache is a content-addressable cache rooted at a directory.
//
// A Cache is safe for concurrent use, and several processes may share one
// root. It holds no locks on disk; races between writers resolve through
// content addressing and append-only index buckets.
type Cache struct {
	root      string
	algorithm string
	dirPerm   fs.FileMode
	filePerm  fs.FileMode
	ids       IdentityProvider
	logger    *slog.Logger

	owner   *platform.Owner
	index   *index.Index
	content *content.Store
	memo    *memo.Store
}

// New returns a Cache rooted at root. The directory is created lazily by the
// first write.
func New(root string, opts ...Option) (*Cache, error) {
	if root == "" {
		return nil, errors.New("cacache: cache root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cacache: resolve root: %w", err)
	}
	c := &Cache{
		root:      abs,
		algorithm: integrity.Default,
		dirPerm:   defaultDirPerm,
		filePerm:  defaultFilePerm,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.memo == nil {
		c.memo = memo.New(memo.DefaultMaxBytes)
	}

	ownerOpts := []platform.OwnerOption{
		platform.WithDirPerm(c.dirPerm),
		platform.WithLogger(c.logger),
	}
	if c.ids != nil {
		ownerOpts = append(ownerOpts, platform.WithIdentityProvider(c.ids))
	}
	c.owner = platform.NewOwner(c.root, ownerOpts...)
	c.index = index.New(c.owner,
		index.WithFilePerm(c.filePerm),
		index.WithLogger(c.logger),
	)
	c.content = content.New(c.owner,
		content.WithAlgorithm(c.algorithm),
		content.WithFilePerm(c.filePerm),
		content.WithLogger(c.logger),
	)
	return c, nil
}

// Root returns the absolute cache root.
func (c *Cache) Root() string {
	return c.root
}

// ClearMemoized drops everything from the cache's memo. When the memo is
// shared through [WithMemo], other caches lose their memoized values too.
func (c *Cache) ClearMemoized() {
	c.memo.Clear()
}

func (c *Cache) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// RemoveAll deletes every content and index subtree under the root,
// regardless of format version. The tmp directory and the verify marker are
// left alone.
func (c *Cache) RemoveAll() error {
	c.memo.Clear()
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove all: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "content-") && !strings.HasPrefix(name, "index-") {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.root, name)); err != nil {
			return fmt.Errorf("remove all: %w", err)
		}
	}
	c.log().Debug("removed all cache data", "cache", c.root)
	return nil
}

func (c *Cache) notFound(key string) error {
	return &cachetype.NotFoundError{Cache: c.root, Key: key}
}

func checkKey(key string) error {
	if key == "" {
		return cachetype.ErrInvalidKey
	}
	return nil
}
