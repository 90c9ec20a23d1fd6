package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"
)

const defaultDirPerm = 0o755

// Owner creates directories under a cache root and hands newly created paths
// to the root's owner when the process runs as the superuser.
//
// On hosts without an ownership model every method only creates directories.
type Owner struct {
	root    string
	ids     IdentityProvider
	dirPerm fs.FileMode
	logger  *slog.Logger
	chowns  singleflight.Group
}

// OwnerOption configures an Owner.
type OwnerOption func(*Owner)

// WithIdentityProvider overrides the process identity source.
func WithIdentityProvider(ids IdentityProvider) OwnerOption {
	return func(o *Owner) {
		if ids != nil {
			o.ids = ids
		}
	}
}

// WithDirPerm sets the mode used for created directories.
func WithDirPerm(mode fs.FileMode) OwnerOption {
	return func(o *Owner) {
		o.dirPerm = mode
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) OwnerOption {
	return func(o *Owner) {
		o.logger = logger
	}
}

// NewOwner returns an Owner for the cache rooted at root.
func NewOwner(root string, opts ...OwnerOption) *Owner {
	o := &Owner{
		root:    root,
		ids:     NewProcessIdentity(),
		dirPerm: defaultDirPerm,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Root returns the cache root.
func (o *Owner) Root() string {
	return o.root
}

// DirPerm returns the mode used for created directories.
func (o *Owner) DirPerm() fs.FileMode {
	return o.dirPerm
}

func (o *Owner) log() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.logger
}

// InferOwner returns the identity that should own files in the cache: the
// owner of the nearest existing ancestor of the root, or the process itself
// when nothing exists yet.
func (o *Owner) InferOwner() Identity {
	dir := filepath.Clean(o.root)
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if id, ok := FileOwner(info); ok {
				return id
			}
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return o.ids.Identity()
}

// MkdirFix creates path and any missing parents, then reconciles ownership
// of the portion it created. It returns the first directory it created, or
// "" when path already existed.
func (o *Owner) MkdirFix(path string) (string, error) {
	first := firstMissing(path)
	if err := os.MkdirAll(path, o.dirPerm); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", o.Chownr(path)
		}
		return "", fmt.Errorf("mkdir %s: %w", path, err)
	}
	if first == "" {
		return "", nil
	}
	if err := o.Chownr(first); err != nil {
		return first, err
	}
	return first, nil
}

// Chownr hands path and everything below it to the inferred owner. It is a
// no-op unless the process is the superuser and the inferred owner differs.
// Concurrent calls for the same path share one walk.
func (o *Owner) Chownr(path string) error {
	if !OwnershipSupported {
		return nil
	}
	self := o.ids.Identity()
	if self.UID != 0 {
		return nil
	}
	owner := o.InferOwner()
	if owner == self {
		return nil
	}
	_, err, _ := o.chowns.Do(path, func() (any, error) {
		return nil, chownTree(path, owner)
	})
	if err != nil && IsBenignRace(err) {
		o.log().Debug("chown target vanished", "path", path)
		return nil
	}
	return err
}

func chownTree(root string, id Identity) error {
	return filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			if IsBenignRace(err) {
				return nil
			}
			return err
		}
		if err := lchown(path, id); err != nil && !IsBenignRace(err) {
			return fmt.Errorf("chown %s: %w", path, err)
		}
		return nil
	})
}

// firstMissing returns the shallowest ancestor of path (or path itself) that
// does not exist yet, or "" when path exists.
func firstMissing(path string) string {
	path = filepath.Clean(path)
	first := ""
	for {
		if _, err := os.Lstat(path); err == nil {
			return first
		}
		first = path
		parent := filepath.Dir(path)
		if parent == path {
			return first
		}
		path = parent
	}
}
