package platform

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// MoveIntoPlace publishes src at dest and removes src.
//
// It hard-links src to dest so that publishing never exposes a partially
// written dest. A dest that already exists (or is transiently busy) means
// another writer published the same content first, which is success. When
// linking is unsupported, or reports success without producing dest, it
// falls back to a rename and then to a copy. On every path src is removed,
// and a failed copy never leaves a partial dest behind.
func MoveIntoPlace(src, dest string) error {
	linkErr := os.Link(src, dest)
	switch {
	case linkErr == nil:
		if _, err := os.Lstat(dest); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				removeQuietly(src)
				return fmt.Errorf("move %s: %w", dest, err)
			}
			return renameOrCopy(src, dest)
		}
	case errors.Is(linkErr, fs.ErrExist) || IsBusy(linkErr):
		// Already published by another writer.
	default:
		_, statErr := os.Lstat(dest)
		switch {
		case statErr == nil:
		case errors.Is(statErr, fs.ErrNotExist):
			if _, srcErr := os.Lstat(src); srcErr != nil {
				return fmt.Errorf("move %s: %w", dest, linkErr)
			}
			return renameOrCopy(src, dest)
		default:
			removeQuietly(src)
			return fmt.Errorf("move %s: %w", dest, statErr)
		}
	}
	if err := os.Remove(src); err != nil && !IsBenignRace(err) {
		return fmt.Errorf("move %s: remove source: %w", dest, err)
	}
	return nil
}

func renameOrCopy(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	err := copyExclusive(src, dest)
	removeQuietly(src)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("move %s: %w", dest, err)
	}
	return nil
}

// copyExclusive copies src to a dest that must not exist yet, removing the
// partial dest on failure.
func copyExclusive(src, dest string) (err error) {
	in, err := os.Open(src) //nolint:gosec // src is a cache temp file
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm()) //nolint:gosec // dest is a content path
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			removeQuietly(dest)
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

// CopyFile copies src to dest, replacing dest. It writes through a sibling
// temp file so readers of dest never see a partial copy.
func CopyFile(src, dest string) error {
	in, err := os.Open(src) //nolint:gosec // src is a content path
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".cacache-copy-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		removeQuietly(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		removeQuietly(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		removeQuietly(tmpPath)
		return err
	}
	return nil
}

func removeQuietly(path string) {
	_ = os.Remove(path) //nolint:errcheck // best-effort cleanup
}
