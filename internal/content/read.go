package content

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"

	"github.com/creachadair/atomicfile"

	"github.com/meigma/cacache/integrity"
	"github.com/meigma/cacache/internal/cachetype"
	"github.com/meigma/cacache/internal/platform"
)

// Read returns the verified bytes for sri. A non-zero size is checked against
// the file before it is read.
func (s *Store) Read(sri integrity.Integrity, size int64) ([]byte, error) {
	data, err := firstAvailable(s.root, sri, func(h integrity.Hash, path string) ([]byte, error) {
		return s.readHash(h, path, size)
	})
	if err != nil {
		return nil, s.notFound(sri, err)
	}
	return data, nil
}

func (s *Store) readHash(h integrity.Hash, path string, size int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if size != 0 && info.Size() != size {
		return nil, &cachetype.SizeError{Expected: size, Found: info.Size()}
	}
	if info.Size() > s.large {
		return s.readLarge(h, path, info.Size())
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a digest
	if err != nil {
		return nil, err
	}
	if _, ok := integrity.CheckBytes(data, h.Integrity()); !ok {
		return nil, &cachetype.IntegrityError{Integrity: h.Integrity(), Path: path}
	}
	return data, nil
}

// readLarge hashes the file as it is read so the whole payload is only
// touched once.
func (s *Store) readLarge(h integrity.Hash, path string, size int64) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path is derived from a digest
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vr, err := integrity.NewVerifyingReader(f, h.Integrity())
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(int(size))
	if _, err := buf.ReadFrom(vr); err != nil {
		if errors.Is(err, integrity.ErrMismatch) {
			return nil, &cachetype.IntegrityError{Integrity: h.Integrity(), Path: path}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// Open returns a reader for sri that verifies the size and integrity of the
// stream when it reaches EOF. The error is reported by the final Read in
// place of io.EOF.
func (s *Store) Open(sri integrity.Integrity, size int64) (io.ReadCloser, error) {
	rc, err := firstAvailable(s.root, sri, func(h integrity.Hash, path string) (io.ReadCloser, error) {
		f, err := os.Open(path) //nolint:gosec // path is derived from a digest
		if err != nil {
			return nil, err
		}
		if size != 0 {
			info, err := f.Stat()
			if err != nil {
				_ = f.Close()
				return nil, err
			}
			if info.Size() != size {
				_ = f.Close()
				return nil, &cachetype.SizeError{Expected: size, Found: info.Size()}
			}
		}
		vr, err := integrity.NewVerifyingReader(f, h.Integrity())
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &verifiedFile{f: f, vr: vr, h: h, size: size}, nil
	})
	if err != nil {
		return nil, s.notFound(sri, err)
	}
	return rc, nil
}

type verifiedFile struct {
	f    *os.File
	vr   *integrity.VerifyingReader
	h    integrity.Hash
	size int64
}

func (v *verifiedFile) Read(p []byte) (int, error) {
	n, err := v.vr.Read(p)
	switch {
	case errors.Is(err, integrity.ErrMismatch):
		return n, &cachetype.IntegrityError{Integrity: v.h.Integrity(), Path: v.f.Name()}
	case errors.Is(err, io.EOF) && v.size != 0 && v.vr.Size() != v.size:
		return n, &cachetype.SizeError{Expected: v.size, Found: v.vr.Size()}
	}
	return n, err
}

func (v *verifiedFile) Close() error {
	return v.f.Close()
}

// CheckFile hashes the file at path against h. It reports false with a nil
// error when the bytes do not match. path need not be the canonical location
// of h.
func (s *Store) CheckFile(path string, h integrity.Hash) (bool, error) {
	f, err := os.Open(path) //nolint:gosec // path lies under the content tree
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, ok, err := integrity.CheckReader(f, h.Integrity())
	if err != nil {
		return false, fmt.Errorf("check %s: %w", path, err)
	}
	return ok, nil
}

// Has reports whether content for sri is present, returning the descriptor
// of the first hash found. Permission errors are negative results on Windows
// and errors elsewhere.
func (s *Store) Has(sri integrity.Integrity) (Info, bool, error) {
	info, err := firstAvailable(s.root, sri, func(h integrity.Hash, path string) (Info, error) {
		st, err := os.Stat(path)
		if err != nil {
			if runtime.GOOS == "windows" && errors.Is(err, fs.ErrPermission) {
				return Info{}, fs.ErrNotExist
			}
			return Info{}, err
		}
		return Info{Integrity: h.Integrity(), Size: st.Size(), Path: path}, nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Info{}, false, nil
		}
		return Info{}, false, fmt.Errorf("stat content %s: %w", sri.String(), err)
	}
	return info, true, nil
}

// Remove deletes the content for sri. It reports whether anything was
// removed.
func (s *Store) Remove(sri integrity.Integrity) (bool, error) {
	info, ok, err := s.Has(sri)
	if err != nil || !ok {
		return false, err
	}
	if err := os.RemoveAll(info.Path); err != nil {
		return false, fmt.Errorf("remove content %s: %w", sri.String(), err)
	}
	s.log().Debug("removed content", "integrity", sri.String(), "path", info.Path)
	return true, nil
}

// Copy writes the content for sri to dest. It copies the file directly and
// falls back to a verified read when the direct copy fails.
func (s *Store) Copy(sri integrity.Integrity, dest string) (Info, error) {
	info, ok, err := s.Has(sri)
	if err != nil {
		return Info{}, err
	}
	if !ok {
		return Info{}, &cachetype.NotFoundError{Cache: s.root, Integrity: sri.String()}
	}
	err = platform.CopyFile(info.Path, dest)
	if err == nil {
		return info, nil
	}
	if _, statErr := os.Stat(info.Path); errors.Is(statErr, fs.ErrNotExist) {
		return Info{}, s.notFound(sri, statErr)
	}
	s.log().Debug("direct copy failed, falling back to read", "integrity", sri.String(), "error", err)

	rc, err := s.Open(info.Integrity, info.Size)
	if err != nil {
		return Info{}, err
	}
	defer rc.Close()
	if _, err := atomicfile.WriteAll(dest, rc, s.filePerm); err != nil {
		return Info{}, fmt.Errorf("copy %s to %s: %w", sri.String(), dest, err)
	}
	return info, nil
}

// notFound converts a filesystem not-exist error into a NotFoundError.
func (s *Store) notFound(sri integrity.Integrity, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &cachetype.NotFoundError{Cache: s.root, Integrity: sri.String(), Err: err}
	}
	return err
}
