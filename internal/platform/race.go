// Package platform holds the filesystem primitives whose behavior depends on
// the host: ownership reconciliation, atomic publishing of content files,
// and the policy for absorbing races between concurrent cache users.
package platform

import (
	"errors"
	"io/fs"
	"syscall"
)

// IsBenignRace reports whether err is one of the filesystem outcomes that
// concurrent cache users routinely cause for each other: a path vanishing
// between two steps (ENOENT) or a path appearing first (EEXIST). Content is
// always verified by hash before use, so absorbing these never hides
// corruption.
func IsBenignRace(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrExist)
}

// IsBusy reports whether err is a transient EBUSY.
func IsBusy(err error) bool {
	return errors.Is(err, syscall.EBUSY)
}
