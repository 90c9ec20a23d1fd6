//go:build unix

package platform

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/unix"
)

// OwnershipSupported reports whether the host has a multi-user ownership
// model worth reconciling.
const OwnershipSupported = true

// FileOwner extracts UID and GID from file info on Unix systems.
func FileOwner(info fs.FileInfo) (Identity, bool) {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return Identity{UID: int(stat.Uid), GID: int(stat.Gid)}, true
	}
	return Identity{}, false
}

func currentIdentity() Identity {
	return Identity{UID: unix.Geteuid(), GID: unix.Getegid()}
}

func lchown(path string, id Identity) error {
	return unix.Lchown(path, id.UID, id.GID)
}
