//go:build !unix

package platform

import "io/fs"

// OwnershipSupported reports whether the host has a multi-user ownership
// model worth reconciling.
const OwnershipSupported = false

// FileOwner reports no owner on non-Unix systems.
func FileOwner(info fs.FileInfo) (Identity, bool) {
	return Identity{}, false
}

func currentIdentity() Identity {
	return Identity{UID: -1, GID: -1}
}

func lchown(string, Identity) error {
	return nil
}
