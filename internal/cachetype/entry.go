// Package cachetype holds the types shared between the index, the content
// store, and the public API.
package cachetype

import (
	"encoding/json"
	"time"

	"github.com/meigma/cacache/integrity"
)

// Entry is a formatted index entry: the stored record plus the resolved
// content path.
type Entry struct {
	Key       string
	Integrity integrity.Integrity
	// Path is the content path for Integrity; empty for tombstones.
	Path     string
	Size     int64
	Time     time.Time
	Metadata json.RawMessage
}

// IsTombstone reports whether e marks its key as deleted.
func (e Entry) IsTombstone() bool {
	return e.Integrity.IsZero()
}

// DecodeMetadata unmarshals the entry metadata into v. It is a no-op when
// the entry carries no metadata.
func (e Entry) DecodeMetadata(v any) error {
	if len(e.Metadata) == 0 || string(e.Metadata) == "null" {
		return nil
	}
	return json.Unmarshal(e.Metadata, v)
}
