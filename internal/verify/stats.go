package verify

import "time"

// Stats summarizes a verify run.
type Stats struct {
	// VerifiedContent is the number of live content files that hashed correctly.
	VerifiedContent int
	// ReclaimedCount is the number of content files deleted, orphaned or corrupt.
	ReclaimedCount int
	// ReclaimedSize is the total size of deleted content files.
	ReclaimedSize int64
	// BadContentCount is the number of live content files that failed to hash.
	BadContentCount int
	// KeptSize is the total size of verified content files.
	KeptSize int64
	// MissingContent is the number of index entries dropped because their
	// content was gone.
	MissingContent int
	// RejectedEntries is the number of index entries dropped, either by the
	// filter or for missing content.
	RejectedEntries int
	// TotalEntries is the number of index entries rewritten.
	TotalEntries int

	StartTime time.Time
	EndTime   time.Time
	// RunTime maps each step name, and "total", to its wall-clock duration.
	RunTime map[string]time.Duration
}

// add accumulates the counters of other into s.
func (s *Stats) add(other Stats) {
	s.VerifiedContent += other.VerifiedContent
	s.ReclaimedCount += other.ReclaimedCount
	s.ReclaimedSize += other.ReclaimedSize
	s.BadContentCount += other.BadContentCount
	s.KeptSize += other.KeptSize
	s.MissingContent += other.MissingContent
	s.RejectedEntries += other.RejectedEntries
	s.TotalEntries += other.TotalEntries
}
