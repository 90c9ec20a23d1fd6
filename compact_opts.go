package cacache

// CompactOption configures a Compact.
type CompactOption func(*compactConfig)

type compactConfig struct {
	validate func(Entry) bool
}

// CompactWithValidate keeps only entries for which fn returns true. Without
// it, compaction stops at the newest tombstone and drops everything older.
func CompactWithValidate(fn func(Entry) bool) CompactOption {
	return func(cfg *compactConfig) {
		cfg.validate = fn
	}
}
