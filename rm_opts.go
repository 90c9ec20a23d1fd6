package cacache

// RemoveOption configures a Remove.
type RemoveOption func(*removeConfig)

type removeConfig struct {
	removeFully bool
}

// RemoveFully deletes the key's whole index bucket instead of appending a
// tombstone. Other keys that hash to the same bucket are removed as well,
// and the bucket's history is lost.
func RemoveFully() RemoveOption {
	return func(cfg *removeConfig) {
		cfg.removeFully = true
	}
}
