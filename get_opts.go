package cacache

// GetOption configures a Get, GetByDigest, Info, or reader.
type GetOption func(*getConfig)

type getConfig struct {
	size    int64
	memoize *bool
}

// GetWithSize fails the read with [ErrBadSize] unless the stored content is
// exactly n bytes. Zero disables the check.
func GetWithSize(n int64) GetOption {
	return func(cfg *getConfig) {
		cfg.size = n
	}
}

// GetWithMemoize controls the memo. With true, a value read from disk is
// memoized; with false, the memo is neither consulted nor filled. By
// default the memo is consulted but not filled.
func GetWithMemoize(enabled bool) GetOption {
	return func(cfg *getConfig) {
		cfg.memoize = &enabled
	}
}

func newGetConfig(opts []GetOption) getConfig {
	var cfg getConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (cfg getConfig) lookup() bool {
	return cfg.memoize == nil || *cfg.memoize
}

func (cfg getConfig) populate() bool {
	return cfg.memoize != nil && *cfg.memoize
}
