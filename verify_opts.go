package cacache

import "github.com/meigma/cacache/internal/verify"

// VerifyOption configures a Verify.
type VerifyOption func(*verifyConfig)

type verifyConfig struct {
	opts []verify.Option
}

// VerifyWithConcurrency sets how many content files are hashed, and index
// buckets rewritten, at once. Defaults to 20.
func VerifyWithConcurrency(n int) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.opts = append(cfg.opts, verify.WithConcurrency(n))
	}
}

// VerifyWithFilter drops index entries for which fn returns false. Content
// referenced only by dropped entries is reclaimed in the same run.
func VerifyWithFilter(fn func(Entry) bool) VerifyOption {
	return func(cfg *verifyConfig) {
		cfg.opts = append(cfg.opts, verify.WithFilter(fn))
	}
}
