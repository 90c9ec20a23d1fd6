package platform

import "sync"

// Identity is a user/group pair. Negative values mean unknown.
type Identity struct {
	UID int
	GID int
}

// IdentityProvider reports the effective identity of the process.
//
// Implementations may cache the answer. Code that changes the process
// identity at runtime must call Refresh afterwards.
type IdentityProvider interface {
	Identity() Identity
	Refresh()
}

// ProcessIdentity is an IdentityProvider that memoizes the effective
// uid/gid of the current process.
type ProcessIdentity struct {
	mu     sync.Mutex
	cached *Identity
}

// NewProcessIdentity returns a ProcessIdentity.
func NewProcessIdentity() *ProcessIdentity {
	return &ProcessIdentity{}
}

// Identity returns the memoized effective identity.
func (p *ProcessIdentity) Identity() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		id := currentIdentity()
		p.cached = &id
	}
	return *p.cached
}

// Refresh drops the memoized identity.
func (p *ProcessIdentity) Refresh() {
	p.mu.Lock()
	p.cached = nil
	p.mu.Unlock()
}
