package engine

import "sync"

// PendingSet records purchase tokens for which a consume request has been
// dispatched. Tokens are never removed: membership means "already
// attempted", not "confirmed".
//
// Thread-safety: PendingSet is safe for concurrent use.
type PendingSet struct {
	mu     sync.Mutex
	tokens map[string]struct{}
}

// NewPendingSet creates an empty set.
func NewPendingSet() *PendingSet {
	return &PendingSet{tokens: make(map[string]struct{})}
}

// TryAdd adds token and reports whether it was absent. Check and insert are
// atomic, so concurrent passes cannot both claim the same token.
func (p *PendingSet) TryAdd(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.tokens[token]; ok {
		return false
	}
	p.tokens[token] = struct{}{}
	return true
}

// Contains reports whether token has been claimed.
func (p *PendingSet) Contains(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tokens[token]
	return ok
}

// Len returns the number of claimed tokens.
func (p *PendingSet) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tokens)
}
