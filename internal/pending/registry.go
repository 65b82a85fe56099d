// Package pending holds homework candidates detected in a chat that still
// await a user's day choice. The registry is intentionally volatile: a restart
// drops all in-flight candidates, and re-sending the original message is
// always possible.
package pending

import "sync"

// Candidate is a detected, not-yet-confirmed homework assignment.
type Candidate struct {
	ChatID  int64
	Subject string
	Task    string
}

// Registry maps short-lived integer handles to candidates. Handles are
// strictly increasing for the lifetime of the process and never reused.
// Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	next    int64
	entries map[int64]Candidate
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[int64]Candidate{}}
}

// Register stores c and returns its handle.
func (r *Registry) Register(c Candidate) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.next
	r.next++
	r.entries[h] = c
	return h
}

// Consume removes and returns the candidate for h. The second consume of the
// same handle reports ok=false, which callers treat as "already handled"
// rather than an error.
func (r *Registry) Consume(h int64) (Candidate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[h]
	if ok {
		delete(r.entries, h)
	}
	return c, ok
}

// Drop discards the candidate for h, if still present. Used on cancellation.
func (r *Registry) Drop(h int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, h)
}

// Len reports the number of candidates currently awaiting a choice.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
