// Package reposync provides a process-wide registry of per-repository
// exclusive locks, so concurrent connections touching different
// repositories never block each other while writes to the same
// repository are totally ordered.
package reposync

import "sync"

// Registry maps a repository path to the mutex guarding writes to it.
// Lookup/insert is itself behind a short-held global lock; the returned
// per-repo lock is acquired by the caller only after the global lock is
// released.
type Registry struct {
	mu    sync.Mutex
	repos map[string]*sync.Mutex
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[string]*sync.Mutex)}
}

// mutexFor returns the mutex for repo, creating it on first use.
func (r *Registry) mutexFor(repo string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.repos[repo]
	if !ok {
		m = &sync.Mutex{}
		r.repos[repo] = m
	}
	return m
}

// Guard is a held lock on one repository, released by calling Release.
type Guard struct {
	m *sync.Mutex
}

// Release unlocks the repository's mutex. Calling Release twice is a
// fatal runtime error, as with sync.Mutex's own double unlock.
func (g *Guard) Release() {
	g.m.Unlock()
}

// Acquire blocks until the exclusive lock for repo is held by no other
// worker, then returns a guard the caller must Release. Readers bypass
// the registry entirely; only writers need acquire it.
func (r *Registry) Acquire(repo string) *Guard {
	m := r.mutexFor(repo)
	m.Lock()
	return &Guard{m: m}
}

// TryAcquire attempts a non-blocking acquisition, returning (nil, false)
// if the repository is already locked by another worker.
func (r *Registry) TryAcquire(repo string) (*Guard, bool) {
	m := r.mutexFor(repo)
	if !m.TryLock() {
		return nil, false
	}
	return &Guard{m: m}, true
}
