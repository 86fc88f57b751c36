// Package progress implements the process-wide registry mapping a
// client-supplied progress id to the live {uploaded, size} counters of an
// in-flight upload. It is the one piece of shared mutable state in the
// service. Uploads write their counter on every chunk while progress
// queries read rarely, so the counter is updated without the registry lock.
package progress

import (
	"sync"
	"sync/atomic"
)

// Entry tracks one in-flight upload's progress. Size is fixed at creation
// (the declared Content-Length); Uploaded is updated by the owning
// request's goroutine without taking the Registry's mutex and is read by
// other goroutines via Snapshot, which loads both fields atomically.
type Entry struct {
	size     int64
	uploaded atomic.Int64
}

// newEntry creates an Entry for a request declaring size bytes of body.
func newEntry(size int64) *Entry {
	return &Entry{size: size}
}

// Add adds n to the uploaded counter. Called by the owning request's
// goroutine on every body chunk; no lock is taken.
func (e *Entry) Add(n int64) {
	e.uploaded.Add(n)
}

// Snapshot is a point-in-time, atomically-consistent read of an Entry.
type Snapshot struct {
	Uploaded int64
	Size     int64
}

// Snapshot returns the current {uploaded, size} pair.
func (e *Entry) Snapshot() Snapshot {
	return Snapshot{Uploaded: e.uploaded.Load(), Size: e.size}
}

// Registry is a concurrent map from progress id to Entry, guarded by a
// single mutex for structural operations (Insert/Remove/Lookup). Mutating
// an Entry's Uploaded counter does not require the Registry's mutex.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry)}
}

// Insert creates and stores a new Entry for id with the given declared
// size, overwriting any existing entry for the same id. It returns the
// Entry so the caller (RecvFSM) can hold the same shared reference and
// mutate it lock-free.
func (r *Registry) Insert(id string, size int64) *Entry {
	e := newEntry(size)
	r.mu.Lock()
	r.entries[id] = e
	r.mu.Unlock()
	return e
}

// Lookup returns the Entry for id, or nil if absent.
func (r *Registry) Lookup(id string) *Entry {
	r.mu.Lock()
	e := r.entries[id]
	r.mu.Unlock()
	return e
}

// Remove deletes the entry for id, if any. Safe to call even if id is
// already absent (idempotent, so RequestLifecycle's unconditional teardown
// path never has to check first).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// Count reports the number of in-flight entries. For metrics/diagnostics.
func (r *Registry) Count() int {
	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	return n
}
