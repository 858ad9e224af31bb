// Package keylock provides an optional in-process per-key mutex registry
// that lets the kernel serialize pipeline runs sharing a key (e.g. the
// same pipeline name triggered twice in close succession). Grounded on
// packages/com.r3e.services.gasbank/service/settlement.go's
// sync.Map-keyed-by-id bookkeeping, adapted from "have I seen this
// transaction id" to "who currently holds this key's lock."
//
// Correctness never depends on this registry: the idempotency markers
// (internal/pipeline/idempotency) and the warehouse's destination-table
// merge key are the actual safety net against a concurrent duplicate run.
// Registry only avoids the wasted work of two overlapping runs racing to
// write the same output.
package keylock

import "sync"

// Registry lazily creates one mutex per key.
type Registry struct {
	locks sync.Map // key string -> *sync.Mutex
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Lock blocks until the named key's lock is held, returning an unlock
// function the caller must defer.
func (r *Registry) Lock(key string) func() {
	value, _ := r.locks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
