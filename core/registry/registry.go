// Package registry provides the thread-safe maps backing the children, the
// reservation, the session and the charge detail record indexes.
package registry

import (
	"cmp"
	"maps"
	"slices"
	"sync"
)

// Registry is a concurrent map with atomic try-add/try-get/try-remove
// operations. No lock spans more than one call.
type Registry[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New returns an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{items: make(map[K]V)}
}

// TryAdd inserts v under k unless k is already present.
func (r *Registry[K, V]) TryAdd(k K, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[k]; ok {
		return false
	}
	r.items[k] = v
	return true
}

// Set inserts or replaces the value stored under k.
func (r *Registry[K, V]) Set(k K, v V) {
	r.mu.Lock()
	r.items[k] = v
	r.mu.Unlock()
}

// Update replaces the value under k only if fn accepts the current one.
// It reports whether the value was replaced.
func (r *Registry[K, V]) Update(k K, fn func(cur V) (V, bool)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[k]
	if !ok {
		return false
	}
	next, ok := fn(cur)
	if ok {
		r.items[k] = next
	}
	return ok
}

// TryGet returns the value stored under k.
func (r *Registry[K, V]) TryGet(k K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[k]
	return v, ok
}

// Contains reports whether k is present.
func (r *Registry[K, V]) Contains(k K) bool {
	_, ok := r.TryGet(k)
	return ok
}

// TryRemove deletes k and returns the removed value.
func (r *Registry[K, V]) TryRemove(k K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[k]
	if ok {
		delete(r.items, k)
	}
	return v, ok
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Snapshot returns a copy of the entries.
func (r *Registry[K, V]) Snapshot() map[K]V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.items)
}

// Values returns a copy of the values in no particular order.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Collect(maps.Values(r.items))
}

// Range calls fn for every entry of a snapshot until fn returns false.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	for k, v := range r.Snapshot() {
		if !fn(k, v) {
			return
		}
	}
}

// SortedKeys returns the keys of r in ascending order.
func SortedKeys[K cmp.Ordered, V any](r *Registry[K, V]) []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.items))
}

// SortedValues returns the values of r ordered by key.
func SortedValues[K cmp.Ordered, V any](r *Registry[K, V]) []V {
	snap := r.Snapshot()
	keys := slices.Sorted(maps.Keys(snap))
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, snap[k])
	}
	return out
}
