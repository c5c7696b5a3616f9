package modlink

import (
	"slices"
	"sync"
)

// Registry is a named set of currently-active instances. Instances add
// themselves when they activate and remove themselves when they deactivate;
// the registry never discovers members on its own.
//
// Membership is decided by ==, so T should be a pointer (or an interface
// holding pointers) to get identity semantics. Interface-typed registries
// panic if a member's dynamic type is not comparable.
//
// The registry cannot observe a member's lifetime. A member destroyed without
// a matching Remove stays listed: pairing Add-on-activate with
// Remove-on-deactivate is the caller's obligation.
type Registry[T comparable] struct {
	id string

	mu    sync.RWMutex
	items []T
	index map[T]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry[T comparable](id string) *Registry[T] {
	return &Registry[T]{
		id:    id,
		index: make(map[T]struct{}),
	}
}

// ID returns the registry name.
func (r *Registry[T]) ID() string { return r.id }

// Add inserts item if absent. Adding a present item is a no-op; the return
// value reports whether the set changed.
func (r *Registry[T]) Add(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[item]; ok {
		return false
	}
	r.index[item] = struct{}{}
	r.items = append(r.items, item)
	return true
}

// Remove deletes item if present. Removing an absent item is a no-op.
func (r *Registry[T]) Remove(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.index[item]; !ok {
		return false
	}
	delete(r.index, item)
	r.items = slices.DeleteFunc(r.items, func(v T) bool { return v == item })
	return true
}

// Contains reports whether item is currently registered.
func (r *Registry[T]) Contains(item T) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[item]
	return ok
}

// Len returns the number of registered items.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Snapshot returns a point-in-time copy of the members. Later Add/Remove
// calls never affect a snapshot already taken. Members appear in insertion
// order; dependents should treat that order as stable within one snapshot
// only.
func (r *Registry[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.items)
}

func (r *Registry[T]) lenAny() int { return r.Len() }
