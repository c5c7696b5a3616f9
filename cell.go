package modlink

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

// Cell is a named, typed, shared value with a durable initial value and a
// volatile current value. Modules hand out *Cell references; any holder may
// read or write.
//
// Set never notifies anyone. A producer that needs change notification owns a
// Channel alongside the cell and publishes on it after Set.
//
// Only Initial is meant to be persisted or exported (for example into an
// integration descriptor); the current value lives for one session.
type Cell[T any] struct {
	id      string
	initial T

	mu      sync.RWMutex
	current T

	coord  *ScopeCoordinator
	reg    Registration
	closed atomic.Bool
}

// NewCell creates a cell whose current value starts at initial and registers
// it with coord (DefaultCoordinator when nil), so the next scope enter resets it.
func NewCell[T any](coord *ScopeCoordinator, id string, initial T) *Cell[T] {
	if coord == nil {
		coord = DefaultCoordinator()
	}
	c := &Cell[T]{
		id:      id,
		initial: initial,
		current: initial,
		coord:   coord,
	}

	wp := weak.Make(c)
	c.reg = coord.track(id, func() bool {
		live := wp.Value()
		if live == nil {
			return false
		}
		live.Reset()
		return true
	})
	runtime.AddCleanup(c, coord.UnregisterCell, c.reg)
	return c
}

// ID returns the cell name.
func (c *Cell[T]) ID() string { return c.id }

// Initial returns the value the cell was constructed with.
func (c *Cell[T]) Initial() T { return c.initial }

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Set overwrites the current value.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.current = v
	c.mu.Unlock()
}

// Update applies fn to the current value atomically and stores the result.
// Concurrent hosts use it for read-modify-write sequences such as counters.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = fn(c.current)
	return c.current
}

// Reset restores the initial value. The coordinator calls it on scope enter;
// tests may call it directly.
func (c *Cell[T]) Reset() {
	c.mu.Lock()
	c.current = c.initial
	c.mu.Unlock()
}

// Close removes the cell from its coordinator. The cell stays usable but is
// no longer reset at session boundaries. Close is idempotent, and a no-op on
// a zero Cell that never came from NewCell.
func (c *Cell[T]) Close() {
	if c.closed.CompareAndSwap(false, true) && c.coord != nil {
		c.coord.UnregisterCell(c.reg)
	}
}

func (c *Cell[T]) currentAny() any { return c.Get() }

func (c *Cell[T]) initialAny() any { return c.initial }
