package modlink

import (
	"context"
	"slices"
	"sync"
)

// Resettable is anything the ScopeCoordinator can restore at a session
// boundary. Cell implements it.
type Resettable interface {
	ID() string
	Reset()
}

// Registration identifies a tracked entry inside a ScopeCoordinator.
// Registrations are allocated in increasing order; that order is the reset order.
type Registration uint64

type trackedCell struct {
	reg   Registration
	id    string
	reset func() bool // false once the cell has been garbage collected
}

// ScopeCoordinator tracks every live cell and resets them all when a new
// session starts. Cells register themselves on construction, so no cell can
// escape a reset while it is reachable.
//
// Cells constructed by NewCell are tracked through weak pointers: a cell that
// is dropped without Close does not leak, its entry is pruned on the next
// reset pass.
type ScopeCoordinator struct {
	mu      sync.Mutex
	cells   []*trackedCell
	nextReg Registration
	session uint64
	logger  Logger
}

// NewScopeCoordinator creates an empty coordinator.
func NewScopeCoordinator(logger Logger) *ScopeCoordinator {
	return &ScopeCoordinator{logger: loggerOrNop(logger)}
}

var (
	defaultCoordinator     *ScopeCoordinator
	defaultCoordinatorOnce sync.Once
)

// DefaultCoordinator returns the process-wide coordinator used by cells
// constructed with a nil coordinator.
func DefaultCoordinator() *ScopeCoordinator {
	defaultCoordinatorOnce.Do(func() {
		defaultCoordinator = NewScopeCoordinator(nil)
	})
	return defaultCoordinator
}

// SetLogger replaces the coordinator logger.
func (s *ScopeCoordinator) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = loggerOrNop(logger)
	s.mu.Unlock()
}

// RegisterCell tracks an arbitrary Resettable with a strong reference.
// NewCell calls the weak variant itself; this entry point exists for custom
// cell implementations.
func (s *ScopeCoordinator) RegisterCell(cell Resettable) Registration {
	return s.track(cell.ID(), func() bool {
		cell.Reset()
		return true
	})
}

func (s *ScopeCoordinator) track(id string, reset func() bool) Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextReg++
	reg := s.nextReg
	s.cells = append(s.cells, &trackedCell{reg: reg, id: id, reset: reset})
	s.logger.Debug("Cell registered", "cell", id, "registration", reg)
	return reg
}

// UnregisterCell drops a tracking entry. Unknown registrations are ignored.
func (s *ScopeCoordinator) UnregisterCell(reg Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.cells, func(c *trackedCell) bool { return c.reg == reg })
	if idx < 0 {
		return
	}
	s.logger.Debug("Cell unregistered", "cell", s.cells[idx].id, "registration", reg)
	s.cells = slices.Delete(s.cells, idx, idx+1)
}

// OnScopeEnter starts a new session: every tracked cell is reset to its
// initial value, in registration order. The reset is complete when this
// returns, so any Get issued afterwards observes the initial value.
func (s *ScopeCoordinator) OnScopeEnter(_ context.Context) {
	s.mu.Lock()
	s.session++
	session := s.session
	pass := slices.Clone(s.cells)
	logger := s.logger
	s.mu.Unlock()

	var dead []Registration
	// a session is never left half reset, so ctx is not consulted mid-pass
	for _, c := range pass {
		if !c.reset() {
			dead = append(dead, c.reg)
		}
	}

	if len(dead) > 0 {
		s.mu.Lock()
		s.cells = slices.DeleteFunc(s.cells, func(c *trackedCell) bool { return slices.Contains(dead, c.reg) })
		s.mu.Unlock()
	}

	logger.Info("Scope entered", "session", session, "cells", len(pass)-len(dead), "pruned", len(dead))
}

// OnScopeExit marks the end of a session. It deliberately leaves cell values
// untouched: the final state stays inspectable until the next OnScopeEnter.
func (s *ScopeCoordinator) OnScopeExit(_ context.Context) {
	s.mu.Lock()
	session := s.session
	logger := s.logger
	s.mu.Unlock()

	logger.Info("Scope exited", "session", session)
}

// Session returns the number of OnScopeEnter calls so far.
func (s *ScopeCoordinator) Session() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Len returns the number of tracked cells, including entries for collected
// cells that have not been pruned yet.
func (s *ScopeCoordinator) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cells)
}

// CellIDs lists tracked cell ids in reset order.
func (s *ScopeCoordinator) CellIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.cells))
	for _, c := range s.cells {
		ids = append(ids, c.id)
	}
	return ids
}
