package modlink

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellResetRestoresInitial(t *testing.T) {
	coord := NewScopeCoordinator(nil)
	c := NewCell(coord, "Score", 10)

	assert.Equal(t, 10, c.Get())
	c.Set(25)
	assert.Equal(t, 25, c.Get())
	assert.Equal(t, 10, c.Initial(), "initial never changes")

	c.Reset()
	assert.Equal(t, 10, c.Get())
}

func TestCellSetHasNoSideEffects(t *testing.T) {
	coord := NewScopeCoordinator(nil)
	a := NewCell(coord, "A", "x")
	b := NewCell(coord, "B", "y")

	a.Set("changed")
	assert.Equal(t, "changed", a.Get())
	assert.Equal(t, "y", b.Get())
	assert.Equal(t, uint64(0), coord.Session())
}

func TestCellSharedByReference(t *testing.T) {
	c := NewCell(NewScopeCoordinator(nil), "Lives", 3)
	producer, consumer := c, c

	producer.Set(2)
	assert.Equal(t, 2, consumer.Get())
}

func TestCellUpdateIsAtomic(t *testing.T) {
	c := NewCell(NewScopeCoordinator(nil), "Counter", 0)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Update(func(v int) int { return v + 1 })
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5000, c.Get())
}

func TestCellCloseStopsReset(t *testing.T) {
	coord := NewScopeCoordinator(nil)
	c := NewCell(coord, "Temp", 1)
	assert.Equal(t, 1, coord.Len())

	c.Close()
	c.Close()
	assert.Equal(t, 0, coord.Len())

	c.Set(7)
	coord.OnScopeEnter(context.Background())
	assert.Equal(t, 7, c.Get(), "closed cells keep their value")
}

func TestCellNilCoordinatorUsesDefault(t *testing.T) {
	before := DefaultCoordinator().Len()
	c := NewCell[bool](nil, "Flag", false)
	defer c.Close()

	assert.Equal(t, before+1, DefaultCoordinator().Len())
	assert.Contains(t, DefaultCoordinator().CellIDs(), "Flag")
}

func TestZeroCellCloseIsSafe(t *testing.T) {
	var c Cell[int]
	assert.NotPanics(t, func() {
		c.Close()
		c.Close()
	})
	c.Set(4)
	assert.Equal(t, 4, c.Get())
}
