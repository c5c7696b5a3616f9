package modlink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type enemy struct{ name string }

func TestRegistryAddIsIdempotent(t *testing.T) {
	r := NewRegistry[*enemy]("Enemies")
	x := &enemy{name: "goblin"}

	assert.True(t, r.Add(x))
	assert.False(t, r.Add(x))
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Remove(x))
	assert.False(t, r.Remove(x))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryMembershipByIdentity(t *testing.T) {
	r := NewRegistry[*enemy]("Enemies")
	a := &enemy{name: "orc"}
	b := &enemy{name: "orc"}

	r.Add(a)
	r.Add(b)
	assert.Equal(t, 2, r.Len(), "equal values, distinct instances")
	assert.True(t, r.Contains(a))

	r.Remove(a)
	assert.False(t, r.Contains(a))
	assert.True(t, r.Contains(b))
}

func TestRegistrySnapshotIsIsolated(t *testing.T) {
	r := NewRegistry[*enemy]("Enemies")
	a, b, c := &enemy{"a"}, &enemy{"b"}, &enemy{"c"}
	r.Add(a)
	r.Add(b)

	snap := r.Snapshot()
	var seen []*enemy
	for _, e := range snap {
		// members deactivating or spawning mid-iteration
		r.Remove(e)
		r.Add(c)
		seen = append(seen, e)
	}

	assert.Equal(t, []*enemy{a, b}, seen)
	assert.Equal(t, []*enemy{a, b}, snap)
	assert.Equal(t, []*enemy{c}, r.Snapshot())
}

func TestRegistrySnapshotInsertionOrder(t *testing.T) {
	r := NewRegistry[string]("Names")
	for _, n := range []string{"z", "a", "m"} {
		r.Add(n)
	}
	r.Remove("a")
	r.Add("a")
	assert.Equal(t, []string{"z", "m", "a"}, r.Snapshot())
	assert.Equal(t, "Names", r.ID())
}

func TestRegistryStaleEntryIsCallerObligation(t *testing.T) {
	r := NewRegistry[*enemy]("Enemies")
	func() {
		dead := &enemy{"forgotten"}
		r.Add(dead)
		// no Remove on deactivate
	}()
	assert.Equal(t, 1, r.Len())
}
