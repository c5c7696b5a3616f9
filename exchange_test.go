package modlink

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modlink/descriptor"
)

type item struct{ name string }

func TestExchangeDeclareReturnsSameArtifact(t *testing.T) {
	x := NewExchange(NewScopeCoordinator(nil), nil, nil)

	a, err := DeclareCell(x, "Gold", 10, OwnedBy("inventory"))
	require.NoError(t, err)
	b, err := DeclareCell(x, "Gold", 99)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 10, b.Initial(), "first declaration wins")

	ch1, err := DeclareChannel[*item](x, "ItemAdded")
	require.NoError(t, err)
	ch2, err := LookupChannel[*item](x, "ItemAdded")
	require.NoError(t, err)
	assert.Same(t, ch1, ch2)

	r1, err := DeclareRegistry[*item](x, "Items")
	require.NoError(t, err)
	r2, err := LookupRegistry[*item](x, "Items")
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}

func TestExchangeTypeMismatchAtCreation(t *testing.T) {
	x := NewExchange(NewScopeCoordinator(nil), nil, nil)
	_, err := DeclareCell(x, "Gold", 10)
	require.NoError(t, err)

	_, err = DeclareCell(x, "Gold", "ten")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = DeclareChannel[int](x, "Gold")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = LookupCell[float64](x, "Gold")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = LookupRegistry[int](x, "Gold")
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = LookupCell[int](x, "Silver")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	_, err = DeclareCell(x, "", 1)
	assert.ErrorIs(t, err, ErrArtifactNameEmpty)

	var nilExchange *Exchange
	_, err = DeclareCell(nilExchange, "Gold", 1)
	assert.ErrorIs(t, err, ErrExchangeNil)
}

func TestExchangeCellsJoinTheScope(t *testing.T) {
	coord := NewScopeCoordinator(nil)
	x := NewExchange(coord, nil, nil)
	gold, err := DeclareCell(x, "Gold", 10)
	require.NoError(t, err)

	gold.Set(0)
	x.Coordinator().OnScopeEnter(context.Background())
	assert.Equal(t, 10, gold.Get())
}

func TestExchangeChannelsUseReporter(t *testing.T) {
	sink := &failureSink{}
	x := NewExchange(NewScopeCoordinator(nil), sink, nil)
	ch, err := DeclareChannel[Signal](x, "Tick")
	require.NoError(t, err)
	_, err = ch.SubscribeFunc("bad", func(context.Context, Signal) error { panic("no") })
	require.NoError(t, err)

	ch.Publish(context.Background(), Signal{})
	require.Len(t, sink.failures, 1)
	assert.Equal(t, "Tick", sink.failures[0].ChannelID)

	infos := x.Artifacts()
	require.Len(t, infos, 1)
	assert.Equal(t, "Signal", infos[0].Type)
}

func TestExchangeInspect(t *testing.T) {
	x := NewExchange(NewScopeCoordinator(nil), nil, nil)
	gold, _ := DeclareCell(x, "Gold", 10, OwnedBy("inventory"), WithPurpose("coins"))
	gold.Set(3)
	items, _ := DeclareRegistry[*item](x, "Items")
	items.Add(&item{"sword"})
	ch, _ := DeclareChannel[*item](x, "ItemAdded")
	_, _ = ch.SubscribeFunc("hud", func(context.Context, *item) error { return nil })

	state, err := x.Inspect("Gold")
	require.NoError(t, err)
	assert.Equal(t, 3, state.Current)
	assert.Equal(t, 10, state.Initial)
	assert.Equal(t, "coins", state.Purpose)

	state, err = x.Inspect("Items")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Members)

	state, err = x.Inspect("ItemAdded")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Subscribers)
	assert.Equal(t, "*modlink.item", state.Type)

	_, err = x.Inspect("Nope")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestExchangeReleaseAndDescribe(t *testing.T) {
	coord := NewScopeCoordinator(nil)
	x := NewExchange(coord, nil, nil)

	_, err := DeclareChannel[*item](x, "ItemAdded", OwnedBy("inventory"),
		WithTrigger("an item enters the bag"), WithSuggestedListeners("hud", "audio"))
	require.NoError(t, err)
	_, err = DeclareCell(x, "Gold", 0, OwnedBy("inventory"), WithPurpose("coins carried"))
	require.NoError(t, err)
	_, err = DeclareRegistry[*item](x, "Items", OwnedBy("inventory"), WithPurpose("items in the bag"))
	require.NoError(t, err)
	_, err = DeclareCell(x, "Volume", 1.0, OwnedBy("audio"))
	require.NoError(t, err)

	d := x.Describe("inventory")
	assert.Equal(t, &descriptor.Descriptor{
		ModuleID: "inventory",
		Channels: []descriptor.ChannelEntry{{
			Name: "ItemAdded", PayloadType: "*modlink.item",
			Trigger: "an item enters the bag", SuggestedListeners: []string{"hud", "audio"},
		}},
		Cells:      []descriptor.CellEntry{{Name: "Gold", Type: "int", Purpose: "coins carried"}},
		Registries: []descriptor.RegistryEntry{{Name: "Items", ItemType: "*modlink.item", Purpose: "items in the bag"}},
	}, d)

	assert.Equal(t, 2, coord.Len())
	assert.Equal(t, 3, x.Release("inventory"))
	assert.Equal(t, 0, x.Release("inventory"))
	assert.Equal(t, 1, coord.Len(), "released cells leave the scope")

	infos := x.Artifacts()
	require.Len(t, infos, 1)
	assert.Equal(t, "Volume", infos[0].Name)
}

func TestExchangeDescribeWritesReadableDescriptor(t *testing.T) {
	x := NewExchange(NewScopeCoordinator(nil), nil, nil)

	_, err := DeclareChannel[*item](x, "ItemAdded", OwnedBy("inventory"),
		WithTrigger("an item enters the bag\r\nor a chest"),
		WithSuggestedListeners(" hud ", "quest|log", "<br>", "loot, drops"))
	require.NoError(t, err)
	_, err = DeclareCell(x, "Gold", 0, OwnedBy("inventory"), WithPurpose("  coins carried  "))
	require.NoError(t, err)
	_, err = DeclareRegistry[*item](x, "Items", OwnedBy("inventory"), WithPurpose("-"))
	require.NoError(t, err)

	d := x.Describe("inventory")
	d.Assembly = descriptor.Assembly{Name: "inventory", Version: "1.0.0"}
	d.Examples = []descriptor.Example{{Title: "Count gold", Code: "gold.Get()\r\n"}}

	want := d.Clone()
	want.Normalize()
	assert.Equal(t, "coins carried", want.Cells[0].Purpose)
	assert.Equal(t, []string{"hud", "quest|log", "<br>", "loot, drops"}, want.Channels[0].SuggestedListeners)

	dir := t.TempDir()
	for _, f := range []descriptor.Format{descriptor.FormatMarkdown, descriptor.FormatYAML, descriptor.FormatTOML, descriptor.FormatJSON} {
		path := filepath.Join(dir, descriptor.FileName("inventory", f))
		require.NoError(t, descriptor.WriteFile(path, d))

		got, err := descriptor.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, got, string(f))
	}
}
