package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoCodeAlone/modlink/descriptor"
)

func TestPlanProposePublishAndDraft(t *testing.T) {
	p := &Plan{ModuleID: "hud"}
	p.AddListenTo(Subscription{Module: "inventory", Channel: "ItemAdded", PayloadType: "Item"})
	p.AddReadWrite(Access{Module: "player", Name: "Health", Kind: KindCell, Type: "int", Pattern: AccessRead})
	p.AddImplement(Conformance{Module: "inventory", Capability: "Lootable"})

	pub := p.ProposePublish("HudToggled", "bool", "the player toggles the hud")
	assert.Equal(t, []string{"inventory", "player"}, pub.Listeners)

	p.AddExpose(Exposure{Name: "Visible", Kind: KindCell, Type: "bool", Shares: "whether the hud is drawn"})
	p.AddExpose(Exposure{Name: "Widgets", Kind: KindRegistry, Type: "*Widget", Shares: "active widgets"})

	d := p.Draft(descriptor.Assembly{Name: "hud", Version: "0.1.0"})
	assert.Equal(t, "hud", d.ModuleID)
	require.Len(t, d.Channels, 1)
	assert.Equal(t, descriptor.ChannelEntry{
		Name:               "HudToggled",
		PayloadType:        "bool",
		Trigger:            "the player toggles the hud",
		SuggestedListeners: []string{"inventory", "player"},
	}, d.Channels[0])
	assert.Equal(t, []descriptor.CellEntry{{Name: "Visible", Type: "bool", Purpose: "whether the hud is drawn"}}, d.Cells)
	assert.Equal(t, []descriptor.RegistryEntry{{Name: "Widgets", ItemType: "*Widget", Purpose: "active widgets"}}, d.Registries)
	assert.NoError(t, d.Validate())
}

func TestPlanSuggestedChangesDeduplicated(t *testing.T) {
	p := &Plan{ModuleID: "hud"}
	p.AddSuggestedChange("inventory", "expose item counts")
	p.AddSuggestedChange("inventory", "expose item counts")
	assert.Len(t, p.SuggestedChanges, 1)
}

func TestPlanMarkdown(t *testing.T) {
	empty := (&Plan{ModuleID: "inventory", Purpose: "track items"}).Markdown()
	assert.Contains(t, empty, "# Integration Plan: inventory")
	assert.Contains(t, empty, "## Listen To\n\n_None._")
	assert.Contains(t, empty, "## Bridge Needed\n\n**No**")

	p := &Plan{ModuleID: "hud"}
	p.AddListenTo(Subscription{Module: "inventory", Channel: "ItemAdded", PayloadType: "Item", Reason: "a | b"})
	p.RequireBridge("inventory and quests disagree on item ids")
	p.AddSuggestedChange("quests", "use inventory item ids")

	md := p.Markdown()
	assert.Contains(t, md, "| inventory | ItemAdded | Item | a \\| b |")
	assert.Contains(t, md, "**Yes**: inventory and quests disagree on item ids")
	assert.Contains(t, md, "- [ ] **quests**: use inventory item ids")
	assert.False(t, p.IsEmpty())
}
