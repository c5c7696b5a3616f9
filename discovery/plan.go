package discovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/GoCodeAlone/modlink/descriptor"
)

// AccessPattern says how a new module uses an existing cell or registry.
type AccessPattern string

const (
	AccessRead      AccessPattern = "read"
	AccessWrite     AccessPattern = "write"
	AccessReadWrite AccessPattern = "read/write"
	AccessIterate   AccessPattern = "iterate"
	AccessMember    AccessPattern = "member"
)

// Subscription is an existing channel the new module will listen to.
type Subscription struct {
	Module      string `json:"module" yaml:"module"`
	Channel     string `json:"channel" yaml:"channel"`
	PayloadType string `json:"payload_type" yaml:"payload_type"`
	Reason      string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Publication is a new channel and the modules that might care about it.
type Publication struct {
	Channel     string   `json:"channel" yaml:"channel"`
	PayloadType string   `json:"payload_type" yaml:"payload_type"`
	Trigger     string   `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Listeners   []string `json:"listeners,omitempty" yaml:"listeners,omitempty"`
}

// Access is an existing cell or registry and how it will be used.
type Access struct {
	Module  string        `json:"module" yaml:"module"`
	Name    string        `json:"name" yaml:"name"`
	Kind    ItemKind      `json:"kind" yaml:"kind"`
	Type    string        `json:"type" yaml:"type"`
	Pattern AccessPattern `json:"pattern" yaml:"pattern"`
	Reason  string        `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Exposure is a new cell or registry and what it shares.
type Exposure struct {
	Name   string   `json:"name" yaml:"name"`
	Kind   ItemKind `json:"kind" yaml:"kind"`
	Type   string   `json:"type" yaml:"type"`
	Shares string   `json:"shares,omitempty" yaml:"shares,omitempty"`
}

// Conformance is an existing capability contract the new module implements.
type Conformance struct {
	Module     string `json:"module" yaml:"module"`
	Capability string `json:"capability" yaml:"capability"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Bridge records whether existing artifacts are insufficient and a bridge
// module is needed.
type Bridge struct {
	Needed        bool   `json:"needed" yaml:"needed"`
	Justification string `json:"justification,omitempty" yaml:"justification,omitempty"`
}

// SuggestedChange is one checklist item against an existing module.
type SuggestedChange struct {
	Module string `json:"module" yaml:"module"`
	Change string `json:"change" yaml:"change"`
	Done   bool   `json:"done" yaml:"done"`
}

// Plan is the integration plan for a new module. It is edited by a single
// designer and is not safe for concurrent mutation.
type Plan struct {
	ModuleID string `json:"module_id" yaml:"module_id"`
	Purpose  string `json:"purpose,omitempty" yaml:"purpose,omitempty"`

	ListenTo         []Subscription    `json:"listen_to" yaml:"listen_to"`
	Publish          []Publication     `json:"publish" yaml:"publish"`
	ReadWrite        []Access          `json:"read_write" yaml:"read_write"`
	Expose           []Exposure        `json:"expose" yaml:"expose"`
	Implement        []Conformance     `json:"implement" yaml:"implement"`
	BridgeNeeded     Bridge            `json:"bridge_needed" yaml:"bridge_needed"`
	SuggestedChanges []SuggestedChange `json:"suggested_changes" yaml:"suggested_changes"`
}

// IsEmpty reports whether no section holds an entry and no bridge is needed.
func (p *Plan) IsEmpty() bool {
	return len(p.ListenTo) == 0 && len(p.Publish) == 0 && len(p.ReadWrite) == 0 &&
		len(p.Expose) == 0 && len(p.Implement) == 0 && !p.BridgeNeeded.Needed &&
		len(p.SuggestedChanges) == 0
}

// AddListenTo plans a subscription to an existing channel.
func (p *Plan) AddListenTo(s Subscription) {
	p.ListenTo = append(p.ListenTo, s)
}

// AddPublish plans a new channel.
func (p *Plan) AddPublish(pub Publication) {
	p.Publish = append(p.Publish, pub)
}

// ProposePublish plans a new channel and fills its listeners with every
// existing module the plan already integrates with.
func (p *Plan) ProposePublish(channel, payloadType, trigger string) Publication {
	pub := Publication{Channel: channel, PayloadType: payloadType, Trigger: trigger, Listeners: p.relatedModules()}
	p.AddPublish(pub)
	return pub
}

// AddReadWrite plans access to an existing cell or registry.
func (p *Plan) AddReadWrite(a Access) {
	p.ReadWrite = append(p.ReadWrite, a)
}

// AddExpose plans a new cell or registry.
func (p *Plan) AddExpose(e Exposure) {
	p.Expose = append(p.Expose, e)
}

// AddImplement plans conformance to an existing capability contract.
func (p *Plan) AddImplement(c Conformance) {
	p.Implement = append(p.Implement, c)
}

// RequireBridge marks the plan as needing a bridge module.
func (p *Plan) RequireBridge(justification string) {
	p.BridgeNeeded = Bridge{Needed: true, Justification: justification}
}

// AddSuggestedChange appends a checklist item unless an identical one exists.
func (p *Plan) AddSuggestedChange(module, change string) {
	for _, c := range p.SuggestedChanges {
		if c.Module == module && c.Change == change {
			return
		}
	}
	p.SuggestedChanges = append(p.SuggestedChanges, SuggestedChange{Module: module, Change: change})
}

func (p *Plan) relatedModules() []string {
	var mods []string
	add := func(m string) {
		if m != "" && m != p.ModuleID && !slices.Contains(mods, m) {
			mods = append(mods, m)
		}
	}
	for _, s := range p.ListenTo {
		add(s.Module)
	}
	for _, a := range p.ReadWrite {
		add(a.Module)
	}
	for _, c := range p.Implement {
		add(c.Module)
	}
	slices.Sort(mods)
	return mods
}

// Draft builds the new module's descriptor from the Publish and Expose
// sections. Capabilities and examples are left for the designer.
func (p *Plan) Draft(assembly descriptor.Assembly) *descriptor.Descriptor {
	d := &descriptor.Descriptor{ModuleID: p.ModuleID, Assembly: assembly}
	for _, pub := range p.Publish {
		d.Channels = append(d.Channels, descriptor.ChannelEntry{
			Name:               pub.Channel,
			PayloadType:        pub.PayloadType,
			Trigger:            pub.Trigger,
			SuggestedListeners: slices.Clone(pub.Listeners),
		})
	}
	for _, e := range p.Expose {
		switch e.Kind {
		case KindRegistry:
			d.Registries = append(d.Registries, descriptor.RegistryEntry{Name: e.Name, ItemType: e.Type, Purpose: e.Shares})
		default:
			d.Cells = append(d.Cells, descriptor.CellEntry{Name: e.Name, Type: e.Type, Purpose: e.Shares})
		}
	}
	d.Normalize()
	return d
}

// Markdown renders the plan for review.
func (p *Plan) Markdown() string {
	var md strings.Builder

	fmt.Fprintf(&md, "# Integration Plan: %s\n\n", p.ModuleID)
	if p.Purpose != "" {
		fmt.Fprintf(&md, "%s\n\n", p.Purpose)
	}

	table(&md, "Listen To", []string{"Module", "Channel", "Payload Type", "Reason"}, len(p.ListenTo), func(i int) []string {
		s := p.ListenTo[i]
		return []string{s.Module, s.Channel, s.PayloadType, s.Reason}
	})
	table(&md, "Publish", []string{"Channel", "Payload Type", "Trigger", "Who Might Care"}, len(p.Publish), func(i int) []string {
		pub := p.Publish[i]
		return []string{pub.Channel, pub.PayloadType, pub.Trigger, strings.Join(pub.Listeners, ", ")}
	})
	table(&md, "Read / Write", []string{"Module", "Name", "Kind", "Type", "Access", "Reason"}, len(p.ReadWrite), func(i int) []string {
		a := p.ReadWrite[i]
		return []string{a.Module, a.Name, string(a.Kind), a.Type, string(a.Pattern), a.Reason}
	})
	table(&md, "Expose", []string{"Name", "Kind", "Type", "Shares"}, len(p.Expose), func(i int) []string {
		e := p.Expose[i]
		return []string{e.Name, string(e.Kind), e.Type, e.Shares}
	})
	table(&md, "Implement", []string{"Module", "Capability", "Reason"}, len(p.Implement), func(i int) []string {
		c := p.Implement[i]
		return []string{c.Module, c.Capability, c.Reason}
	})

	md.WriteString("## Bridge Needed\n\n")
	if p.BridgeNeeded.Needed {
		fmt.Fprintf(&md, "**Yes**: %s\n\n", p.BridgeNeeded.Justification)
	} else {
		md.WriteString("**No**\n\n")
	}

	md.WriteString("## Suggested Changes\n\n")
	if len(p.SuggestedChanges) == 0 {
		md.WriteString("_None._\n")
	}
	for _, c := range p.SuggestedChanges {
		box := " "
		if c.Done {
			box = "x"
		}
		fmt.Fprintf(&md, "- [%s] **%s**: %s\n", box, c.Module, c.Change)
	}
	return md.String()
}

func table(md *strings.Builder, title string, header []string, n int, row func(int) []string) {
	fmt.Fprintf(md, "## %s\n\n", title)
	if n == 0 {
		md.WriteString("_None._\n\n")
		return
	}
	md.WriteString("| " + strings.Join(header, " | ") + " |\n")
	md.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")
	for i := range n {
		cells := row(i)
		for j, c := range cells {
			c = strings.ReplaceAll(c, "|", `\|`)
			cells[j] = strings.ReplaceAll(c, "\n", "<br>")
		}
		md.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	md.WriteString("\n")
}
