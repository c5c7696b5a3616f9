// Package descriptor models a module's integration descriptor: the published
// list of channels, cells, registries and capability contracts other modules
// may integrate with, plus the module manifest used to compute capability
// flags.
//
// Descriptors are produced once per module version and are read-only to
// every other module. The canonical file form is Markdown with fixed tables
// (see WriteMarkdown); YAML, TOML and JSON encodings carry the same fields.
package descriptor

import (
	"slices"
	"strings"
)

// Descriptor is one module's integration surface.
type Descriptor struct {
	ModuleID     string            `yaml:"module_id" toml:"module_id" json:"module_id"`
	Assembly     Assembly          `yaml:"assembly" toml:"assembly" json:"assembly"`
	Channels     []ChannelEntry    `yaml:"channels,omitempty" toml:"channels,omitempty" json:"channels,omitempty"`
	Cells        []CellEntry       `yaml:"cells,omitempty" toml:"cells,omitempty" json:"cells,omitempty"`
	Registries   []RegistryEntry   `yaml:"registries,omitempty" toml:"registries,omitempty" json:"registries,omitempty"`
	Capabilities []CapabilityEntry `yaml:"capabilities,omitempty" toml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Examples     []Example         `yaml:"examples,omitempty" toml:"examples,omitempty" json:"examples,omitempty"`
}

// Assembly identifies the code that implements the module.
type Assembly struct {
	Name       string `yaml:"name" toml:"name" json:"name"`
	Version    string `yaml:"version,omitempty" toml:"version,omitempty" json:"version,omitempty"`
	ImportPath string `yaml:"import_path,omitempty" toml:"import_path,omitempty" json:"import_path,omitempty"`
}

// ChannelEntry describes a published channel (event).
type ChannelEntry struct {
	Name               string   `yaml:"name" toml:"name" json:"name"`
	PayloadType        string   `yaml:"payload_type" toml:"payload_type" json:"payload_type"`
	Trigger            string   `yaml:"trigger,omitempty" toml:"trigger,omitempty" json:"trigger,omitempty"`
	SuggestedListeners []string `yaml:"suggested_listeners,omitempty" toml:"suggested_listeners,omitempty" json:"suggested_listeners,omitempty"`
}

// CellEntry describes a shared state cell.
type CellEntry struct {
	Name    string `yaml:"name" toml:"name" json:"name"`
	Type    string `yaml:"type" toml:"type" json:"type"`
	Purpose string `yaml:"purpose,omitempty" toml:"purpose,omitempty" json:"purpose,omitempty"`
}

// RegistryEntry describes an instance registry.
type RegistryEntry struct {
	Name     string `yaml:"name" toml:"name" json:"name"`
	ItemType string `yaml:"item_type" toml:"item_type" json:"item_type"`
	Purpose  string `yaml:"purpose,omitempty" toml:"purpose,omitempty" json:"purpose,omitempty"`
}

// CapabilityEntry describes a capability contract (an interface other
// modules may implement so this module can work with them).
type CapabilityEntry struct {
	Name            string `yaml:"name" toml:"name" json:"name"`
	Purpose         string `yaml:"purpose,omitempty" toml:"purpose,omitempty" json:"purpose,omitempty"`
	WhenToImplement string `yaml:"when_to_implement,omitempty" toml:"when_to_implement,omitempty" json:"when_to_implement,omitempty"`
}

// Example is one integration snippet.
type Example struct {
	Title string `yaml:"title" toml:"title" json:"title"`
	Code  string `yaml:"code" toml:"code" json:"code"`
}

// Empty reports whether the descriptor exposes nothing to integrate with.
func (d *Descriptor) Empty() bool {
	return len(d.Channels) == 0 && len(d.Cells) == 0 && len(d.Registries) == 0 && len(d.Capabilities) == 0
}

// Normalize trims surrounding whitespace, converts CRLF and lone CR line
// endings to LF, collapses whitespace in example titles, drops trailing
// newlines from example code and turns empty tables into nil, so every
// encoding round-trips to an identical value. The encoders in this package
// write a normalized copy; the decoders normalize what they read.
func (d *Descriptor) Normalize() {
	d.ModuleID = clean(d.ModuleID)
	d.Assembly.Name = clean(d.Assembly.Name)
	d.Assembly.Version = clean(d.Assembly.Version)
	d.Assembly.ImportPath = clean(d.Assembly.ImportPath)

	for i := range d.Channels {
		c := &d.Channels[i]
		c.Name = clean(c.Name)
		c.PayloadType = clean(c.PayloadType)
		c.Trigger = clean(c.Trigger)
		listeners := c.SuggestedListeners[:0]
		for _, l := range c.SuggestedListeners {
			if l = clean(l); l != "" {
				listeners = append(listeners, l)
			}
		}
		c.SuggestedListeners = nilIfEmpty(listeners)
	}
	for i := range d.Cells {
		c := &d.Cells[i]
		c.Name = clean(c.Name)
		c.Type = clean(c.Type)
		c.Purpose = clean(c.Purpose)
	}
	for i := range d.Registries {
		r := &d.Registries[i]
		r.Name = clean(r.Name)
		r.ItemType = clean(r.ItemType)
		r.Purpose = clean(r.Purpose)
	}
	for i := range d.Capabilities {
		c := &d.Capabilities[i]
		c.Name = clean(c.Name)
		c.Purpose = clean(c.Purpose)
		c.WhenToImplement = clean(c.WhenToImplement)
	}
	for i := range d.Examples {
		e := &d.Examples[i]
		e.Title = strings.Join(strings.Fields(e.Title), " ")
		e.Code = strings.TrimRight(unifyNewlines(e.Code), "\n")
	}

	d.Channels = nilIfEmpty(d.Channels)
	d.Cells = nilIfEmpty(d.Cells)
	d.Registries = nilIfEmpty(d.Registries)
	d.Capabilities = nilIfEmpty(d.Capabilities)
	d.Examples = nilIfEmpty(d.Examples)
}

// Clone returns a deep copy.
func (d *Descriptor) Clone() *Descriptor {
	out := *d
	out.Channels = slices.Clone(d.Channels)
	for i := range out.Channels {
		out.Channels[i].SuggestedListeners = slices.Clone(out.Channels[i].SuggestedListeners)
	}
	out.Cells = slices.Clone(d.Cells)
	out.Registries = slices.Clone(d.Registries)
	out.Capabilities = slices.Clone(d.Capabilities)
	out.Examples = slices.Clone(d.Examples)
	return &out
}

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func unifyNewlines(s string) string { return newlines.Replace(s) }

func clean(s string) string { return strings.TrimSpace(unifyNewlines(s)) }

func nilIfEmpty[S ~[]E, E any](s S) S {
	if len(s) == 0 {
		return nil
	}
	return s
}
