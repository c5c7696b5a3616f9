package descriptor

import (
	"fmt"
	"slices"
	"strings"
)

// ChangeKind classifies one difference between two descriptor versions.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change is one difference. Removing an entry or changing its payload or
// item type breaks dependents; everything else does not.
type Change struct {
	Kind        ChangeKind `json:"kind" yaml:"kind"`
	Table       string     `json:"table" yaml:"table"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	OldValue    string     `json:"old_value,omitempty" yaml:"old_value,omitempty"`
	NewValue    string     `json:"new_value,omitempty" yaml:"new_value,omitempty"`
	Breaking    bool       `json:"breaking" yaml:"breaking"`
}

// Diff is the result of comparing two versions of a module's descriptor.
type Diff struct {
	ModuleID   string      `json:"module_id" yaml:"module_id"`
	OldVersion string      `json:"old_version,omitempty" yaml:"old_version,omitempty"`
	NewVersion string      `json:"new_version,omitempty" yaml:"new_version,omitempty"`
	Changes    []Change    `json:"changes,omitempty" yaml:"changes,omitempty"`
	Summary    DiffSummary `json:"summary" yaml:"summary"`
}

// DiffSummary provides a high-level summary of changes
type DiffSummary struct {
	Breaking      int  `json:"breaking" yaml:"breaking"`
	Additions     int  `json:"additions" yaml:"additions"`
	Removals      int  `json:"removals" yaml:"removals"`
	Modifications int  `json:"modifications" yaml:"modifications"`
	HasBreaking   bool `json:"has_breaking" yaml:"has_breaking"`
}

// Empty reports whether the two versions are equivalent.
func (d *Diff) Empty() bool {
	return len(d.Changes) == 0
}

// BreakingChanges returns the subset of changes that break dependents.
func (d *Diff) BreakingChanges() []Change {
	var out []Change
	for _, c := range d.Changes {
		if c.Breaking {
			out = append(out, c)
		}
	}
	return out
}

// Differ compares two descriptor versions.
type Differ struct {
	// IgnoreProse skips purpose, trigger and listener text changes.
	IgnoreProse bool
}

// NewDiffer creates a differ that reports every change.
func NewDiffer() *Differ {
	return &Differ{}
}

// Compare returns the differences from old to new. Assembly and example
// changes are not reported; they do not affect integrations.
func (df *Differ) Compare(old, new *Descriptor) (*Diff, error) {
	if old == nil || new == nil {
		return nil, ErrNilDescriptors
	}

	diff := &Diff{
		ModuleID:   new.ModuleID,
		OldVersion: old.Assembly.Version,
		NewVersion: new.Assembly.Version,
	}

	if old.ModuleID != new.ModuleID {
		diff.Changes = append(diff.Changes, Change{
			Kind:        ChangeModified,
			Table:       "module",
			Name:        "module_id",
			Description: "module id changed",
			OldValue:    old.ModuleID,
			NewValue:    new.ModuleID,
			Breaking:    true,
		})
	}

	compareTable(diff, "channel", old.Channels, new.Channels,
		func(e ChannelEntry) string { return e.Name },
		func(o, n ChannelEntry) []Change {
			var cs []Change
			cs = appendField(cs, "payload type", o.PayloadType, n.PayloadType, true)
			if !df.IgnoreProse {
				cs = appendField(cs, "trigger", o.Trigger, n.Trigger, false)
				cs = appendField(cs, "suggested listeners", strings.Join(o.SuggestedListeners, ", "), strings.Join(n.SuggestedListeners, ", "), false)
			}
			return cs
		})
	compareTable(diff, "cell", old.Cells, new.Cells,
		func(e CellEntry) string { return e.Name },
		func(o, n CellEntry) []Change {
			var cs []Change
			cs = appendField(cs, "type", o.Type, n.Type, true)
			if !df.IgnoreProse {
				cs = appendField(cs, "purpose", o.Purpose, n.Purpose, false)
			}
			return cs
		})
	compareTable(diff, "registry", old.Registries, new.Registries,
		func(e RegistryEntry) string { return e.Name },
		func(o, n RegistryEntry) []Change {
			var cs []Change
			cs = appendField(cs, "item type", o.ItemType, n.ItemType, true)
			if !df.IgnoreProse {
				cs = appendField(cs, "purpose", o.Purpose, n.Purpose, false)
			}
			return cs
		})
	compareTable(diff, "capability", old.Capabilities, new.Capabilities,
		func(e CapabilityEntry) string { return e.Name },
		func(o, n CapabilityEntry) []Change {
			if df.IgnoreProse {
				return nil
			}
			var cs []Change
			cs = appendField(cs, "purpose", o.Purpose, n.Purpose, false)
			cs = appendField(cs, "when to implement", o.WhenToImplement, n.WhenToImplement, false)
			return cs
		})

	for _, c := range diff.Changes {
		switch c.Kind {
		case ChangeAdded:
			diff.Summary.Additions++
		case ChangeRemoved:
			diff.Summary.Removals++
		case ChangeModified:
			diff.Summary.Modifications++
		}
		if c.Breaking {
			diff.Summary.Breaking++
		}
	}
	diff.Summary.HasBreaking = diff.Summary.Breaking > 0
	return diff, nil
}

// appendField records a modification to one column of an entry; the table and
// entry name are filled in by compareTable.
func appendField(cs []Change, field, old, new string, breaking bool) []Change {
	if old == new {
		return cs
	}
	return append(cs, Change{
		Kind:        ChangeModified,
		Description: field + " changed",
		OldValue:    old,
		NewValue:    new,
		Breaking:    breaking,
	})
}

func compareTable[E any](diff *Diff, table string, old, new []E, name func(E) string, fields func(o, n E) []Change) {
	oldByName := make(map[string]E, len(old))
	for _, e := range old {
		oldByName[name(e)] = e
	}
	newNames := make(map[string]bool, len(new))

	for _, n := range new {
		key := name(n)
		newNames[key] = true
		o, ok := oldByName[key]
		if !ok {
			diff.Changes = append(diff.Changes, Change{
				Kind:        ChangeAdded,
				Table:       table,
				Name:        key,
				Description: fmt.Sprintf("new %s", table),
			})
			continue
		}
		for _, c := range fields(o, n) {
			c.Table, c.Name = table, key
			diff.Changes = append(diff.Changes, c)
		}
	}

	var removed []string
	for _, o := range old {
		if !newNames[name(o)] {
			removed = append(removed, name(o))
		}
	}
	slices.Sort(removed)
	for _, key := range removed {
		diff.Changes = append(diff.Changes, Change{
			Kind:        ChangeRemoved,
			Table:       table,
			Name:        key,
			Description: fmt.Sprintf("%s removed", table),
			Breaking:    true,
		})
	}
}

// Markdown renders the diff for review.
func (d *Diff) Markdown() string {
	var md strings.Builder

	fmt.Fprintf(&md, "# Descriptor Diff: %s\n\n", d.ModuleID)

	if d.OldVersion != "" || d.NewVersion != "" {
		md.WriteString("## Version Information\n")
		if d.OldVersion != "" {
			fmt.Fprintf(&md, "- **Old Version**: %s\n", d.OldVersion)
		}
		if d.NewVersion != "" {
			fmt.Fprintf(&md, "- **New Version**: %s\n", d.NewVersion)
		}
		md.WriteString("\n")
	}

	md.WriteString("## Summary\n\n")
	fmt.Fprintf(&md, "- **Breaking Changes**: %d\n", d.Summary.Breaking)
	fmt.Fprintf(&md, "- **Additions**: %d\n", d.Summary.Additions)
	fmt.Fprintf(&md, "- **Removals**: %d\n", d.Summary.Removals)
	fmt.Fprintf(&md, "- **Modifications**: %d\n", d.Summary.Modifications)
	if d.Summary.HasBreaking {
		md.WriteString("\n**Warning: dependents must be updated.**\n")
	}
	md.WriteString("\n")

	section := func(title string, keep func(Change) bool) {
		var rows []Change
		for _, c := range d.Changes {
			if keep(c) {
				rows = append(rows, c)
			}
		}
		if len(rows) == 0 {
			return
		}
		fmt.Fprintf(&md, "## %s\n\n", title)
		for _, c := range rows {
			fmt.Fprintf(&md, "- **%s** `%s`: %s", c.Table, c.Name, c.Description)
			if c.OldValue != "" || c.NewValue != "" {
				fmt.Fprintf(&md, " (`%s` -> `%s`)", c.OldValue, c.NewValue)
			}
			md.WriteString("\n")
		}
		md.WriteString("\n")
	}
	section("Breaking Changes", func(c Change) bool { return c.Breaking })
	section("Additions", func(c Change) bool { return c.Kind == ChangeAdded })
	section("Modifications", func(c Change) bool { return !c.Breaking && c.Kind == ChangeModified })

	return md.String()
}
