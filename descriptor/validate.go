package descriptor

import (
	"errors"
	"fmt"
)

// Validate checks the structural rules every descriptor in a corpus must
// satisfy: a module id, an assembly name, named entries that are unique
// within their table, and titled examples. All violations are returned
// joined.
func (d *Descriptor) Validate() error {
	var errs []error
	if d.ModuleID == "" {
		errs = append(errs, ErrModuleIDMissing)
	}
	if d.Assembly.Name == "" {
		errs = append(errs, fmt.Errorf("%w: module %s", ErrAssemblyNameMissing, d.ModuleID))
	}

	errs = append(errs, uniqueNames("channel", d.Channels, func(e ChannelEntry) string { return e.Name })...)
	errs = append(errs, uniqueNames("cell", d.Cells, func(e CellEntry) string { return e.Name })...)
	errs = append(errs, uniqueNames("registry", d.Registries, func(e RegistryEntry) string { return e.Name })...)
	errs = append(errs, uniqueNames("capability", d.Capabilities, func(e CapabilityEntry) string { return e.Name })...)

	for i, e := range d.Examples {
		if e.Title == "" {
			errs = append(errs, fmt.Errorf("%w: example #%d", ErrExampleTitleMissing, i+1))
		}
	}
	return errors.Join(errs...)
}

func uniqueNames[E any](table string, entries []E, name func(E) string) []error {
	var errs []error
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		n := name(e)
		switch {
		case n == "":
			errs = append(errs, fmt.Errorf("%w: %s #%d", ErrEntryNameMissing, table, i+1))
		case seen[n]:
			errs = append(errs, fmt.Errorf("%w: %s %q", ErrDuplicateEntry, table, n))
		}
		seen[n] = true
	}
	return errs
}
