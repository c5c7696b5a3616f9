package descriptor

import "errors"

var (
	ErrModuleIDMissing     = errors.New("descriptor module id is missing")
	ErrAssemblyNameMissing = errors.New("descriptor assembly name is missing")
	ErrEntryNameMissing    = errors.New("descriptor entry name is missing")
	ErrDuplicateEntry      = errors.New("descriptor entry is duplicated")
	ErrExampleTitleMissing = errors.New("descriptor example title is missing")
	ErrUnsupportedFormat   = errors.New("unsupported descriptor format")
	ErrMalformedMarkdown   = errors.New("malformed descriptor markdown")
	ErrManifestNameMissing = errors.New("manifest name is missing")
	ErrInvalidVersion      = errors.New("invalid semantic version")
	ErrNilDescriptors      = errors.New("descriptors cannot be nil")
	ErrNilDescriptor       = errors.New("descriptor cannot be nil")
)
