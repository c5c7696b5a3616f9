package discovery

import "errors"

var (
	ErrNotIdle           = errors.New("discovery is already planning")
	ErrNotPlanning       = errors.New("discovery is not planning")
	ErrModuleIDRequired  = errors.New("discovery request needs a module id")
	ErrModuleMismatch    = errors.New("descriptor module id does not match the planned module")
	ErrInvalidDescriptor = errors.New("descriptor failed validation")
	ErrDuplicateModule   = errors.New("module has more than one descriptor in the corpus")
	ErrCorpusNil         = errors.New("discovery corpus is nil")
)
