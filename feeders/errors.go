package feeders

import "errors"

// Env feeder errors
var (
	ErrEnvInvalidStructure     = errors.New("env: invalid structure")
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrEnvConversion           = errors.New("env: type conversion error")
	ErrFieldCannotBeSet        = errors.New("field cannot be set")
)

// File feeder errors
var (
	ErrFileInvalidStructure = errors.New("expected pointer to struct")
	ErrFileRead             = errors.New("cannot read config file")
	ErrFileDecode           = errors.New("cannot decode config file")
)
