package modlink

import (
	"errors"
)

// Substrate errors
var (
	// Artifact catalog errors
	ErrTypeMismatch      = errors.New("artifact type mismatch")
	ErrArtifactNotFound  = errors.New("artifact not found")
	ErrArtifactNameEmpty = errors.New("artifact name is empty")
	ErrExchangeNil       = errors.New("exchange is nil")

	// Channel errors
	ErrSubscriberNil     = errors.New("subscriber is nil")
	ErrSubscriberIDEmpty = errors.New("subscriber id is empty")

	// Host errors
	ErrHostAlreadyStarted      = errors.New("host already started")
	ErrHostNotStarted          = errors.New("host not started")
	ErrModuleNil               = errors.New("module is nil")
	ErrModuleAlreadyRegistered = errors.New("module already registered")
	ErrCircularDependency      = errors.New("circular dependency detected")
	ErrModuleDependencyMissing = errors.New("module depends on non-existent module")

	// Observer errors
	ErrObserverNil  = errors.New("observer is nil")
	ErrInvalidEvent = errors.New("invalid event")

	// Configuration errors
	ErrConfigNil                  = errors.New("config is nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required field is missing")
	ErrConfigValidationFailed     = errors.New("config validation failed")
	ErrDefaultValueParseError     = errors.New("failed to parse default value")
	ErrInvalidLogLevel            = errors.New("invalid log level")
	ErrInvalidLogFormat           = errors.New("invalid log format")
	ErrInvalidSessionSchedule     = errors.New("invalid session schedule")
	ErrUnsupportedFormat          = errors.New("unsupported format")
)
