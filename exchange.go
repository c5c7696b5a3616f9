package modlink

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/GoCodeAlone/modlink/descriptor"
)

// ArtifactKind names the three kinds of shared artifacts.
type ArtifactKind string

const (
	KindCell     ArtifactKind = "cell"
	KindChannel  ArtifactKind = "channel"
	KindRegistry ArtifactKind = "registry"
)

// ArtifactInfo describes an artifact declared on an Exchange.
type ArtifactInfo struct {
	Name               string       `json:"name"`
	Kind               ArtifactKind `json:"kind"`
	Type               string       `json:"type"`
	Owner              string       `json:"owner,omitempty"`
	Purpose            string       `json:"purpose,omitempty"`
	Trigger            string       `json:"trigger,omitempty"`
	SuggestedListeners []string     `json:"suggestedListeners,omitempty"`
}

// ArtifactState is a point-in-time view of an artifact for inspection.
// Current and Initial are set for cells, Members for registries and
// Subscribers for channels.
type ArtifactState struct {
	ArtifactInfo
	Current     any `json:"current,omitempty"`
	Initial     any `json:"initial,omitempty"`
	Members     int `json:"members,omitempty"`
	Subscribers int `json:"subscribers,omitempty"`
}

type artifact struct {
	info  ArtifactInfo
	typ   reflect.Type
	value any
}

// DeclareOption annotates a declared artifact.
type DeclareOption func(*ArtifactInfo)

// OwnedBy records the module that produced the artifact.
func OwnedBy(module string) DeclareOption {
	return func(i *ArtifactInfo) { i.Owner = module }
}

// WithPurpose records what the artifact is for.
func WithPurpose(purpose string) DeclareOption {
	return func(i *ArtifactInfo) { i.Purpose = purpose }
}

// WithTrigger records when a channel publishes.
func WithTrigger(trigger string) DeclareOption {
	return func(i *ArtifactInfo) { i.Trigger = trigger }
}

// WithSuggestedListeners records modules that may want to subscribe.
func WithSuggestedListeners(modules ...string) DeclareOption {
	return func(i *ArtifactInfo) { i.SuggestedListeners = append(i.SuggestedListeners, modules...) }
}

// Exchange is the named catalog through which modules share artifacts by
// reference. A name is bound to exactly one kind and one Go type: declaring
// or looking it up with anything else fails with ErrTypeMismatch, so type
// errors surface where the artifact is obtained rather than where it is used.
type Exchange struct {
	coord    *ScopeCoordinator
	reporter FailureReporter
	logger   Logger

	mu        sync.RWMutex
	artifacts map[string]*artifact
	order     []string
}

// NewExchange creates an exchange whose cells register with coord and whose
// channels report failures to reporter (the channel default when nil).
func NewExchange(coord *ScopeCoordinator, reporter FailureReporter, logger Logger) *Exchange {
	if coord == nil {
		coord = DefaultCoordinator()
	}
	return &Exchange{
		coord:     coord,
		reporter:  reporter,
		logger:    loggerOrNop(logger),
		artifacts: make(map[string]*artifact),
	}
}

// Coordinator returns the coordinator cells declared here register with.
func (x *Exchange) Coordinator() *ScopeCoordinator { return x.coord }

func typeName(t reflect.Type) string {
	if t.Kind() == reflect.Struct && t.NumField() == 0 && t.Name() == "" {
		return "Signal"
	}
	return t.String()
}

// declare returns the existing artifact bound to name, or stores the one
// built by create. Checking and storing happen under one lock so two modules
// declaring the same name race safely.
func (x *Exchange) declare(name string, kind ArtifactKind, typ reflect.Type, create func() any, opts []DeclareOption) (any, error) {
	if x == nil {
		return nil, ErrExchangeNil
	}
	if name == "" {
		return nil, ErrArtifactNameEmpty
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if existing, ok := x.artifacts[name]; ok {
		if existing.info.Kind != kind || existing.typ != typ {
			return nil, fmt.Errorf("%w: %q is a %s of %s, requested %s of %s",
				ErrTypeMismatch, name, existing.info.Kind, existing.info.Type, kind, typeName(typ))
		}
		return existing.value, nil
	}

	info := ArtifactInfo{Name: name, Kind: kind, Type: typeName(typ)}
	for _, opt := range opts {
		opt(&info)
	}
	a := &artifact{info: info, typ: typ, value: create()}
	x.artifacts[name] = a
	x.order = append(x.order, name)

	x.logger.Debug("Artifact declared", "name", name, "kind", kind, "type", info.Type, "owner", info.Owner)
	return a.value, nil
}

func (x *Exchange) lookup(name string, kind ArtifactKind, typ reflect.Type) (any, error) {
	if x == nil {
		return nil, ErrExchangeNil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	existing, ok := x.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrArtifactNotFound, kind, name)
	}
	if existing.info.Kind != kind || existing.typ != typ {
		return nil, fmt.Errorf("%w: %q is a %s of %s, requested %s of %s",
			ErrTypeMismatch, name, existing.info.Kind, existing.info.Type, kind, typeName(typ))
	}
	return existing.value, nil
}

// DeclareCell returns the cell bound to name, creating it with initial if
// absent. When the cell already exists its original initial value is kept.
func DeclareCell[T any](x *Exchange, name string, initial T, opts ...DeclareOption) (*Cell[T], error) {
	v, err := x.declare(name, KindCell, reflect.TypeFor[T](), func() any {
		return NewCell(x.coord, name, initial)
	}, opts)
	if err != nil {
		return nil, err
	}
	return v.(*Cell[T]), nil
}

// DeclareChannel returns the channel bound to name, creating it if absent.
func DeclareChannel[T any](x *Exchange, name string, opts ...DeclareOption) (*Channel[T], error) {
	v, err := x.declare(name, KindChannel, reflect.TypeFor[T](), func() any {
		copts := []ChannelOption{WithChannelLogger(x.logger)}
		if x.reporter != nil {
			copts = append(copts, WithFailureReporter(x.reporter))
		}
		return NewChannel[T](name, copts...)
	}, opts)
	if err != nil {
		return nil, err
	}
	return v.(*Channel[T]), nil
}

// DeclareRegistry returns the registry bound to name, creating it if absent.
func DeclareRegistry[T comparable](x *Exchange, name string, opts ...DeclareOption) (*Registry[T], error) {
	v, err := x.declare(name, KindRegistry, reflect.TypeFor[T](), func() any {
		return NewRegistry[T](name)
	}, opts)
	if err != nil {
		return nil, err
	}
	return v.(*Registry[T]), nil
}

// LookupCell returns an existing cell.
func LookupCell[T any](x *Exchange, name string) (*Cell[T], error) {
	v, err := x.lookup(name, KindCell, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return v.(*Cell[T]), nil
}

// LookupChannel returns an existing channel.
func LookupChannel[T any](x *Exchange, name string) (*Channel[T], error) {
	v, err := x.lookup(name, KindChannel, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return v.(*Channel[T]), nil
}

// LookupRegistry returns an existing registry.
func LookupRegistry[T comparable](x *Exchange, name string) (*Registry[T], error) {
	v, err := x.lookup(name, KindRegistry, reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	return v.(*Registry[T]), nil
}

// Artifacts lists declared artifacts in declaration order.
func (x *Exchange) Artifacts() []ArtifactInfo {
	x.mu.RLock()
	defer x.mu.RUnlock()

	infos := make([]ArtifactInfo, 0, len(x.order))
	for _, name := range x.order {
		infos = append(infos, x.artifacts[name].info)
	}
	return infos
}

// Inspect returns the current state of one artifact.
func (x *Exchange) Inspect(name string) (ArtifactState, error) {
	x.mu.RLock()
	a, ok := x.artifacts[name]
	x.mu.RUnlock()
	if !ok {
		return ArtifactState{}, fmt.Errorf("%w: %q", ErrArtifactNotFound, name)
	}

	state := ArtifactState{ArtifactInfo: a.info}
	switch v := a.value.(type) {
	case interface {
		currentAny() any
		initialAny() any
	}:
		state.Current = v.currentAny()
		state.Initial = v.initialAny()
	case interface{ lenAny() int }:
		if a.info.Kind == KindRegistry {
			state.Members = v.lenAny()
		} else {
			state.Subscribers = v.lenAny()
		}
	}
	return state, nil
}

// Release drops every artifact owned by module and closes its cells. Hosts
// call it when the owning module is torn down; references already handed
// out keep working but are no longer discoverable or reset.
func (x *Exchange) Release(module string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	released := 0
	kept := x.order[:0]
	for _, name := range x.order {
		a := x.artifacts[name]
		if a.info.Owner != module {
			kept = append(kept, name)
			continue
		}
		if c, ok := a.value.(interface{ Close() }); ok {
			c.Close()
		}
		delete(x.artifacts, name)
		released++
	}
	x.order = kept

	if released > 0 {
		x.logger.Debug("Artifacts released", "module", module, "count", released)
	}
	return released
}

// Describe builds the integration tables for everything module declared.
// The Assembly and Examples sections are left for the caller to fill in.
func (x *Exchange) Describe(module string) *descriptor.Descriptor {
	d := &descriptor.Descriptor{ModuleID: module}
	for _, info := range x.Artifacts() {
		if info.Owner != module {
			continue
		}
		switch info.Kind {
		case KindChannel:
			d.Channels = append(d.Channels, descriptor.ChannelEntry{
				Name:               info.Name,
				PayloadType:        info.Type,
				Trigger:            info.Trigger,
				SuggestedListeners: info.SuggestedListeners,
			})
		case KindCell:
			d.Cells = append(d.Cells, descriptor.CellEntry{
				Name:    info.Name,
				Type:    info.Type,
				Purpose: info.Purpose,
			})
		case KindRegistry:
			d.Registries = append(d.Registries, descriptor.RegistryEntry{
				Name:     info.Name,
				ItemType: info.Type,
				Purpose:  info.Purpose,
			})
		}
	}
	return d
}
