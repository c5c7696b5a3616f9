// Package discovery runs the integration discovery protocol: before a new
// module is designed every existing descriptor is read and classified into
// an integration plan; once the module is built its own descriptor is
// written back to the corpus.
//
// The process is a two state machine, Idle -> Planning -> Idle. A missing
// corpus is the first-module case and yields an empty plan.
package discovery

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/GoCodeAlone/modlink"
	"github.com/GoCodeAlone/modlink/descriptor"
)

// State of a discovery Process.
type State int

const (
	StateIdle State = iota
	StatePlanning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlanning:
		return "planning"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Request describes the module about to be designed.
type Request struct {
	ModuleID string
	Purpose  string
	Keywords []string
}

// Result is returned by Complete.
type Result struct {
	Descriptor *descriptor.Descriptor
	// Diff against the module's previous descriptor; nil for a first version.
	Diff *descriptor.Diff
}

const eventSource = "modlink.discovery"

// Process is the discovery state machine. It is safe for concurrent use,
// but only one plan can be in progress at a time.
type Process struct {
	corpus     Corpus
	classifier Classifier
	differ     *descriptor.Differ
	logger     modlink.Logger
	subject    modlink.Subject

	mu       sync.Mutex
	state    State
	req      Request
	existing []*descriptor.Descriptor
	previous *descriptor.Descriptor
	plan     *Plan
}

// Option configures a Process.
type Option func(*Process)

// WithClassifier replaces the default KeywordClassifier.
func WithClassifier(c Classifier) Option {
	return func(p *Process) {
		if c != nil {
			p.classifier = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l modlink.Logger) Option {
	return func(p *Process) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSubject emits discovery CloudEvents to the given subject.
func WithSubject(s modlink.Subject) Option {
	return func(p *Process) {
		p.subject = s
	}
}

// NewProcess creates an idle process over corpus.
func NewProcess(corpus Corpus, opts ...Option) (*Process, error) {
	if corpus == nil {
		return nil, ErrCorpusNil
	}
	p := &Process{
		corpus:     corpus,
		classifier: NewKeywordClassifier(),
		differ:     descriptor.NewDiffer(),
		logger:     modlink.NopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// State returns the current state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Plan returns the plan in progress, or nil when idle.
func (p *Process) Plan() *Plan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan
}

// Existing returns the descriptors read by Begin, excluding the planned
// module's own previous descriptor.
func (p *Process) Existing() []*descriptor.Descriptor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.existing
}

// Begin reads the corpus, classifies every existing channel, cell, registry
// and capability against req and enters Planning. Relevant channels go to
// ListenTo, cells and registries to ReadWrite, capabilities to Implement.
func (p *Process) Begin(ctx context.Context, req Request) (*Plan, error) {
	if req.ModuleID == "" {
		return nil, ErrModuleIDRequired
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateIdle {
		return nil, fmt.Errorf("%w: module %s", ErrNotIdle, p.req.ModuleID)
	}

	corpus, err := p.corpus.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor corpus: %w", err)
	}

	plan := &Plan{ModuleID: req.ModuleID, Purpose: req.Purpose}
	var existing []*descriptor.Descriptor
	var previous *descriptor.Descriptor
	for _, d := range corpus {
		if d.ModuleID == req.ModuleID {
			previous = d
			continue
		}
		existing = append(existing, d)
		for _, item := range Items(d) {
			decision := p.classifier.Classify(ctx, req, item)
			if !decision.Relevant {
				continue
			}
			p.place(plan, req, item, decision)
		}
	}

	p.state = StatePlanning
	p.req = req
	p.existing = existing
	p.previous = previous
	p.plan = plan

	p.logger.Info("Discovery planning", "module", req.ModuleID, "descriptors", len(existing),
		"listenTo", len(plan.ListenTo), "readWrite", len(plan.ReadWrite), "implement", len(plan.Implement))
	p.emit(ctx, modlink.EventTypeDiscoveryPlanning, map[string]any{
		"module":      req.ModuleID,
		"descriptors": len(existing),
	})
	return plan, nil
}

func (p *Process) place(plan *Plan, req Request, item Item, decision Decision) {
	switch item.Kind {
	case KindChannel:
		plan.AddListenTo(Subscription{Module: item.Module, Channel: item.Name, PayloadType: item.Type, Reason: decision.Reason})
		if !slices.Contains(item.Listeners, req.ModuleID) {
			plan.AddSuggestedChange(item.Module, fmt.Sprintf("list %s as a suggested listener of %s", req.ModuleID, item.Name))
		}
	case KindCell:
		plan.AddReadWrite(Access{Module: item.Module, Name: item.Name, Kind: KindCell, Type: item.Type, Pattern: AccessRead, Reason: decision.Reason})
	case KindRegistry:
		plan.AddReadWrite(Access{Module: item.Module, Name: item.Name, Kind: KindRegistry, Type: item.Type, Pattern: AccessIterate, Reason: decision.Reason})
	case KindCapability:
		plan.AddImplement(Conformance{Module: item.Module, Capability: item.Name, Reason: decision.Reason})
	}
}

// Complete validates the new module's descriptor, writes it through the
// corpus and returns to Idle. An empty ModuleID is filled from the request.
// On a write failure the process stays in Planning so the call can be
// retried.
func (p *Process) Complete(ctx context.Context, d *descriptor.Descriptor) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlanning {
		return nil, ErrNotPlanning
	}

	d = d.Clone()
	d.Normalize()
	if d.ModuleID == "" {
		d.ModuleID = p.req.ModuleID
	}
	if d.ModuleID != p.req.ModuleID {
		return nil, fmt.Errorf("%w: planned %s, got %s", ErrModuleMismatch, p.req.ModuleID, d.ModuleID)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDescriptor, err)
	}

	res := &Result{Descriptor: d}
	if p.previous != nil {
		diff, err := p.differ.Compare(p.previous, d)
		if err != nil {
			return nil, err
		}
		res.Diff = diff
		if diff.Summary.HasBreaking {
			p.logger.Warn("New descriptor breaks dependents", "module", d.ModuleID, "breaking", diff.Summary.Breaking)
		}
	}

	if err := p.corpus.Write(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to write descriptor: %w", err)
	}

	p.logger.Info("Discovery completed", "module", d.ModuleID)
	p.emit(ctx, modlink.EventTypeDiscoveryCompleted, map[string]any{"module": d.ModuleID})
	p.reset()
	return res, nil
}

// Abort discards the plan and returns to Idle without writing.
func (p *Process) Abort(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StatePlanning {
		return ErrNotPlanning
	}
	module := p.req.ModuleID
	p.reset()
	p.logger.Info("Discovery aborted", "module", module)
	p.emit(ctx, modlink.EventTypeDiscoveryAborted, map[string]any{"module": module})
	return nil
}

func (p *Process) reset() {
	p.state = StateIdle
	p.req = Request{}
	p.existing = nil
	p.previous = nil
	p.plan = nil
}

func (p *Process) emit(ctx context.Context, eventType string, data map[string]any) {
	if p.subject == nil {
		return
	}
	if err := p.subject.NotifyObservers(ctx, modlink.NewCloudEvent(eventType, eventSource, data, nil)); err != nil {
		p.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}
