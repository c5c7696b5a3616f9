package modlink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modlink/descriptor"
)

// Host runs a set of modules and binds the substrate to their run/stop
// cycle: Start enters a new scope (resetting every cell) before any module
// starts, Stop exits the scope after every module stopped.
type Host struct {
	cfg      *Config
	logger   Logger
	coord    *ScopeCoordinator
	exchange *Exchange

	mu          sync.Mutex
	modules     map[string]Module
	registered  []string
	order       []string
	initialized bool
	started     bool
	ctx         context.Context
	cancel      context.CancelFunc
	rotation    *cron.Cron

	observers observerSet
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithCoordinator makes the host use coord instead of a private coordinator.
func WithCoordinator(coord *ScopeCoordinator) HostOption {
	return func(h *Host) { h.coord = coord }
}

// NewHost creates a host. A nil cfg uses the defaults of Config.
func NewHost(cfg *Config, logger Logger, opts ...HostOption) *Host {
	if cfg == nil {
		cfg = &Config{}
	}
	// fills only zero-valued fields, so explicit settings survive
	_ = ProcessConfigDefaults(cfg)
	h := &Host{
		cfg:     cfg,
		logger:  loggerOrNop(logger),
		modules: make(map[string]Module),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.coord == nil {
		h.coord = NewScopeCoordinator(h.logger)
	}
	reporter := MultiReporter{
		LogReporter{Logger: h.logger},
		ObserverReporter{Subject: h, Source: "modlink.host"},
	}
	h.exchange = NewExchange(h.coord, reporter, h.logger)
	return h
}

// Logger returns the host logger.
func (h *Host) Logger() Logger { return h.logger }

// Exchange returns the artifact catalog shared by all modules of this host.
func (h *Host) Exchange() *Exchange { return h.exchange }

// Coordinator returns the scope coordinator of this host.
func (h *Host) Coordinator() *ScopeCoordinator { return h.coord }

// Config returns the host configuration.
func (h *Host) Config() *Config { return h.cfg }

// RegisterModule adds a module. Modules must be registered before Init.
func (h *Host) RegisterModule(module Module) error {
	if module == nil {
		return ErrModuleNil
	}
	h.mu.Lock()
	name := module.Name()
	if _, exists := h.modules[name]; exists {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModuleAlreadyRegistered, name)
	}
	h.modules[name] = module
	h.registered = append(h.registered, name)
	h.mu.Unlock()

	h.logger.Debug("Module registered", "module", name)
	h.emitEvent(context.Background(), EventTypeModuleRegistered, map[string]any{"module": name})
	return nil
}

// Modules returns module names in initialization order once Init ran, and in
// registration order before that.
func (h *Host) Modules() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.initialized {
		return slices.Clone(h.order)
	}
	return slices.Clone(h.registered)
}

// Init resolves dependencies and initializes every module in order.
func (h *Host) Init() error {
	h.mu.Lock()
	if h.initialized {
		h.mu.Unlock()
		return nil
	}
	order, err := h.resolveDependencies()
	if err != nil {
		h.mu.Unlock()
		return err
	}
	h.mu.Unlock()

	for _, name := range order {
		h.logger.Info("Initializing module", "module", name)
		if err := h.modules[name].Init(h); err != nil {
			h.emitEvent(context.Background(), EventTypeHostFailed, map[string]any{
				"phase":  "init",
				"module": name,
				"error":  err.Error(),
			})
			return fmt.Errorf("failed to initialize module %s: %w", name, err)
		}
	}

	h.mu.Lock()
	h.order = order
	h.initialized = true
	h.mu.Unlock()
	return nil
}

// Start enters a new scope and starts every Startable module in dependency
// order. When a session schedule is configured, sessions also rotate on it.
func (h *Host) Start() error {
	if err := h.Init(); err != nil {
		return err
	}

	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return ErrHostAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	rotation, err := h.newRotation(ctx)
	if err != nil {
		h.mu.Unlock()
		cancel()
		return err
	}
	h.ctx, h.cancel = ctx, cancel
	h.rotation = rotation
	order := slices.Clone(h.order)
	h.started = true
	h.mu.Unlock()

	h.enterScope(ctx)

	for _, name := range order {
		startable, ok := h.modules[name].(Startable)
		if !ok {
			h.logger.Debug("Module does not implement Startable, skipping", "module", name)
			continue
		}
		h.logger.Info("Starting module", "module", name)
		if err := startable.Start(ctx); err != nil {
			h.emitEvent(ctx, EventTypeHostFailed, map[string]any{
				"phase":  "start",
				"module": name,
				"error":  err.Error(),
			})
			return fmt.Errorf("failed to start module %s: %w", name, err)
		}
		h.emitEvent(ctx, EventTypeModuleStarted, map[string]any{"module": name})
	}

	if rotation != nil {
		rotation.Start()
		h.logger.Info("Session rotation scheduled", "schedule", h.cfg.SessionSchedule)
	}

	h.emitEvent(ctx, EventTypeHostStarted, map[string]any{"session": h.coord.Session()})
	return nil
}

// newRotation builds the cron scheduler that rotates sessions, or nil when no
// schedule is configured.
func (h *Host) newRotation(ctx context.Context) (*cron.Cron, error) {
	if h.cfg.SessionSchedule == "" {
		return nil, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(h.cfg.SessionSchedule, func() {
		if _, err := h.NewSession(ctx); err != nil {
			h.logger.Error("Scheduled session rotation failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSessionSchedule, h.cfg.SessionSchedule, err)
	}
	return c, nil
}

// NewSession ends the current session and starts the next one without
// restarting modules. Cell values are reset on the enter side only.
func (h *Host) NewSession(ctx context.Context) (uint64, error) {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		return 0, ErrHostNotStarted
	}

	h.exitScope(ctx)
	h.enterScope(ctx)
	return h.coord.Session(), nil
}

func (h *Host) enterScope(ctx context.Context) {
	h.coord.OnScopeEnter(ctx)
	h.emitEvent(ctx, EventTypeScopeEntered, map[string]any{
		"session": h.coord.Session(),
		"cells":   h.coord.Len(),
	})
}

func (h *Host) exitScope(ctx context.Context) {
	h.coord.OnScopeExit(ctx)
	h.emitEvent(ctx, EventTypeScopeExited, map[string]any{"session": h.coord.Session()})
}

// Stop stops every Stoppable module in reverse dependency order and exits the
// scope. Module errors are collected; every module gets its Stop call.
func (h *Host) Stop() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return ErrHostNotStarted
	}
	order := slices.Clone(h.order)
	rotation := h.rotation
	h.rotation = nil
	h.mu.Unlock()

	if rotation != nil {
		<-rotation.Stop().Done()
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.StopTimeout)
	defer cancel()

	slices.Reverse(order)
	var errs []error
	for _, name := range order {
		stoppable, ok := h.modules[name].(Stoppable)
		if !ok {
			h.logger.Debug("Module does not implement Stoppable, skipping", "module", name)
			continue
		}
		h.logger.Info("Stopping module", "module", name)
		if err := stoppable.Stop(ctx); err != nil {
			h.logger.Error("Error stopping module", "module", name, "error", err)
			errs = append(errs, fmt.Errorf("failed to stop module %s: %w", name, err))
			continue
		}
		h.emitEvent(ctx, EventTypeModuleStopped, map[string]any{"module": name})
	}

	h.exitScope(ctx)

	h.mu.Lock()
	h.started = false
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Unlock()

	h.emitEvent(context.Background(), EventTypeHostStopped, map[string]any{"session": h.coord.Session()})
	return errors.Join(errs...)
}

// Teardown releases every module's artifacts in reverse dependency order.
// It is the module-destruction counterpart of Init.
func (h *Host) Teardown() {
	order := h.Modules()
	slices.Reverse(order)
	for _, name := range order {
		h.exchange.Release(name)
	}
}

// Run starts the host and blocks until SIGINT or SIGTERM.
func (h *Host) Run() error {
	return h.RunContext(context.Background())
}

// RunContext starts the host and blocks until ctx is done or a termination
// signal arrives, then stops and tears down.
func (h *Host) RunContext(ctx context.Context) error {
	if err := h.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		h.logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		h.logger.Info("Context done, shutting down")
	}

	err := h.Stop()
	h.Teardown()
	return err
}

// Descriptors returns one integration descriptor per module in init order.
func (h *Host) Descriptors() []*descriptor.Descriptor {
	names := h.Modules()
	out := make([]*descriptor.Descriptor, 0, len(names))
	for _, name := range names {
		if d, ok := h.modules[name].(Describer); ok {
			out = append(out, d.Describe())
			continue
		}
		out = append(out, h.exchange.Describe(name))
	}
	return out
}

// resolveDependencies returns modules in initialization order: depth-first
// over the registration order, so modules without constraints keep their
// relative order. Callers hold h.mu.
func (h *Host) resolveDependencies() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(h.modules))
	order := make([]string, 0, len(h.modules))
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := slices.Index(path, name)
			cycle := append(slices.Clone(path[start:]), name)
			return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(cycle, " -> "))
		}
		state[name] = visiting
		path = append(path, name)

		if da, ok := h.modules[name].(DependencyAware); ok {
			for _, dep := range da.Dependencies() {
				if _, known := h.modules[dep]; !known {
					return fmt.Errorf("%w: %s requires %s", ErrModuleDependencyMissing, name, dep)
				}
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range h.registered {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	h.logger.Debug("Module initialization order", "order", order)
	return order, nil
}

// RegisterObserver adds an observer to receive notifications from the host.
// Registering the same observer ID again replaces its event filter.
func (h *Host) RegisterObserver(observer Observer, eventTypes ...string) error {
	if observer == nil {
		return ErrObserverNil
	}
	h.observers.add(observer, eventTypes)
	h.logger.Debug("Observer registered", "observerID", observer.ObserverID(), "eventTypes", eventTypes)
	return nil
}

// UnregisterObserver removes an observer. It is idempotent.
func (h *Host) UnregisterObserver(observer Observer) error {
	if observer == nil {
		return ErrObserverNil
	}
	if h.observers.remove(observer.ObserverID()) {
		h.logger.Debug("Observer unregistered", "observerID", observer.ObserverID())
	}
	return nil
}

// NotifyObservers validates event and hands it to every interested observer
// on its own goroutine. Observer errors and panics are logged, never returned.
func (h *Host) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	if event.Time().IsZero() {
		event.SetTime(time.Now())
	}
	if err := ValidateCloudEvent(event); err != nil {
		h.logger.Error("Dropping invalid event", "eventType", event.Type(), "error", err)
		return err
	}
	for _, o := range h.observers.interested(event.Type()) {
		deliver(ctx, h.logger, o, event)
	}
	return nil
}

// GetObservers describes the registered observers sorted by ID.
func (h *Host) GetObservers() []ObserverInfo {
	return h.observers.infos()
}

func (h *Host) emitEvent(ctx context.Context, eventType string, data map[string]any) {
	if err := h.NotifyObservers(ctx, NewCloudEvent(eventType, "modlink.host", data, nil)); err != nil {
		h.logger.Debug("Failed to notify observers", "event", eventType, "error", err)
	}
}
