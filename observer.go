package modlink

// Substrate and host activity (session boundaries, contained subscriber
// failures, module lifecycle) is reported to observers as CloudEvents so
// external tooling can consume it without depending on modlink types.

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is notified of host and substrate events. Events follow the
// CloudEvents specification, so an observer can forward them to any
// CloudEvents sink without knowing modlink types.
//
// Observers are called on their own goroutine and never block the code that
// emitted the event. Errors and panics are logged by the subject.
//
// Example:
//
//	audit := modlink.NewFunctionalObserver("audit", func(ctx context.Context, e cloudevents.Event) error {
//		log.Printf("%s from %s", e.Type(), e.Source())
//		return nil
//	})
//	host.RegisterObserver(audit, modlink.EventTypeScopeEntered, modlink.EventTypeHandlerFailed)
type Observer interface {
	// OnEvent is called for every event the observer is subscribed to.
	// ctx is the context the event was emitted with and may already be
	// done. Returned errors are logged by the subject and otherwise ignored.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for this observer. It is the
	// registration key and appears in log lines about the observer.
	ObserverID() string
}

// Subject is implemented by anything observers can register with. Host is
// the Subject modules see through Application.
type Subject interface {
	// RegisterObserver adds an observer. If eventTypes is empty the observer
	// receives every event. Registering the same observer ID again replaces
	// the previous registration and its event filter.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Unknown observers are ignored.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to every interested observer. It
	// validates the event and returns without waiting for delivery.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error

	// GetObservers describes the currently registered observers, sorted by
	// ID. It is what the inspect surface reports.
	GetObservers() []ObserverInfo
}

// ObserverInfo describes a registered observer.
type ObserverInfo struct {
	// ID is the observer's ObserverID.
	ID string `json:"id"`

	// EventTypes is the sorted event filter. Empty means every event.
	EventTypes []string `json:"eventTypes"`

	// RegisteredAt is when the current registration was made.
	RegisteredAt time.Time `json:"registeredAt"`
}

// CloudEvent types emitted by modlink. They use reverse domain notation, as
// the CloudEvents specification recommends; the event source names the
// component that emitted it ("modlink.host", "modlink.channel", ...).
const (
	// Session boundaries
	EventTypeScopeEntered = "com.modlink.scope.entered"
	EventTypeScopeExited  = "com.modlink.scope.exited"

	// Channel dispatch
	EventTypeHandlerFailed = "com.modlink.channel.handler.failed"

	// Module lifecycle
	EventTypeModuleRegistered = "com.modlink.module.registered"
	EventTypeModuleStarted    = "com.modlink.module.started"
	EventTypeModuleStopped    = "com.modlink.module.stopped"

	// Host lifecycle
	EventTypeHostStarted = "com.modlink.host.started"
	EventTypeHostStopped = "com.modlink.host.stopped"
	EventTypeHostFailed  = "com.modlink.host.failed"

	// Discovery
	EventTypeDiscoveryPlanning  = "com.modlink.discovery.planning"
	EventTypeDiscoveryCompleted = "com.modlink.discovery.completed"
	EventTypeDiscoveryAborted   = "com.modlink.discovery.aborted"
	EventTypeCorpusChanged      = "com.modlink.corpus.changed"
)

// FunctionalObserver adapts a function to the Observer interface, which is
// convenient for tests and one-off hooks. A nil Handle ignores every event.
//
// Example:
//
//	host.RegisterObserver(modlink.FunctionalObserver{
//		ID: "failures",
//		Handle: func(_ context.Context, e cloudevents.Event) error {
//			metrics.HandlerFailures.Inc()
//			return nil
//		},
//	}, modlink.EventTypeHandlerFailed)
type FunctionalObserver struct {
	ID     string
	Handle func(ctx context.Context, event cloudevents.Event) error
}

// NewFunctionalObserver creates an observer identified by id.
func NewFunctionalObserver(id string, handle func(ctx context.Context, event cloudevents.Event) error) Observer {
	return FunctionalObserver{ID: id, Handle: handle}
}

// OnEvent implements Observer.
func (f FunctionalObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	if f.Handle == nil {
		return nil
	}
	return f.Handle(ctx, event)
}

// ObserverID implements Observer.
func (f FunctionalObserver) ObserverID() string { return f.ID }
