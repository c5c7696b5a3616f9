package modlink

import (
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent is the envelope every observer notification travels in.
type CloudEvent = cloudevents.Event

// NewCloudEvent builds an event of eventType emitted by source. Ids are
// UUIDv7 so they sort by emission time; metadata entries become extensions.
func NewCloudEvent(eventType, source string, data any, metadata map[string]any) cloudevents.Event {
	e := cloudevents.NewEvent(cloudevents.VersionV1)
	e.SetID(newEventID())
	e.SetType(eventType)
	e.SetSource(source)
	e.SetTime(time.Now().UTC())
	if data != nil {
		if err := e.SetData(cloudevents.ApplicationJSON, data); err != nil {
			e.SetExtension("dataerror", err.Error())
		}
	}
	for name, value := range metadata {
		e.SetExtension(name, value)
	}
	return e
}

func newEventID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// ValidateCloudEvent rejects events missing required attributes.
func ValidateCloudEvent(e cloudevents.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidEvent, e.Type(), err)
	}
	return nil
}

// failureEvent describes a contained handler failure.
func failureEvent(source string, f HandlerFailure) cloudevents.Event {
	if source == "" {
		source = "modlink.channel"
	}
	return NewCloudEvent(EventTypeHandlerFailed, source, map[string]any{
		"channel":    f.ChannelID,
		"subscriber": f.SubscriberID,
		"token":      string(f.Token),
		"panicked":   f.Panicked,
		"error":      fmt.Sprint(f.Err),
	}, nil)
}
