package modlink

import (
	"context"
	"fmt"
)

// HandlerFailure describes a subscriber that returned an error or panicked
// while a channel was dispatching. The failure never reaches the publisher.
type HandlerFailure struct {
	ChannelID    string `json:"channelId"`
	SubscriberID string `json:"subscriberId"`
	Token        Token  `json:"token"`
	Err          error  `json:"-"`
	Panicked     bool   `json:"panicked"`
}

// Error implements error so a failure can be logged or wrapped directly.
func (f HandlerFailure) Error() string {
	if f.Panicked {
		return fmt.Sprintf("subscriber %s on channel %s panicked: %v", f.SubscriberID, f.ChannelID, f.Err)
	}
	return fmt.Sprintf("subscriber %s on channel %s failed: %v", f.SubscriberID, f.ChannelID, f.Err)
}

// Unwrap returns the underlying handler error.
func (f HandlerFailure) Unwrap() error {
	return f.Err
}

// FailureReporter is the observability sink for contained handler failures.
// Implementations must not panic and should return quickly: they run inline
// in the dispatch loop.
type FailureReporter interface {
	ReportFailure(ctx context.Context, failure HandlerFailure)
}

// FailureReporterFunc adapts a function to FailureReporter.
type FailureReporterFunc func(ctx context.Context, failure HandlerFailure)

// ReportFailure implements FailureReporter.
func (f FailureReporterFunc) ReportFailure(ctx context.Context, failure HandlerFailure) {
	f(ctx, failure)
}

// LogReporter reports failures through a Logger.
type LogReporter struct {
	Logger Logger
}

// ReportFailure implements FailureReporter.
func (r LogReporter) ReportFailure(_ context.Context, failure HandlerFailure) {
	loggerOrNop(r.Logger).Error("Channel subscriber failed",
		"channel", failure.ChannelID,
		"subscriber", failure.SubscriberID,
		"token", failure.Token,
		"panicked", failure.Panicked,
		"error", failure.Err)
}

// ObserverReporter turns failures into EventTypeHandlerFailed CloudEvents
// delivered to a Subject, usually the Host.
type ObserverReporter struct {
	Subject Subject
	Source  string
}

// ReportFailure implements FailureReporter.
func (r ObserverReporter) ReportFailure(ctx context.Context, failure HandlerFailure) {
	if r.Subject == nil {
		return
	}
	_ = r.Subject.NotifyObservers(ctx, failureEvent(r.Source, failure))
}

// MultiReporter fans a failure out to several reporters in order.
type MultiReporter []FailureReporter

// ReportFailure implements FailureReporter.
func (m MultiReporter) ReportFailure(ctx context.Context, failure HandlerFailure) {
	for _, r := range m {
		if r != nil {
			r.ReportFailure(ctx, failure)
		}
	}
}
