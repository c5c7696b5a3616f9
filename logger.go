package modlink

// Logger defines the structured logging interface used throughout modlink.
// Cells, channels, the scope coordinator and the host all log through it,
// so the embedding application decides where substrate logs go and how they
// are formatted.
//
// Messages carry variadic key/value pairs:
//
//	logger.Info("Cell registered", "cell", "score", "session", 3)
//
// *slog.Logger satisfies this interface, so hosts normally pass
// slog.New(...) directly. Other structured loggers need a thin adapter:
//
//	type zapLogger struct{ s *zap.SugaredLogger }
//
//	func (l zapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
//	func (l zapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }
//	func (l zapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
//	func (l zapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
//
// A nil Logger is accepted everywhere one is taken and behaves as NopLogger.
type Logger interface {
	// Info logs normal substrate activity such as session boundaries and
	// module lifecycle steps.
	//
	// Example:
	//	logger.Info("Scope entered", "session", 4, "cells", 12, "pruned", 0)
	Info(msg string, args ...any)

	// Error logs failures that were contained and did not stop the caller,
	// like a panicking subscriber or an observer returning an error.
	//
	// Example:
	//	logger.Error("Subscriber failed", "channel", "Damage", "subscriber", "hud", "error", err)
	Error(msg string, args ...any)

	// Warn logs unusual but harmless conditions, for example a second
	// subscription that reuses a subscriber ID with a different handler.
	//
	// Example:
	//	logger.Warn("Subscriber ID already taken, keeping the first subscriber", "channel", "Damage", "subscriber", "hud")
	Warn(msg string, args ...any)

	// Debug logs per-operation detail (subscribe, unsubscribe, queued
	// publishes). It is usually disabled outside development.
	//
	// Example:
	//	logger.Debug("Reentrant publish queued", "channel", "Damage", "queued", 2)
	Debug(msg string, args ...any)
}

// NopLogger discards everything. It is the default when no logger is supplied.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}

func loggerOrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
