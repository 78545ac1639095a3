// Package logging defines the logger contract injected into every pulseflow
// component, plus adapters for slog, Watermill and zerolog.
package logging

import "github.com/ThreeDotsLabs/watermill"

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// ServiceLogger is the minimal logging contract pulseflow components depend on.
// It mirrors Watermill's logging needs so the same logger can be handed to the
// broker publishers.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// NopLogger returns a ServiceLogger that discards everything.
func NopLogger() ServiceLogger {
	return NewWatermillServiceLogger(watermill.NopLogger{})
}

// ForComponent returns a child logger tagged with the component name. A nil
// logger yields a NopLogger so optional loggers never need nil checks.
func ForComponent(log ServiceLogger, component string) ServiceLogger {
	if log == nil {
		log = NopLogger()
	}
	return log.With(LogFields{"component": component})
}

// Merge returns a new field set containing base overlaid with extra.
func Merge(base, extra LogFields) LogFields {
	if len(base) == 0 {
		return extra
	}
	out := make(LogFields, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
