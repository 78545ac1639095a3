package logging

import (
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
)

// Watermill has no warn level of its own; keep slog's levels as they are.
var slogLevels = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("pulseflow: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, slogLevels))
}

// NewWatermillServiceLogger wraps an existing Watermill LoggerAdapter.
func NewWatermillServiceLogger(adapter watermill.LoggerAdapter) ServiceLogger {
	if adapter == nil {
		panic("pulseflow: watermill logger cannot be nil")
	}
	return watermillLogger{adapter}
}

type watermillLogger struct {
	watermill.LoggerAdapter
}

func (l watermillLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return watermillLogger{l.LoggerAdapter.With(watermill.LogFields(fields))}
}

func (l watermillLogger) Debug(msg string, fields LogFields) {
	l.LoggerAdapter.Debug(msg, watermill.LogFields(fields))
}

func (l watermillLogger) Info(msg string, fields LogFields) {
	l.LoggerAdapter.Info(msg, watermill.LogFields(fields))
}

func (l watermillLogger) Error(msg string, err error, fields LogFields) {
	l.LoggerAdapter.Error(msg, err, watermill.LogFields(fields))
}

func (l watermillLogger) Trace(msg string, fields LogFields) {
	l.LoggerAdapter.Trace(msg, watermill.LogFields(fields))
}

// NewWatermillAdapter returns the LoggerAdapter handed to broker publishers.
// Lines they write carry component=broker so they can be told apart from the
// driver's own output.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("pulseflow: ServiceLogger cannot be nil")
	}
	if wl, ok := log.(watermillLogger); ok {
		return wl.LoggerAdapter.With(watermill.LogFields{"component": "broker"})
	}
	return brokerLogger{log.With(LogFields{"component": "broker"})}
}

type brokerLogger struct {
	log ServiceLogger
}

func (b brokerLogger) Error(msg string, err error, fields watermill.LogFields) {
	b.log.Error(msg, err, LogFields(fields))
}

func (b brokerLogger) Info(msg string, fields watermill.LogFields) {
	b.log.Info(msg, LogFields(fields))
}

func (b brokerLogger) Debug(msg string, fields watermill.LogFields) {
	b.log.Debug(msg, LogFields(fields))
}

func (b brokerLogger) Trace(msg string, fields watermill.LogFields) {
	b.log.Trace(msg, LogFields(fields))
}

func (b brokerLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return brokerLogger{b.log.With(LogFields(fields))}
}
