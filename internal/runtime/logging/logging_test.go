package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsPanicOnNil(t *testing.T) {
	tests := []struct {
		name string
		fn   func()
	}{
		{"slog", func() { NewSlogServiceLogger(nil) }},
		{"watermill", func() { NewWatermillServiceLogger(nil) }},
		{"adapter", func() { NewWatermillAdapter(nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, tt.fn)
		})
	}
}

func TestWatermillAdapterRoundTrip(t *testing.T) {
	rec := NewRecorder()
	adapter := NewWatermillAdapter(rec)

	adapter.With(watermill.LogFields{"topic": "MERLIN_events"}).Info("published", watermill.LogFields{"offset": 3})
	adapter.Debug("flush", nil)

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "MERLIN_events", entries[0].Fields["topic"])
	assert.Equal(t, 3, entries[0].Fields["offset"])
	assert.Equal(t, "broker", entries[0].Fields["component"])
	assert.Equal(t, "debug", entries[1].Level)
	assert.Equal(t, "broker", entries[1].Fields["component"])
}

func TestWatermillAdapterUnwrapsWatermillLoggers(t *testing.T) {
	var buf bytes.Buffer
	inner := watermill.NewStdLoggerWithOut(&buf, true, false)
	adapter := NewWatermillAdapter(NewWatermillServiceLogger(inner))

	_, double := adapter.(brokerLogger)
	assert.False(t, double)

	adapter.Info("connected", nil)
	assert.Contains(t, buf.String(), "component=broker")
}

func TestSlogServiceLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogServiceLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.With(LogFields{"component": "driver"}).Info("frame sent", LogFields{"frame_index": 4})

	out := buf.String()
	assert.Contains(t, out, "frame sent")
	assert.Contains(t, out, "component=driver")
	assert.Contains(t, out, "frame_index=4")
}

func TestZerologServiceLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologServiceLogger(zerolog.New(&buf).Level(zerolog.TraceLevel))

	logger.With(LogFields{"run_number": 12}).Error("run aborted", errors.New("fatal sink"), LogFields{"frame_index": 3})

	var line map[string]any
	require.NoError(t, sonic.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "run aborted", line["message"])
	assert.Equal(t, "fatal sink", line["error"])
	assert.EqualValues(t, 12, line["run_number"])
	assert.EqualValues(t, 3, line["frame_index"])

	assert.Same(t, logger, logger.With(nil))
}

func TestNewZerologLevels(t *testing.T) {
	tests := []struct {
		name    string
		opts    ZerologOptions
		debug   bool
		info    bool
		warning bool
	}{
		{name: "default info", opts: ZerologOptions{}, info: true, warning: true},
		{name: "debug", opts: ZerologOptions{Level: "DEBUG"}, debug: true, info: true, warning: true},
		{name: "quiet", opts: ZerologOptions{Quiet: true}, warning: true},
		{name: "unknown level falls back", opts: ZerologOptions{Level: "loud"}, info: true, warning: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Output = &buf
			log := NewZerolog(tt.opts)

			log.Debug().Msg("d")
			log.Info().Msg("i")
			log.Warn().Msg("w")

			out := buf.String()
			assert.Equal(t, tt.debug, strings.Contains(out, `"message":"d"`))
			assert.Equal(t, tt.info, strings.Contains(out, `"message":"i"`))
			assert.Equal(t, tt.warning, strings.Contains(out, `"message":"w"`))
		})
	}
}

func TestNewZerologConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	log := NewZerolog(ZerologOptions{Format: "console", Output: &buf})
	log.Info().Msg("streaming")

	assert.Contains(t, buf.String(), "streaming")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestForComponentHandlesNil(t *testing.T) {
	assert.NotPanics(t, func() {
		ForComponent(nil, "timer").Info("ok", nil)
	})

	rec := NewRecorder()
	ForComponent(rec, "sink").Info("ok", nil)
	assert.Equal(t, "sink", rec.Entries()[0].Fields["component"])
}

func TestMerge(t *testing.T) {
	base := LogFields{"a": 1, "b": 1}
	merged := Merge(base, LogFields{"b": 2})

	assert.Equal(t, LogFields{"a": 1, "b": 2}, merged)
	assert.Equal(t, 1, base["b"], "base must not be mutated")
	assert.Equal(t, LogFields{"x": 1}, Merge(nil, LogFields{"x": 1}))
}

func TestRecorderCount(t *testing.T) {
	rec := NewRecorder()
	child := rec.With(LogFields{"k": "v"})
	child.Info("retry", nil)
	rec.Debug("retry", nil)
	rec.Info("other", nil)

	assert.Equal(t, 2, rec.Count("retry"))
	assert.Len(t, rec.Entries(), 3)
}
