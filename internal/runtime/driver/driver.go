// Package driver streams the frames of a source through the chunker, codec
// and retrying sink, one run at a time.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/drblury/pulseflow/internal/runtime/chunker"
	"github.com/drblury/pulseflow/internal/runtime/codec"
	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/ids"
	"github.com/drblury/pulseflow/internal/runtime/lifecycle"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/internal/runtime/records"
	"github.com/drblury/pulseflow/internal/runtime/sink"
	"github.com/drblury/pulseflow/internal/runtime/source"
	"github.com/drblury/pulseflow/internal/runtime/timer"
)

const (
	DefaultFrameRate = 10.0
	// MaxFrameRate keeps the paced interval at one nanosecond or more.
	MaxFrameRate          = 1e9
	DefaultReportInterval = 5 * time.Second
	DefaultInterRunPause  = 2 * time.Second
	tracerName            = "github.com/drblury/pulseflow/driver"
)

// Options configure a Driver.
type Options struct {
	Instrument string
	// SourceName is stamped on every event message.
	SourceName       string
	MessagesPerFrame int
	Paced            bool
	// FrameRate is the paced emission rate in frames per second.
	FrameRate       float64
	NumberOfPeriods int32
	InterRunPause   time.Duration
	// ReportInterval paces progress log lines and, when not paced, the
	// periodic callbacks.
	ReportInterval time.Duration
	Quiet          bool
	Progress       ProgressFunc
	Hooks          RunHooks
	Metrics        *Metrics
}

func (o Options) withDefaults() Options {
	if o.FrameRate <= 0 {
		o.FrameRate = DefaultFrameRate
	}
	if o.ReportInterval <= 0 {
		o.ReportInterval = DefaultReportInterval
	}
	if o.InterRunPause < 0 {
		o.InterRunPause = 0
	}
	if o.NumberOfPeriods <= 0 {
		o.NumberOfPeriods = 1
	}
	if o.SourceName == "" {
		o.SourceName = "pulseflow"
	}
	return o
}

// Driver publishes runs. Its main loop is strictly sequential: a message is
// only sent after the previous one was accepted, and message ids keep
// increasing across every run the driver streams.
type Driver struct {
	src    source.Source
	sink   *sink.RetryingSink
	codec  codec.Codec
	opts   Options
	logger logging.ServiceLogger
	ids    *ids.Sequence
	tracer trace.Tracer
	now    func() time.Time

	mu       sync.Mutex
	periodic []func()
	live     RunStatistics
}

// New validates the configuration once, before anything is streamed.
func New(src source.Source, snk *sink.RetryingSink, enc codec.Codec, opts Options, logger logging.ServiceLogger) (*Driver, error) {
	if src == nil {
		return nil, pferrors.ErrSourceRequired
	}
	if snk == nil {
		return nil, pferrors.ErrSinkRequired
	}
	if enc == nil {
		return nil, pferrors.ErrCodecRequired
	}
	if logger == nil {
		return nil, pferrors.ErrLoggerRequired
	}
	if opts.MessagesPerFrame < 1 {
		return nil, pferrors.ErrInvalidMessagesPerFrame
	}
	if src.NumberOfFrames() < 1 {
		return nil, pferrors.ErrEmptySource
	}
	if opts.FrameRate > MaxFrameRate {
		return nil, fmt.Errorf("%w, got %g", pferrors.ErrInvalidFrameRate, opts.FrameRate)
	}
	opts = opts.withDefaults()
	return &Driver{
		src:    src,
		sink:   snk,
		codec:  enc,
		opts:   opts,
		logger: logger.With(logging.LogFields{"component": "driver", "instrument": opts.Instrument}),
		ids:    ids.NewSequence(1),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}, nil
}

// AddPeriodic registers fn to run on the session timer of every subsequent
// run, concurrently with the publish loop.
func (d *Driver) AddPeriodic(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.periodic = append(d.periodic, fn)
}

// Snapshot returns the statistics of the run in progress, or of the last run.
// It is safe to call from periodic callbacks.
func (d *Driver) Snapshot() RunStatistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// LastMessageID is the id most recently assigned, or 0.
func (d *Driver) LastMessageID() uint64 { return d.ids.Last() }

func (d *Driver) setLive(s RunStatistics) {
	d.mu.Lock()
	d.live = s
	d.mu.Unlock()
}

// StreamRun publishes run start, every frame of the source in index order and
// run stop.
//
// A fatal sink error aborts immediately with a *errors.PublishError; run stop
// is not sent because the sink is unusable. When ctx is cancelled between
// frames, or while a frame's send is waiting out backpressure, the loop stops,
// run stop is still published, and the returned error wraps
// errors.ErrRunCancelled. Statistics are returned in every case.
func (d *Driver) StreamRun(ctx context.Context, runNumber int64, messagesPerFrame int, paced bool) (stats RunStatistics, err error) {
	if messagesPerFrame < 1 {
		return stats, pferrors.ErrInvalidMessagesPerFrame
	}
	n := d.src.NumberOfFrames()
	stats = RunStatistics{RunNumber: runNumber, NumberOfFrames: n}
	log := d.logger.With(logging.LogFields{"run_number": runNumber})

	ctx, span := d.tracer.Start(ctx, "StreamRun", trace.WithAttributes(
		attribute.Int64("pulseflow.run_number", runNumber),
		attribute.String("pulseflow.instrument", d.opts.Instrument),
		attribute.Int("pulseflow.frames", n),
		attribute.Int("pulseflow.messages_per_frame", messagesPerFrame),
		attribute.Bool("pulseflow.paced", paced),
	))
	defer func() {
		span.SetAttributes(
			attribute.Int("pulseflow.frames_sent", stats.Frames),
			attribute.Int64("pulseflow.messages_sent", int64(stats.Messages)),
			attribute.Int64("pulseflow.bytes_sent", int64(stats.Bytes)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	retriesBefore := d.sink.Retries()
	defer func() {
		stats.Retries = d.sink.Retries() - retriesBefore
		d.setLive(stats)
		d.opts.Metrics.runFinished(d.opts.Instrument, runStatus(stats, err), stats)
		d.opts.Hooks.fireEnd(RunContext{
			RunNumber:  runNumber,
			Instrument: d.opts.Instrument,
			StartedAt:  stats.StartTime,
			Duration:   stats.Duration(),
			Stats:      stats,
		}, err)
		switch {
		case errors.Is(err, pferrors.ErrRunCancelled):
			log.Info("Run cancelled", stats.logFields())
		case err != nil:
			log.Error("Run aborted", err, stats.logFields())
		case !d.opts.Quiet:
			log.Info("Run finished", stats.logFields())
		}
	}()

	tracker := lifecycle.New()
	meta, err := d.runMetadata(runNumber)
	if err != nil {
		return stats, err
	}
	if err := tracker.Begin(meta); err != nil {
		return stats, err
	}
	stats.StartTime = meta.StartTime
	d.setLive(stats)
	d.opts.Metrics.runStarted(d.opts.Instrument, runNumber)

	// no run start until the session timer is running
	gate, stopSession, err := d.startSession(paced, log)
	if err != nil {
		return stats, err
	}
	defer stopSession()

	if err := d.publishRecord(ctx, runNumber, &meta); err != nil {
		return stats, err
	}
	if meta.SpectrumMap != nil {
		if err := d.publishRecord(ctx, runNumber, meta.SpectrumMap); err != nil {
			return stats, err
		}
	}
	d.opts.Hooks.fireStart(RunContext{RunNumber: runNumber, Instrument: d.opts.Instrument, StartedAt: meta.StartTime})
	if !d.opts.Quiet {
		log.Info("Run started", logging.LogFields{"frames": n, "events": d.src.TotalEventCount(), "paced": paced})
	}

	cancelled := false
frames:
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		if gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				cancelled = true
				break frames
			}
		}

		if err := d.publishFrame(ctx, runNumber, i, n, messagesPerFrame, tracker, &stats); err != nil {
			// interrupted by the caller, not failed
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				cancelled = true
				break
			}
			return stats, err
		}
		d.setLive(stats)
		d.report(log, Progress{
			RunNumber:      runNumber,
			FrameIndex:     i,
			NumberOfFrames: n,
			Fraction:       float64(i) / float64(n),
			Stats:          stats,
		})
	}

	// run stop goes out even after cancellation
	stopCtx := ctx
	if cancelled {
		stopCtx = context.WithoutCancel(ctx)
	}
	stop, err := tracker.Finish(d.now())
	if err != nil {
		return stats, err
	}
	if err := d.publishRecord(stopCtx, runNumber, &stop); err != nil {
		return stats, err
	}
	stats.StopTime = stop.StopTime

	if cancelled {
		return stats, fmt.Errorf("%w: run %d stopped after %d of %d frames: %w",
			pferrors.ErrRunCancelled, runNumber, stats.Frames, n, context.Cause(ctx))
	}
	stats.Completed = tracker.EndOfRunSent()
	return stats, nil
}

func (d *Driver) runMetadata(runNumber int64) (records.RunMetadata, error) {
	meta := records.RunMetadata{
		RunNumber:       runNumber,
		StartTime:       d.now(),
		Instrument:      d.opts.Instrument,
		NumberOfPeriods: d.opts.NumberOfPeriods,
	}
	if sm, ok := d.src.(source.SpectrumMapSource); ok {
		spectra, err := sm.SpectrumMap()
		if err != nil {
			return meta, fmt.Errorf("read detector spectrum map: %w", err)
		}
		meta.SpectrumMap = spectra
	}
	return meta, nil
}

func (d *Driver) publishFrame(ctx context.Context, runNumber int64, i, n, k int, tracker *lifecycle.Tracker, stats *RunStatistics) error {
	frame, err := source.ReadFrame(d.src, i)
	if err != nil {
		return fmt.Errorf("pulseflow: run %d: %w", runNumber, err)
	}
	msgs, err := chunker.Chunk(frame, k, tracker.Advance(i, n))
	if err != nil {
		return fmt.Errorf("pulseflow: run %d: %w", runNumber, err)
	}

	frameBytes := 0
	for j := range msgs {
		msg := &msgs[j]
		msg.MessageID = d.ids.Next()
		msg.SourceName = d.opts.SourceName

		size, err := d.send(ctx, runNumber, msg, metadata.Metadata{}.
			WithInt(metadata.KeyFrameIndex, int64(i)).
			WithUint(metadata.KeyMessageID, msg.MessageID))
		if err != nil {
			return err
		}

		tracker.Observe(*msg)
		if stats.Messages == 0 {
			stats.FirstMessageID = msg.MessageID
		}
		stats.LastMessageID = msg.MessageID
		stats.Messages++
		stats.Bytes += uint64(size)
		frameBytes += size
	}

	if logs, ok := d.src.(source.SampleEnvSource); ok {
		entries, err := logs.SampleEnvLogs(i)
		if err != nil {
			return fmt.Errorf("pulseflow: run %d: read sample env of frame %d: %w", runNumber, i, err)
		}
		for j := range entries {
			if err := d.publishRecord(ctx, runNumber, &entries[j]); err != nil {
				var pe *pferrors.PublishError
				if errors.As(err, &pe) {
					pe.FrameIndex = i
				}
				return err
			}
		}
		stats.SampleEnvLogs += len(entries)
	}

	stats.Frames++
	d.opts.Metrics.frameSent(d.opts.Instrument, len(msgs), frameBytes, stats.Progress())
	return nil
}

// send encodes and publishes one event message.
func (d *Driver) send(ctx context.Context, runNumber int64, msg *records.Message, md metadata.Metadata) (int, error) {
	payload, err := d.codec.Encode(msg)
	if err != nil {
		return 0, &pferrors.PublishError{RunNumber: runNumber, FrameIndex: msg.FrameIndex, MessageID: msg.MessageID, Record: "events", Err: err}
	}
	md = md.With(metadata.KeySchema, codec.SchemaEvents).
		With(metadata.KeyCodec, d.codec.Name()).
		WithInt(metadata.KeyRunNumber, runNumber)
	if err := d.sink.Send(ctx, sink.Events, payload, md); err != nil {
		return 0, &pferrors.PublishError{RunNumber: runNumber, FrameIndex: msg.FrameIndex, MessageID: msg.MessageID, Record: "events", Err: err}
	}
	return len(payload), nil
}

// publishRecord sends a run level record on its destination.
func (d *Driver) publishRecord(ctx context.Context, runNumber int64, rec records.Record) error {
	kind := rec.Kind()
	fail := func(err error) error {
		return &pferrors.PublishError{RunNumber: runNumber, FrameIndex: -1, Record: kind.String(), Err: err}
	}
	schema, err := codec.SchemaFor(kind)
	if err != nil {
		return fail(err)
	}
	payload, err := d.codec.Encode(rec)
	if err != nil {
		return fail(err)
	}
	md := metadata.New(
		metadata.KeySchema, schema,
		metadata.KeyCodec, d.codec.Name(),
	).WithInt(metadata.KeyRunNumber, runNumber)
	if err := d.sink.Send(ctx, sink.ClassFor(kind), payload, md); err != nil {
		return fail(err)
	}
	return nil
}

// startSession creates the run's timer. In paced mode it also returns the
// gate the loop waits on before each frame.
func (d *Driver) startSession(paced bool, log logging.ServiceLogger) (<-chan struct{}, func(), error) {
	d.mu.Lock()
	callbacks := append([]func(){}, d.periodic...)
	d.mu.Unlock()

	interval := d.opts.ReportInterval
	if paced {
		interval = time.Duration(float64(time.Second) / d.opts.FrameRate)
		if interval <= 0 {
			return nil, nil, fmt.Errorf("%w, got %g", pferrors.ErrInvalidFrameRate, d.opts.FrameRate)
		}
	}
	if !d.opts.Quiet {
		callbacks = append(callbacks, d.progressLogger(log))
	}
	if !paced && len(callbacks) == 0 {
		return nil, func() {}, nil
	}

	tm := timer.New(interval, timer.WithLogger(log))
	var gate chan struct{}
	if paced {
		gate = make(chan struct{}, 1)
		tm.AddCallback(func() {
			select {
			case gate <- struct{}{}:
			default:
			}
		})
	}
	for _, fn := range callbacks {
		tm.AddCallback(fn)
	}
	if err := tm.Start(); err != nil {
		return nil, nil, err
	}
	return gate, func() {
		tm.TriggerStop()
		tm.WaitForStop()
	}, nil
}

// progressLogger logs the live statistics at most once per ReportInterval,
// whatever rate the session timer ticks at.
func (d *Driver) progressLogger(log logging.ServiceLogger) func() {
	// a little under the interval so timer jitter does not skip every other tick
	every := rate.Sometimes{Interval: d.opts.ReportInterval * 9 / 10}
	return func() {
		every.Do(func() {
			s := d.Snapshot()
			if s.Frames == 0 {
				return
			}
			log.Info("Streaming", logging.LogFields{
				"frames":   s.Frames,
				"of":       s.NumberOfFrames,
				"progress": fmt.Sprintf("%.1f%%", 100*s.Progress()),
				"messages": s.Messages,
				"bytes":    s.Bytes,
			})
		})
	}
}

func (d *Driver) report(log logging.ServiceLogger, p Progress) {
	if d.opts.Progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("Progress reporter panicked", fmt.Errorf("%v", r), logging.LogFields{"frame_index": p.FrameIndex})
		}
	}()
	if err := d.opts.Progress(p); err != nil {
		log.Debug("Progress reporter failed", logging.LogFields{"frame_index": p.FrameIndex, "error": err.Error()})
	}
}

func runStatus(stats RunStatistics, err error) string {
	switch {
	case err == nil && stats.Completed:
		return "completed"
	case errors.Is(err, pferrors.ErrRunCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
