package sink

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/ids"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
)

const (
	DefaultRetryWait   = 100 * time.Millisecond
	DefaultLogInterval = 10 * time.Second
)

var errRejected = errors.New("sink rejected payload")

// RetryConfig tunes RetryingSink.
type RetryConfig struct {
	// Wait is how long Send stalls after a transient result before resending.
	Wait time.Duration
	// LogInterval bounds how often an ongoing stall is logged after the first
	// transient result of a send.
	LogInterval time.Duration
	// OnRetry is called for every transient result.
	OnRetry func(class DestinationClass)
}

// RetryingSink resends the same payload after transient failures until it is
// accepted. There is no retry cap; callers bound the total time through ctx.
type RetryingSink struct {
	inner   Sink
	cfg     RetryConfig
	logger  logging.ServiceLogger
	retries atomic.Uint64
	sends   atomic.Uint64

	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingSink wraps inner.
func NewRetryingSink(inner Sink, cfg RetryConfig, logger logging.ServiceLogger) (*RetryingSink, error) {
	if inner == nil {
		return nil, pferrors.ErrSinkRequired
	}
	if logger == nil {
		return nil, pferrors.ErrLoggerRequired
	}
	if cfg.Wait <= 0 {
		cfg.Wait = DefaultRetryWait
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = DefaultLogInterval
	}
	return &RetryingSink{
		inner:  inner,
		cfg:    cfg,
		logger: logger.With(logging.LogFields{"component": "retrying_sink"}),
		sleep:  sleepContext,
	}, nil
}

// Send blocks until payload is accepted, a fatal result is reported, or ctx
// ends while waiting out backpressure. Every attempt carries the same payload
// and the same metadata, including a uuid stamped once per call, so broker
// side deduplication sees identical retries.
//
// A fatal result is returned as a *errors.SinkError. When ctx ends during a
// wait the error wraps ctx.Err() instead and not errors.ErrFatalSink.
func (s *RetryingSink) Send(ctx context.Context, class DestinationClass, payload []byte, md metadata.Metadata) error {
	s.sends.Add(1)
	if md[metadata.KeyUUID] == "" {
		md = md.With(metadata.KeyUUID, ids.CreateULID())
	}

	stall := rate.Sometimes{Interval: s.cfg.LogInterval}
	started := time.Now()
	for attempt := 1; ; attempt++ {
		res := s.inner.Send(ctx, class, payload, md)

		switch res.Status {
		case StatusAccepted:
			if attempt > 1 {
				s.logger.Debug("Payload accepted after backpressure", logging.LogFields{
					"destination": class,
					"attempts":    attempt,
					"stalled":     time.Since(started).String(),
				})
			}
			return nil

		case StatusTransient:
			s.retries.Add(1)
			if s.cfg.OnRetry != nil {
				s.cfg.OnRetry(class)
			}
			stall.Do(func() {
				msg := "Sink backpressure, retrying"
				if attempt > 1 {
					msg = "Sink still applying backpressure"
				}
				s.logger.Info(msg, logging.LogFields{
					"destination": class,
					"attempt":     attempt,
					"wait":        s.cfg.Wait.String(),
					"cause":       errString(res.Err),
				})
			})
			if err := s.sleep(ctx, s.cfg.Wait); err != nil {
				// the sink is still healthy; the caller gave up
				return fmt.Errorf("pulseflow: send on %s abandoned after %d attempt(s): %w", class, attempt, err)
			}

		default:
			cause := res.Err
			if cause == nil {
				cause = errRejected
			}
			return &pferrors.SinkError{Destination: string(class), Attempts: attempt, Err: cause}
		}
	}
}

// Retries is the number of transient results seen across all sends.
func (s *RetryingSink) Retries() uint64 { return s.retries.Load() }

// Sends is the number of Send calls.
func (s *RetryingSink) Sends() uint64 { return s.sends.Load() }

func (s *RetryingSink) Flush(ctx context.Context) error { return s.inner.Flush(ctx) }

func (s *RetryingSink) CurrentOffset() int64 { return s.inner.CurrentOffset() }

func (s *RetryingSink) Close() error { return s.inner.Close() }

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
