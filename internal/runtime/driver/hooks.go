package driver

import (
	"time"

	"github.com/drblury/pulseflow/internal/runtime/logging"
)

// RunContext describes the run a hook fires for.
type RunContext struct {
	RunNumber  int64
	Instrument string
	StartedAt  time.Time
	// Duration and Stats are only set for OnRunDone and OnRunError.
	Duration time.Duration
	Stats    RunStatistics
}

// RunHooks are called on the publish goroutine and must return quickly.
// Nil hooks are skipped.
type RunHooks struct {
	// OnRunStart fires once run start has been accepted by the sink.
	OnRunStart func(rc RunContext)
	OnRunDone  func(rc RunContext)
	// OnRunError fires for aborted and cancelled runs alike; use
	// errors.Is(err, errors.ErrRunCancelled) to tell them apart.
	OnRunError func(rc RunContext, err error)
}

// Merge returns hooks that call h first and other second.
func (h RunHooks) Merge(other RunHooks) RunHooks {
	return RunHooks{
		OnRunStart: chainRunHooks(h.OnRunStart, other.OnRunStart),
		OnRunDone:  chainRunHooks(h.OnRunDone, other.OnRunDone),
		OnRunError: chainErrorHooks(h.OnRunError, other.OnRunError),
	}
}

func chainRunHooks(a, b func(RunContext)) func(RunContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(rc RunContext) {
		a(rc)
		b(rc)
	}
}

func chainErrorHooks(a, b func(RunContext, error)) func(RunContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(rc RunContext, err error) {
		a(rc, err)
		b(rc, err)
	}
}

func (h RunHooks) fireStart(rc RunContext) {
	if h.OnRunStart != nil {
		h.OnRunStart(rc)
	}
}

func (h RunHooks) fireEnd(rc RunContext, err error) {
	if err != nil {
		if h.OnRunError != nil {
			h.OnRunError(rc, err)
		}
		return
	}
	if h.OnRunDone != nil {
		h.OnRunDone(rc)
	}
}

// AlertingHooks calls alert for every run that did not complete.
func AlertingHooks(alert func(rc RunContext, err error)) RunHooks {
	return RunHooks{OnRunError: alert}
}

// CountingHooks reports run outcomes to plain callbacks, for wiring into
// external counters.
func CountingHooks(onStart, onDone, onError func(instrument string, run int64)) RunHooks {
	return RunHooks{
		OnRunStart: func(rc RunContext) {
			if onStart != nil {
				onStart(rc.Instrument, rc.RunNumber)
			}
		},
		OnRunDone: func(rc RunContext) {
			if onDone != nil {
				onDone(rc.Instrument, rc.RunNumber)
			}
		},
		OnRunError: func(rc RunContext, _ error) {
			if onError != nil {
				onError(rc.Instrument, rc.RunNumber)
			}
		},
	}
}

// AuditHooks logs a one-line summary per run boundary at debug level, for
// setups that keep the driver quiet but still want a trail.
func AuditHooks(log logging.ServiceLogger) RunHooks {
	return RunHooks{
		OnRunStart: func(rc RunContext) {
			log.Debug("Run start accepted", logging.LogFields{"run_number": rc.RunNumber, "instrument": rc.Instrument})
		},
		OnRunDone: func(rc RunContext) {
			log.Debug("Run stop accepted", logging.LogFields{
				"run_number":  rc.RunNumber,
				"instrument":  rc.Instrument,
				"duration_ms": rc.Duration.Milliseconds(),
				"messages":    rc.Stats.Messages,
			})
		},
		OnRunError: func(rc RunContext, err error) {
			log.Debug("Run ended early", logging.LogFields{
				"run_number":  rc.RunNumber,
				"instrument":  rc.Instrument,
				"duration_ms": rc.Duration.Milliseconds(),
				"frames":      rc.Stats.Frames,
				"error":       err.Error(),
			})
		},
	}
}
