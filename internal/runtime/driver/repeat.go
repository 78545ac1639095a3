package driver

import (
	"context"
	"errors"
	"time"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/logging"
)

// Repeat streams runs firstRun, firstRun+1, ... separated by InterRunPause
// until ctx is cancelled, which is a clean exit. A failed run is not retried:
// its error ends the loop and is returned with the statistics of every run.
func (d *Driver) Repeat(ctx context.Context, firstRun int64) ([]RunStatistics, error) {
	var all []RunStatistics
	for run := firstRun; ; run++ {
		stats, err := d.StreamRun(ctx, run, d.opts.MessagesPerFrame, d.opts.Paced)
		all = append(all, stats)
		if err != nil {
			if stoppedByCaller(ctx, err) {
				return all, nil
			}
			return all, err
		}

		if d.opts.InterRunPause > 0 && !d.opts.Quiet {
			d.logger.Debug("Pausing before next run", logging.LogFields{"next_run": run + 1, "pause": d.opts.InterRunPause.String()})
		}
		if !pause(ctx, d.opts.InterRunPause) {
			return all, nil
		}
	}
}

func stoppedByCaller(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, pferrors.ErrRunCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// pause waits for d and reports false when ctx ended first.
func pause(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
