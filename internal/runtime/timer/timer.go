// Package timer runs callbacks periodically on a dedicated goroutine, skipping
// ticks that arrive while a previous round is still executing.
package timer

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/logging"
)

// State is the lifecycle position of a Timer.
type State int

const (
	Idle State = iota
	Running
	StopRequested
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case StopRequested:
		return "stop_requested"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Option configures a Timer.
type Option func(*Timer)

// WithMaxIterations stops the timer on its own after n rounds. Zero means
// unbounded.
func WithMaxIterations(n int) Option {
	return func(t *Timer) { t.maxIterations = n }
}

// WithLogger sets the logger used for callback panics and lifecycle events.
func WithLogger(l logging.ServiceLogger) Option {
	return func(t *Timer) { t.logger = l }
}

// Timer is a periodic callback scheduler.
//
// A ticking goroutine sleeps for the interval and then offers a tick on a
// channel of capacity one, but only while it holds the idle token the
// execution goroutine returns after every round. A tick that finds the token
// missing is dropped, so at most one round is ever pending.
type Timer struct {
	interval      time.Duration
	maxIterations int
	logger        logging.ServiceLogger

	mu        sync.Mutex
	cond      *sync.Cond
	state     State
	callbacks []func()
	issued    int
	completed int
	coalesced int

	stop  chan struct{}
	ticks chan struct{}
	idle  chan struct{}
}

// New returns an idle timer.
func New(interval time.Duration, opts ...Option) *Timer {
	t := &Timer{interval: interval, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logging.NopLogger()
	}
	t.logger = t.logger.With(logging.LogFields{"component": "timer"})
	t.cond = sync.NewCond(&t.mu)
	return t
}

// AddCallback registers fn. Callbacks run in registration order; adding one
// while running takes effect from the next round.
func (t *Timer) AddCallback(fn func()) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, fn)
}

// Start launches the ticking and execution goroutines. A timer starts once.
func (t *Timer) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Idle {
		return pferrors.ErrTimerStarted
	}
	if t.interval <= 0 {
		return fmt.Errorf("pulseflow: timer interval must be positive, got %s", t.interval)
	}

	t.stop = make(chan struct{})
	t.ticks = make(chan struct{}, 1)
	t.idle = make(chan struct{}, 1)
	t.idle <- struct{}{}
	t.setState(Running)

	var g errgroup.Group
	g.Go(t.tick)
	g.Go(t.execute)
	go func() {
		_ = g.Wait()
		t.logger.Debug("Timer stopped", logging.LogFields{"rounds": t.Iterations(), "coalesced": t.Coalesced()})
		t.mu.Lock()
		t.setState(Stopped)
		t.mu.Unlock()
	}()
	return nil
}

// TriggerStop asks the timer to stop. It returns at once, is idempotent and
// is safe from any goroutine, including callbacks. The ticking goroutine
// notices at its next wake-up; a round already issued runs to completion.
func (t *Timer) TriggerStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestStopLocked()
}

func (t *Timer) requestStopLocked() {
	switch t.state {
	case Idle:
		t.setState(Stopped)
	case Running:
		close(t.stop)
		t.setState(StopRequested)
	}
}

// WaitForStop blocks until both goroutines have exited. It returns at once
// on a timer that was never started.
func (t *Timer) WaitForStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state == Running || t.state == StopRequested {
		t.cond.Wait()
	}
}

// State reports the current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Iterations is the number of completed callback rounds.
func (t *Timer) Iterations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Coalesced is the number of ticks dropped because a round was in flight.
func (t *Timer) Coalesced() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.coalesced
}

// Interval is the configured tick period.
func (t *Timer) Interval() time.Duration { return t.interval }

func (t *Timer) setState(s State) {
	t.state = s
	t.cond.Broadcast()
}

func (t *Timer) tick() error {
	defer close(t.ticks)

	sleep := time.NewTimer(t.interval)
	defer sleep.Stop()

	for {
		select {
		case <-t.stop:
			return nil
		case <-sleep.C:
		}
		sleep.Reset(t.interval)

		select {
		case <-t.stop:
			return nil
		case <-t.idle:
			// a stop requested during the previous round wins over this tick
			select {
			case <-t.stop:
				return nil
			default:
			}
			t.mu.Lock()
			t.issued++
			last := t.maxIterations > 0 && t.issued >= t.maxIterations
			t.mu.Unlock()

			t.ticks <- struct{}{}
			if last {
				t.mu.Lock()
				t.requestStopLocked()
				t.mu.Unlock()
				return nil
			}
		default:
			t.mu.Lock()
			t.coalesced++
			t.mu.Unlock()
		}
	}
}

func (t *Timer) execute() error {
	for range t.ticks {
		t.mu.Lock()
		callbacks := append([]func(){}, t.callbacks...)
		t.mu.Unlock()

		for i, fn := range callbacks {
			t.run(i, fn)
		}

		t.mu.Lock()
		t.completed++
		t.mu.Unlock()
		t.idle <- struct{}{}
	}
	return nil
}

func (t *Timer) run(index int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Timer callback panicked", fmt.Errorf("%v", r), logging.LogFields{"callback": index})
		}
	}()
	fn()
}
