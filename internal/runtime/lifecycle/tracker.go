// Package lifecycle tracks where a run is between its start and stop records.
package lifecycle

import (
	"fmt"
	"time"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/records"
)

// State of a run.
type State int

const (
	NotStarted State = iota
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Tracker records the boundaries of a single run. It is owned by the driver
// loop and is not safe for concurrent use.
type Tracker struct {
	state         State
	meta          records.RunMetadata
	currentFrame  int
	lastMessageID uint64
	lastMsgFrame  int
	endOfRunSent  bool
}

// New returns a tracker for a run that has not started.
func New() *Tracker {
	return &Tracker{currentFrame: -1, lastMsgFrame: -1}
}

// Begin fixes the run metadata. It fails if the run already started.
func (t *Tracker) Begin(meta records.RunMetadata) error {
	if t.state != NotStarted {
		return fmt.Errorf("%w: run %d", pferrors.ErrRunAlreadyStarted, t.meta.RunNumber)
	}
	meta.StopTime = time.Time{}
	t.meta = meta
	t.state = Started
	return nil
}

// Advance records frameIndex as current and reports whether it is the last
// frame of the run.
func (t *Tracker) Advance(frameIndex, numberOfFrames int) bool {
	t.currentFrame = frameIndex
	return frameIndex == numberOfFrames-1
}

// Observe records a message that was accepted by the sink.
func (t *Tracker) Observe(msg records.Message) {
	t.lastMessageID = msg.MessageID
	t.lastMsgFrame = msg.FrameIndex
	if msg.EndOfRun {
		t.endOfRunSent = true
	}
}

// Finish sets the stop time, exactly once, and returns the run stop record.
func (t *Tracker) Finish(stop time.Time) (records.RunStop, error) {
	switch t.state {
	case NotStarted:
		return records.RunStop{}, pferrors.ErrRunNotStarted
	case Stopped:
		return records.RunStop{}, fmt.Errorf("%w: run %d", pferrors.ErrRunAlreadyStopped, t.meta.RunNumber)
	}
	t.meta.StopTime = stop
	t.state = Stopped
	return records.RunStop{RunNumber: t.meta.RunNumber, StopTime: stop}, nil
}

func (t *Tracker) State() State { return t.state }

// Metadata returns a copy of the run metadata.
func (t *Tracker) Metadata() records.RunMetadata { return t.meta }

// CurrentFrame is the last frame passed to Advance, or -1.
func (t *Tracker) CurrentFrame() int { return t.currentFrame }

// LastMessageID is the id of the last observed message, or 0.
func (t *Tracker) LastMessageID() uint64 { return t.lastMessageID }

// LastMessageFrame is the frame of the last observed message, or -1.
func (t *Tracker) LastMessageFrame() int { return t.lastMsgFrame }

// EndOfRunSent reports whether a message flagged end-of-run was observed.
func (t *Tracker) EndOfRunSent() bool { return t.endOfRunSent }
