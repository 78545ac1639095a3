package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired          = sterrors.New("pulseflow: configuration is required")
	ErrLoggerRequired          = sterrors.New("pulseflow: logger is required")
	ErrSourceRequired          = sterrors.New("pulseflow: frame data source is required")
	ErrEmptySource             = sterrors.New("pulseflow: frame data source has no frames")
	ErrSinkRequired            = sterrors.New("pulseflow: message sink is required")
	ErrCodecRequired           = sterrors.New("pulseflow: codec is required")
	ErrPublisherRequired       = sterrors.New("pulseflow: publisher is required")
	ErrTopicRequired           = sterrors.New("pulseflow: topic is required")
	ErrInvalidMessagesPerFrame = sterrors.New("pulseflow: messages per frame must be at least 1")
	ErrFrameOutOfRange         = sterrors.New("pulseflow: frame index out of range")
	ErrInvalidFrameRate        = sterrors.New("pulseflow: frame rate must be positive and at most 1e9 frames per second")

	// ErrMalformedFrame marks frames whose detector id and time-of-flight
	// sequences disagree in length.
	ErrMalformedFrame = sterrors.New("pulseflow: malformed frame")

	// ErrBackpressure is returned by sinks that cannot accept input right now.
	// RetryingSink recovers from it locally and never surfaces it.
	ErrBackpressure = sterrors.New("pulseflow: sink backpressure")

	// ErrFatalSink marks sink failures that abort the current run.
	ErrFatalSink       = sterrors.New("pulseflow: fatal sink error")
	ErrMessageTooLarge = sterrors.New("pulseflow: message exceeds transport size limit")

	ErrRunCancelled      = sterrors.New("pulseflow: run cancelled")
	ErrRunAlreadyStarted = sterrors.New("pulseflow: run already started")
	ErrRunNotStarted     = sterrors.New("pulseflow: run not started")
	ErrRunAlreadyStopped = sterrors.New("pulseflow: run already stopped")

	ErrTimerStarted = sterrors.New("pulseflow: timer already started")
)

// ConfigValidationError wraps every problem found while validating a Config.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "pulseflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// MalformedFrameError reports a frame whose event sequences differ in length.
type MalformedFrameError struct {
	FrameIndex    int
	DetectorIDs   int
	TimesOfFlight int
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("pulseflow: malformed frame %d: %d detector ids but %d times of flight",
		e.FrameIndex, e.DetectorIDs, e.TimesOfFlight)
}

func (e *MalformedFrameError) Unwrap() error {
	return ErrMalformedFrame
}

// SinkError is the fatal outcome of RetryingSink.Send.
type SinkError struct {
	Destination string
	Attempts    int
	Err         error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("pulseflow: fatal sink error on %s after %d attempt(s): %v", e.Destination, e.Attempts, e.Err)
}

// Unwrap exposes both ErrFatalSink and the underlying cause to errors.Is/As.
func (e *SinkError) Unwrap() []error {
	return []error{ErrFatalSink, e.Err}
}

// PublishError locates a failure inside a run so the failing step can be
// reproduced. FrameIndex is -1 for run-level records.
type PublishError struct {
	RunNumber  int64
	FrameIndex int
	MessageID  uint64
	Record     string
	Err        error
}

func (e *PublishError) Error() string {
	if e.FrameIndex < 0 {
		return fmt.Sprintf("pulseflow: run %d %s: %v", e.RunNumber, e.Record, e.Err)
	}
	return fmt.Sprintf("pulseflow: run %d frame %d message %d (%s): %v",
		e.RunNumber, e.FrameIndex, e.MessageID, e.Record, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}
