// Package sink publishes encoded payloads. Sink is the raw, single attempt
// contract a broker adapter implements; RetryingSink wraps it with the
// backpressure retry policy the driver relies on.
package sink

import (
	"context"
	"fmt"

	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/internal/runtime/records"
)

// DestinationClass names a logical output channel.
type DestinationClass string

const (
	Events     DestinationClass = "events"
	RunInfo    DestinationClass = "runInfo"
	SampleEnv  DestinationClass = "sampleEnv"
	DetSpecMap DestinationClass = "detSpecMap"
	// Histograms has a topic but no record kind of its own yet; callers
	// sending pre-binned data through Send use it.
	Histograms DestinationClass = "histograms"
)

// ClassFor returns the destination a record kind is published on.
func ClassFor(kind records.Kind) DestinationClass {
	switch kind {
	case records.KindRunStart, records.KindRunStop:
		return RunInfo
	case records.KindSampleEnv:
		return SampleEnv
	case records.KindSpectrumMap:
		return DetSpecMap
	default:
		return Events
	}
}

// Status is the outcome class of one publish attempt.
type Status int

const (
	StatusAccepted Status = iota
	StatusTransient
	StatusFatal
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "accepted"
	case StatusTransient:
		return "transient_backpressure"
	case StatusFatal:
		return "fatal"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is what a Sink reports for a single attempt.
type Result struct {
	Status Status
	Err    error
}

func Accepted() Result { return Result{Status: StatusAccepted} }

func Transient(err error) Result { return Result{Status: StatusTransient, Err: err} }

func FatalResult(err error) Result { return Result{Status: StatusFatal, Err: err} }

// Sink makes one attempt at handing payload to an external transport.
type Sink interface {
	Send(ctx context.Context, class DestinationClass, payload []byte, md metadata.Metadata) Result
	Flush(ctx context.Context) error
	CurrentOffset() int64
	Close() error
}
