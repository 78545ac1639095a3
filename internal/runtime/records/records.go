// Package records defines the values pulseflow reads from a frame source and
// publishes to a sink.
package records

import "time"

// Kind identifies a publishable record.
type Kind int

const (
	KindEvents Kind = iota + 1
	KindRunStart
	KindRunStop
	KindSampleEnv
	KindSpectrumMap
)

func (k Kind) String() string {
	switch k {
	case KindEvents:
		return "events"
	case KindRunStart:
		return "run_start"
	case KindRunStop:
		return "run_stop"
	case KindSampleEnv:
		return "sample_env"
	case KindSpectrumMap:
		return "spectrum_map"
	default:
		return "unknown"
	}
}

// Record is anything a codec can encode.
type Record interface {
	Kind() Kind
}

// Frame is one pulse of detected events plus its scalar metadata. Index is
// the zero-based position in the source.
type Frame struct {
	Index         int
	DetectorIDs   []uint32
	TimesOfFlight []uint32
	ProtonCharge  float64
	Period        int32
	Timestamp     uint64
}

// EventCount is the number of detector ids carried by the frame.
func (f Frame) EventCount() int {
	return len(f.DetectorIDs)
}

// Message is the unit of publication. The event slices of all messages of one
// frame, concatenated in MessageID order, equal the frame's events.
type Message struct {
	FrameIndex    int
	MessageID     uint64
	DetectorIDs   []uint32
	TimesOfFlight []uint32
	ProtonCharge  float64
	Period        int32
	Timestamp     uint64
	EndOfFrame    bool
	EndOfRun      bool
	SourceName    string
}

func (*Message) Kind() Kind { return KindEvents }

// EventCount is the number of events in this message's slice.
func (m *Message) EventCount() int {
	return len(m.DetectorIDs)
}

// RunMetadata describes a run. It is fixed once run start has been published;
// only StopTime is filled in later, by the run tracker.
type RunMetadata struct {
	RunNumber       int64
	StartTime       time.Time
	StopTime        time.Time
	Instrument      string
	NumberOfPeriods int32
	SpectrumMap     *DetectorSpectrumMap
}

func (*RunMetadata) Kind() Kind { return KindRunStart }

// RunStop closes a run.
type RunStop struct {
	RunNumber int64
	StopTime  time.Time
}

func (*RunStop) Kind() Kind { return KindRunStop }

// DetectorSpectrumMap pairs detector ids with spectrum numbers.
type DetectorSpectrumMap struct {
	DetectorIDs []int32
	Spectra     []int32
}

func (*DetectorSpectrumMap) Kind() Kind { return KindSpectrumMap }

// Len returns the number of mapped detectors.
func (m *DetectorSpectrumMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.DetectorIDs)
}

// SampleEnvLog is a single timestamped reading of an auxiliary value such as a
// temperature or magnetic field.
type SampleEnvLog struct {
	Name      string
	Timestamp uint64
	Value     Value
}

func (*SampleEnvLog) Kind() Kind { return KindSampleEnv }
