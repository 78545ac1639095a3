package driver

import (
	"time"

	"github.com/drblury/pulseflow/internal/runtime/logging"
)

// RunStatistics are the running totals of one run. On failure they cover
// everything accepted before the failing step.
type RunStatistics struct {
	RunNumber      int64     `json:"run_number"`
	NumberOfFrames int       `json:"number_of_frames"`
	Frames         int       `json:"frames"`
	Messages       uint64    `json:"messages"`
	Bytes          uint64    `json:"bytes"`
	Retries        uint64    `json:"retries"`
	SampleEnvLogs  int       `json:"sample_env_logs"`
	FirstMessageID uint64    `json:"first_message_id"`
	LastMessageID  uint64    `json:"last_message_id"`
	StartTime      time.Time `json:"start_time"`
	StopTime       time.Time `json:"stop_time"`
	Completed      bool      `json:"completed"`
}

// Progress is the fraction of frames sent, in [0, 1].
func (s RunStatistics) Progress() float64 {
	if s.NumberOfFrames == 0 {
		return 0
	}
	return float64(s.Frames) / float64(s.NumberOfFrames)
}

// Duration is the wall time between start and stop, or zero while running.
func (s RunStatistics) Duration() time.Duration {
	if s.StopTime.IsZero() {
		return 0
	}
	return s.StopTime.Sub(s.StartTime)
}

func (s RunStatistics) logFields() logging.LogFields {
	fields := logging.LogFields{
		"run_number": s.RunNumber,
		"frames":     s.Frames,
		"of_frames":  s.NumberOfFrames,
		"messages":   s.Messages,
		"bytes":      s.Bytes,
		"retries":    s.Retries,
		"completed":  s.Completed,
	}
	if s.Messages > 0 {
		fields["message_ids"] = [2]uint64{s.FirstMessageID, s.LastMessageID}
	}
	if d := s.Duration(); d > 0 {
		fields["duration"] = d.String()
	}
	return fields
}

// Progress is reported after every frame.
type Progress struct {
	RunNumber      int64
	FrameIndex     int
	NumberOfFrames int
	// Fraction is FrameIndex/NumberOfFrames for the frame just sent.
	Fraction float64
	Stats    RunStatistics
}

// ProgressFunc receives progress reports. Errors and panics are logged and
// otherwise ignored; a failing reporter never affects the run.
type ProgressFunc func(Progress) error
