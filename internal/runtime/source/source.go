// Package source defines the random-access frame data source the driver reads
// from, and provides in-memory, file backed and synthetic implementations.
package source

import (
	"fmt"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/records"
)

// Source is a finite, ordered, random-access sequence of frames. Callers only
// ask for indices in [0, NumberOfFrames()).
type Source interface {
	NumberOfFrames() int
	EventIDsAndTOFs(frame int) (detectorIDs, timesOfFlight []uint32, err error)
	ProtonCharge(frame int) (float64, error)
	FrameTimestamp(frame int) (uint64, error)
	PeriodNumber() int32
	TotalEventCount() uint64
}

// SampleEnvSource is implemented by sources that carry auxiliary value logs.
type SampleEnvSource interface {
	SampleEnvLogs(frame int) ([]records.SampleEnvLog, error)
}

// SpectrumMapSource is implemented by sources that know their detector to
// spectrum mapping.
type SpectrumMapSource interface {
	SpectrumMap() (*records.DetectorSpectrumMap, error)
}

// ReadFrame assembles frame i from its parts.
func ReadFrame(src Source, i int) (records.Frame, error) {
	ids, tofs, err := src.EventIDsAndTOFs(i)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read events of frame %d: %w", i, err)
	}
	charge, err := src.ProtonCharge(i)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read proton charge of frame %d: %w", i, err)
	}
	ts, err := src.FrameTimestamp(i)
	if err != nil {
		return records.Frame{}, fmt.Errorf("read timestamp of frame %d: %w", i, err)
	}
	return records.Frame{
		Index:         i,
		DetectorIDs:   ids,
		TimesOfFlight: tofs,
		ProtonCharge:  charge,
		Period:        src.PeriodNumber(),
		Timestamp:     ts,
	}, nil
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("%w: %d not in [0, %d)", pferrors.ErrFrameOutOfRange, i, n)
	}
	return nil
}
