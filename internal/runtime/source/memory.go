package source

import "github.com/drblury/pulseflow/internal/runtime/records"

// Memory serves frames held in memory.
type Memory struct {
	Frames     []records.Frame
	Period     int32
	Spectra    *records.DetectorSpectrumMap
	SampleLogs map[int][]records.SampleEnvLog
}

// NewMemory wraps frames. Frame indices are taken from slice positions.
func NewMemory(frames ...records.Frame) *Memory {
	return &Memory{Frames: frames}
}

func (m *Memory) NumberOfFrames() int { return len(m.Frames) }

func (m *Memory) EventIDsAndTOFs(i int) ([]uint32, []uint32, error) {
	if err := checkIndex(i, len(m.Frames)); err != nil {
		return nil, nil, err
	}
	return m.Frames[i].DetectorIDs, m.Frames[i].TimesOfFlight, nil
}

func (m *Memory) ProtonCharge(i int) (float64, error) {
	if err := checkIndex(i, len(m.Frames)); err != nil {
		return 0, err
	}
	return m.Frames[i].ProtonCharge, nil
}

func (m *Memory) FrameTimestamp(i int) (uint64, error) {
	if err := checkIndex(i, len(m.Frames)); err != nil {
		return 0, err
	}
	return m.Frames[i].Timestamp, nil
}

func (m *Memory) PeriodNumber() int32 { return m.Period }

func (m *Memory) TotalEventCount() uint64 {
	var total uint64
	for _, f := range m.Frames {
		total += uint64(f.EventCount())
	}
	return total
}

func (m *Memory) SampleEnvLogs(i int) ([]records.SampleEnvLog, error) {
	if err := checkIndex(i, len(m.Frames)); err != nil {
		return nil, err
	}
	return m.SampleLogs[i], nil
}

func (m *Memory) SpectrumMap() (*records.DetectorSpectrumMap, error) {
	return m.Spectra, nil
}
