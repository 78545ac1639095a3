package source

import (
	"fmt"
	"math/rand/v2"
)

// SyntheticConfig shapes generated frames.
type SyntheticConfig struct {
	Frames          int
	EventsPerFrame  int
	MinDetectorID   uint32
	MaxDetectorID   uint32
	MaxTimeOfFlight uint32
	ProtonCharge    float64
	Period          int32
	Seed            uint64
	StartTimestamp  uint64
	FramePeriodNs   uint64
}

// Synthetic generates deterministic fake frames. The same seed and frame
// index always produce the same events, regardless of access order.
type Synthetic struct {
	cfg SyntheticConfig
}

// NewSynthetic validates cfg and fills in defaults for zero ranges.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if cfg.Frames < 0 || cfg.EventsPerFrame < 0 {
		return nil, fmt.Errorf("synthetic source: frames and events per frame must not be negative")
	}
	if cfg.MaxDetectorID == 0 {
		cfg.MaxDetectorID = 1024
	}
	if cfg.MinDetectorID > cfg.MaxDetectorID {
		return nil, fmt.Errorf("synthetic source: detector range [%d, %d] is empty", cfg.MinDetectorID, cfg.MaxDetectorID)
	}
	if cfg.MaxTimeOfFlight == 0 {
		cfg.MaxTimeOfFlight = 20000
	}
	if cfg.FramePeriodNs == 0 {
		// 10 Hz
		cfg.FramePeriodNs = 100_000_000
	}
	return &Synthetic{cfg: cfg}, nil
}

func (s *Synthetic) rng(i int) *rand.Rand {
	return rand.New(rand.NewPCG(s.cfg.Seed, uint64(i)))
}

func (s *Synthetic) NumberOfFrames() int { return s.cfg.Frames }

func (s *Synthetic) EventIDsAndTOFs(i int) ([]uint32, []uint32, error) {
	if err := checkIndex(i, s.cfg.Frames); err != nil {
		return nil, nil, err
	}
	r := s.rng(i)
	span := s.cfg.MaxDetectorID - s.cfg.MinDetectorID + 1
	ids := make([]uint32, s.cfg.EventsPerFrame)
	tofs := make([]uint32, s.cfg.EventsPerFrame)
	for e := range ids {
		ids[e] = s.cfg.MinDetectorID + r.Uint32N(span)
		tofs[e] = r.Uint32N(s.cfg.MaxTimeOfFlight)
	}
	return ids, tofs, nil
}

func (s *Synthetic) ProtonCharge(i int) (float64, error) {
	if err := checkIndex(i, s.cfg.Frames); err != nil {
		return 0, err
	}
	return s.cfg.ProtonCharge, nil
}

func (s *Synthetic) FrameTimestamp(i int) (uint64, error) {
	if err := checkIndex(i, s.cfg.Frames); err != nil {
		return 0, err
	}
	return s.cfg.StartTimestamp + uint64(i)*s.cfg.FramePeriodNs, nil
}

func (s *Synthetic) PeriodNumber() int32 { return s.cfg.Period }

func (s *Synthetic) TotalEventCount() uint64 {
	return uint64(s.cfg.Frames) * uint64(s.cfg.EventsPerFrame)
}
