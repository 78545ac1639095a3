package source

import (
	"fmt"
	"os"

	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/records"
)

// FileDocument is the on-disk layout read by LoadFile.
type FileDocument struct {
	Period      int32           `json:"period"`
	SpectrumMap *spectrumMapDoc `json:"detector_spectrum_map,omitempty"`
	Frames      []frameDoc      `json:"frames"`
}

type spectrumMapDoc struct {
	DetectorIDs []int32 `json:"detector_id"`
	Spectra     []int32 `json:"spectrum"`
}

type frameDoc struct {
	DetectorIDs   []uint32       `json:"detector_id"`
	TimesOfFlight []uint32       `json:"time_of_flight"`
	ProtonCharge  float64        `json:"proton_charge"`
	Timestamp     uint64         `json:"pulse_time"`
	SampleEnv     []sampleEnvDoc `json:"sample_env,omitempty"`
}

type sampleEnvDoc struct {
	Name      string        `json:"name"`
	Timestamp uint64        `json:"timestamp"`
	Value     records.Value `json:"value"`
}

// LoadFile reads a frame document from path into memory. Unknown fields are
// rejected so typos in hand written fixtures surface immediately.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes a frame document.
func ParseFile(data []byte) (*Memory, error) {
	var doc FileDocument
	if err := jsoncodec.UnmarshalStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("parse frame file: %w", err)
	}

	mem := &Memory{Period: doc.Period, Frames: make([]records.Frame, len(doc.Frames))}
	if doc.SpectrumMap != nil {
		if len(doc.SpectrumMap.DetectorIDs) != len(doc.SpectrumMap.Spectra) {
			return nil, fmt.Errorf("parse frame file: spectrum map has %d detector ids but %d spectra",
				len(doc.SpectrumMap.DetectorIDs), len(doc.SpectrumMap.Spectra))
		}
		mem.Spectra = &records.DetectorSpectrumMap{DetectorIDs: doc.SpectrumMap.DetectorIDs, Spectra: doc.SpectrumMap.Spectra}
	}

	for i, f := range doc.Frames {
		mem.Frames[i] = records.Frame{
			Index:         i,
			DetectorIDs:   f.DetectorIDs,
			TimesOfFlight: f.TimesOfFlight,
			ProtonCharge:  f.ProtonCharge,
			Period:        doc.Period,
			Timestamp:     f.Timestamp,
		}
		if len(f.SampleEnv) == 0 {
			continue
		}
		if mem.SampleLogs == nil {
			mem.SampleLogs = make(map[int][]records.SampleEnvLog)
		}
		for _, s := range f.SampleEnv {
			mem.SampleLogs[i] = append(mem.SampleLogs[i], records.SampleEnvLog{Name: s.Name, Timestamp: s.Timestamp, Value: s.Value})
		}
	}
	return mem, nil
}
