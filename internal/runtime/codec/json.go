package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/internal/runtime/records"
)

// JSON is a human readable codec. Payloads are an envelope carrying the
// schema identifier next to the record body.
type JSON struct{}

func (JSON) Name() string { return "json" }

type envelope struct {
	Schema string          `json:"schema"`
	Body   json.RawMessage `json:"body"`
}

type messageBody struct {
	SourceName    string   `json:"source_name,omitempty"`
	MessageID     uint64   `json:"message_id"`
	FrameIndex    int      `json:"frame_index"`
	Timestamp     uint64   `json:"pulse_time"`
	DetectorIDs   []uint32 `json:"detector_id"`
	TimesOfFlight []uint32 `json:"time_of_flight"`
	ProtonCharge  float64  `json:"proton_charge"`
	Period        int32    `json:"period"`
	EndOfFrame    bool     `json:"end_of_frame"`
	EndOfRun      bool     `json:"end_of_run"`
}

type spectrumMapBody struct {
	DetectorIDs []int32 `json:"detector_id"`
	Spectra     []int32 `json:"spectrum"`
}

type runStartBody struct {
	RunNumber       int64            `json:"run_number"`
	StartTime       *time.Time       `json:"start_time,omitempty"`
	StopTime        *time.Time       `json:"stop_time,omitempty"`
	Instrument      string           `json:"instrument_name"`
	NumberOfPeriods int32            `json:"n_periods"`
	SpectrumMap     *spectrumMapBody `json:"detector_spectrum_map,omitempty"`
}

type runStopBody struct {
	RunNumber int64      `json:"run_number"`
	StopTime  *time.Time `json:"stop_time,omitempty"`
}

type sampleEnvBody struct {
	Name      string        `json:"name"`
	Timestamp uint64        `json:"timestamp"`
	Value     records.Value `json:"value"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func (JSON) Encode(rec records.Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrUnsupportedRecord)
	}
	schema, err := SchemaFor(rec.Kind())
	if err != nil {
		return nil, err
	}

	var body any
	switch r := rec.(type) {
	case *records.Message:
		body = messageBody{
			SourceName:    r.SourceName,
			MessageID:     r.MessageID,
			FrameIndex:    r.FrameIndex,
			Timestamp:     r.Timestamp,
			DetectorIDs:   r.DetectorIDs,
			TimesOfFlight: r.TimesOfFlight,
			ProtonCharge:  r.ProtonCharge,
			Period:        r.Period,
			EndOfFrame:    r.EndOfFrame,
			EndOfRun:      r.EndOfRun,
		}
	case *records.RunMetadata:
		rs := runStartBody{
			RunNumber:       r.RunNumber,
			StartTime:       timePtr(r.StartTime),
			StopTime:        timePtr(r.StopTime),
			Instrument:      r.Instrument,
			NumberOfPeriods: r.NumberOfPeriods,
		}
		if r.SpectrumMap != nil {
			rs.SpectrumMap = &spectrumMapBody{DetectorIDs: r.SpectrumMap.DetectorIDs, Spectra: r.SpectrumMap.Spectra}
		}
		body = rs
	case *records.RunStop:
		body = runStopBody{RunNumber: r.RunNumber, StopTime: timePtr(r.StopTime)}
	case *records.SampleEnvLog:
		if r.Value.Kind() == records.ValueInvalid {
			return nil, fmt.Errorf("%w: sample env %q has no value", ErrUnsupportedRecord, r.Name)
		}
		body = sampleEnvBody{Name: r.Name, Timestamp: r.Timestamp, Value: r.Value}
	case *records.DetectorSpectrumMap:
		body = spectrumMapBody{DetectorIDs: r.DetectorIDs, Spectra: r.Spectra}
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRecord, rec)
	}

	raw, err := jsoncodec.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s body: %w", schema, err)
	}
	return jsoncodec.Marshal(envelope{Schema: schema, Body: raw})
}

func (JSON) Decode(payload []byte) (records.Record, error) {
	var env envelope
	if err := jsoncodec.Unmarshal(payload, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if len(env.Body) == 0 {
		return nil, &DecodeError{Schema: env.Schema, Err: fmt.Errorf("missing body")}
	}

	fail := func(err error) error {
		return &DecodeError{Schema: env.Schema, Err: err}
	}

	switch env.Schema {
	case SchemaEvents:
		var b messageBody
		if err := jsoncodec.Unmarshal(env.Body, &b); err != nil {
			return nil, fail(err)
		}
		return &records.Message{
			SourceName:    b.SourceName,
			MessageID:     b.MessageID,
			FrameIndex:    b.FrameIndex,
			Timestamp:     b.Timestamp,
			DetectorIDs:   b.DetectorIDs,
			TimesOfFlight: b.TimesOfFlight,
			ProtonCharge:  b.ProtonCharge,
			Period:        b.Period,
			EndOfFrame:    b.EndOfFrame,
			EndOfRun:      b.EndOfRun,
		}, nil
	case SchemaRunStart:
		var b runStartBody
		if err := jsoncodec.Unmarshal(env.Body, &b); err != nil {
			return nil, fail(err)
		}
		meta := &records.RunMetadata{
			RunNumber:       b.RunNumber,
			StartTime:       timeVal(b.StartTime),
			StopTime:        timeVal(b.StopTime),
			Instrument:      b.Instrument,
			NumberOfPeriods: b.NumberOfPeriods,
		}
		if b.SpectrumMap != nil {
			meta.SpectrumMap = &records.DetectorSpectrumMap{DetectorIDs: b.SpectrumMap.DetectorIDs, Spectra: b.SpectrumMap.Spectra}
		}
		return meta, nil
	case SchemaRunStop:
		var b runStopBody
		if err := jsoncodec.Unmarshal(env.Body, &b); err != nil {
			return nil, fail(err)
		}
		return &records.RunStop{RunNumber: b.RunNumber, StopTime: timeVal(b.StopTime)}, nil
	case SchemaSampleEnv:
		var b sampleEnvBody
		if err := jsoncodec.Unmarshal(env.Body, &b); err != nil {
			return nil, fail(err)
		}
		return &records.SampleEnvLog{Name: b.Name, Timestamp: b.Timestamp, Value: b.Value}, nil
	case SchemaSpectrumMap:
		var b spectrumMapBody
		if err := jsoncodec.Unmarshal(env.Body, &b); err != nil {
			return nil, fail(err)
		}
		if len(b.DetectorIDs) != len(b.Spectra) {
			return nil, fail(fmt.Errorf("%d detector ids but %d spectra", len(b.DetectorIDs), len(b.Spectra)))
		}
		return &records.DetectorSpectrumMap{DetectorIDs: b.DetectorIDs, Spectra: b.Spectra}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, env.Schema)
	}
}

func peekJSONSchema(payload []byte) (string, error) {
	var env struct {
		Schema string `json:"schema"`
	}
	if err := jsoncodec.Unmarshal(payload, &env); err != nil {
		return "", &DecodeError{Err: err}
	}
	return env.Schema, nil
}

// Detect picks the codec able to read payload: JSON envelopes start with '{',
// everything else is treated as binary.
func Detect(payload []byte) Codec {
	if len(payload) > 0 && payload[0] == '{' {
		return JSON{}
	}
	return Binary{}
}
