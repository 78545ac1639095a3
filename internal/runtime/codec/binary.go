package codec

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/drblury/pulseflow/internal/runtime/records"
)

var errTruncated = errors.New("payload truncated")

// Binary is the compact wire codec: the schema identifier followed by a
// protobuf wire format body.
type Binary struct{}

func (Binary) Name() string { return "binary" }

// field numbers per schema
const (
	evSourceName   protowire.Number = 1
	evMessageID    protowire.Number = 2
	evTimestamp    protowire.Number = 3
	evTimeOfFlight protowire.Number = 4
	evDetectorID   protowire.Number = 5
	evFrameIndex   protowire.Number = 6
	evProtonCharge protowire.Number = 7
	evPeriod       protowire.Number = 8
	evEndOfFrame   protowire.Number = 9
	evEndOfRun     protowire.Number = 10

	rsRunNumber   protowire.Number = 1
	rsStartTime   protowire.Number = 2
	rsStopTime    protowire.Number = 3
	rsInstrument  protowire.Number = 4
	rsPeriods     protowire.Number = 5
	rsSpectrumMap protowire.Number = 6

	stopRunNumber protowire.Number = 1
	stopTime      protowire.Number = 2

	seName      protowire.Number = 1
	seTimestamp protowire.Number = 2
	seKind      protowire.Number = 3
	seInteger   protowire.Number = 4
	seDouble    protowire.Number = 5
	seString    protowire.Number = 6

	dmDetectorIDs protowire.Number = 1
	dmSpectra     protowire.Number = 2
)

func (Binary) Encode(rec records.Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: nil record", ErrUnsupportedRecord)
	}
	schema, err := SchemaFor(rec.Kind())
	if err != nil {
		return nil, err
	}
	b := make([]byte, 0, 64)
	b = append(b, schema...)

	switch r := rec.(type) {
	case *records.Message:
		b = appendMessage(b, r)
	case *records.RunMetadata:
		b = appendRunStart(b, r)
	case *records.RunStop:
		b = appendSint(b, stopRunNumber, r.RunNumber)
		b = appendSint(b, stopTime, unixNano(r.StopTime))
	case *records.SampleEnvLog:
		b, err = appendSampleEnv(b, r)
	case *records.DetectorSpectrumMap:
		b = appendSpectrumMap(b, r)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedRecord, rec)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func appendMessage(b []byte, m *records.Message) []byte {
	if m.SourceName != "" {
		b = protowire.AppendTag(b, evSourceName, protowire.BytesType)
		b = protowire.AppendString(b, m.SourceName)
	}
	b = appendUvarint(b, evMessageID, m.MessageID)
	b = appendUvarint(b, evTimestamp, m.Timestamp)
	b = appendPackedUint32(b, evTimeOfFlight, m.TimesOfFlight)
	b = appendPackedUint32(b, evDetectorID, m.DetectorIDs)
	b = appendUvarint(b, evFrameIndex, uint64(m.FrameIndex))
	b = protowire.AppendTag(b, evProtonCharge, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(m.ProtonCharge))
	b = appendSint(b, evPeriod, int64(m.Period))
	b = appendBool(b, evEndOfFrame, m.EndOfFrame)
	b = appendBool(b, evEndOfRun, m.EndOfRun)
	return b
}

func appendRunStart(b []byte, r *records.RunMetadata) []byte {
	b = appendSint(b, rsRunNumber, r.RunNumber)
	b = appendSint(b, rsStartTime, unixNano(r.StartTime))
	b = appendSint(b, rsStopTime, unixNano(r.StopTime))
	b = protowire.AppendTag(b, rsInstrument, protowire.BytesType)
	b = protowire.AppendString(b, r.Instrument)
	b = appendSint(b, rsPeriods, int64(r.NumberOfPeriods))
	if r.SpectrumMap != nil {
		b = protowire.AppendTag(b, rsSpectrumMap, protowire.BytesType)
		b = protowire.AppendBytes(b, appendSpectrumMap(nil, r.SpectrumMap))
	}
	return b
}

func appendSampleEnv(b []byte, s *records.SampleEnvLog) ([]byte, error) {
	b = protowire.AppendTag(b, seName, protowire.BytesType)
	b = protowire.AppendString(b, s.Name)
	b = appendUvarint(b, seTimestamp, s.Timestamp)
	b = appendUvarint(b, seKind, uint64(s.Value.Kind()))

	switch s.Value.Kind() {
	case records.ValueInt:
		n, _ := s.Value.Int()
		b = appendSint(b, seInteger, int64(n))
	case records.ValueLong:
		n, _ := s.Value.Long()
		b = appendSint(b, seInteger, n)
	case records.ValueUInt:
		n, _ := s.Value.UInt()
		b = appendUvarint(b, seInteger, uint64(n))
	case records.ValueULong:
		n, _ := s.Value.ULong()
		b = appendUvarint(b, seInteger, n)
	case records.ValueDouble:
		f, _ := s.Value.Double()
		b = protowire.AppendTag(b, seDouble, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(f))
	case records.ValueString:
		str, _ := s.Value.Str()
		b = protowire.AppendTag(b, seString, protowire.BytesType)
		b = protowire.AppendString(b, str)
	default:
		return nil, fmt.Errorf("%w: sample env %q has no value", ErrUnsupportedRecord, s.Name)
	}
	return b, nil
}

func appendSpectrumMap(b []byte, m *records.DetectorSpectrumMap) []byte {
	b = appendPackedSint32(b, dmDetectorIDs, m.DetectorIDs)
	b = appendPackedSint32(b, dmSpectra, m.Spectra)
	return b
}

func appendUvarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendUvarint(b, num, protowire.EncodeZigZag(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendUvarint(b, num, protowire.EncodeBool(v))
}

func appendPackedUint32(b []byte, num protowire.Number, vs []uint32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, uint64(v))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func appendPackedSint32(b []byte, num protowire.Number, vs []int32) []byte {
	if len(vs) == 0 {
		return b
	}
	var packed []byte
	for _, v := range vs {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(v)))
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (Binary) Decode(payload []byte) (records.Record, error) {
	if len(payload) < schemaLen {
		return nil, &DecodeError{Err: errTruncated}
	}
	schema := string(payload[:schemaLen])
	d := &fieldReader{schema: schema, buf: payload[schemaLen:], offset: schemaLen}

	var (
		rec records.Record
		err error
	)
	switch schema {
	case SchemaEvents:
		rec, err = decodeMessage(d)
	case SchemaRunStart:
		rec, err = decodeRunStart(d)
	case SchemaRunStop:
		rec, err = decodeRunStop(d)
	case SchemaSampleEnv:
		rec, err = decodeSampleEnv(d)
	case SchemaSpectrumMap:
		rec, err = decodeSpectrumMap(d)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchema, schema)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// fieldReader walks the fields of one protowire body, tracking the absolute
// offset for error reports.
type fieldReader struct {
	schema string
	buf    []byte
	offset int
}

type field struct {
	num   protowire.Number
	typ   protowire.Type
	value uint64
	bytes []byte
}

func (r *fieldReader) fail(err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Schema: r.schema, Offset: r.offset, Err: err}
}

// next returns false at end of input.
func (r *fieldReader) next() (field, bool, error) {
	if len(r.buf) == 0 {
		return field{}, false, nil
	}
	num, typ, n := protowire.ConsumeTag(r.buf)
	if n < 0 {
		return field{}, false, r.fail(protowire.ParseError(n))
	}
	r.advance(n)

	f := field{num: num, typ: typ}
	switch typ {
	case protowire.VarintType:
		f.value, n = protowire.ConsumeVarint(r.buf)
	case protowire.Fixed64Type:
		f.value, n = protowire.ConsumeFixed64(r.buf)
	case protowire.Fixed32Type:
		var v uint32
		v, n = protowire.ConsumeFixed32(r.buf)
		f.value = uint64(v)
	case protowire.BytesType:
		f.bytes, n = protowire.ConsumeBytes(r.buf)
	default:
		n = protowire.ConsumeFieldValue(num, typ, r.buf)
	}
	if n < 0 {
		return field{}, false, r.fail(protowire.ParseError(n))
	}
	r.advance(n)
	return f, true, nil
}

func (r *fieldReader) advance(n int) {
	r.buf = r.buf[n:]
	r.offset += n
}

func (r *fieldReader) each(fn func(f field) error) error {
	for {
		f, ok, err := r.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := fn(f); err != nil {
			return r.fail(err)
		}
	}
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

// uint32s accepts both packed and unpacked encodings.
func (f field) uint32s(dst []uint32) ([]uint32, error) {
	if f.typ == protowire.VarintType {
		return append(dst, uint32(f.value)), nil
	}
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	for b := f.bytes; len(b) > 0; {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		dst = append(dst, uint32(v))
		b = b[n:]
	}
	return dst, nil
}

func (f field) sint32s(dst []int32) ([]int32, error) {
	if f.typ == protowire.VarintType {
		return append(dst, int32(protowire.DecodeZigZag(f.value))), nil
	}
	if err := f.expect(protowire.BytesType); err != nil {
		return nil, err
	}
	for b := f.bytes; len(b) > 0; {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		dst = append(dst, int32(protowire.DecodeZigZag(v)))
		b = b[n:]
	}
	return dst, nil
}

func (f field) sint() int64 { return protowire.DecodeZigZag(f.value) }

func decodeMessage(r *fieldReader) (*records.Message, error) {
	m := &records.Message{}
	err := r.each(func(f field) error {
		var err error
		switch f.num {
		case evSourceName:
			if err = f.expect(protowire.BytesType); err == nil {
				m.SourceName = string(f.bytes)
			}
		case evMessageID:
			m.MessageID = f.value
		case evTimestamp:
			m.Timestamp = f.value
		case evTimeOfFlight:
			m.TimesOfFlight, err = f.uint32s(m.TimesOfFlight)
		case evDetectorID:
			m.DetectorIDs, err = f.uint32s(m.DetectorIDs)
		case evFrameIndex:
			m.FrameIndex = int(f.value)
		case evProtonCharge:
			if err = f.expect(protowire.Fixed64Type); err == nil {
				m.ProtonCharge = math.Float64frombits(f.value)
			}
		case evPeriod:
			m.Period = int32(f.sint())
		case evEndOfFrame:
			m.EndOfFrame = protowire.DecodeBool(f.value)
		case evEndOfRun:
			m.EndOfRun = protowire.DecodeBool(f.value)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodeRunStart(r *fieldReader) (*records.RunMetadata, error) {
	meta := &records.RunMetadata{}
	err := r.each(func(f field) error {
		switch f.num {
		case rsRunNumber:
			meta.RunNumber = f.sint()
		case rsStartTime:
			meta.StartTime = fromUnixNano(f.sint())
		case rsStopTime:
			meta.StopTime = fromUnixNano(f.sint())
		case rsInstrument:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			meta.Instrument = string(f.bytes)
		case rsPeriods:
			meta.NumberOfPeriods = int32(f.sint())
		case rsSpectrumMap:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			nested := &fieldReader{schema: SchemaSpectrumMap, buf: f.bytes}
			sm, err := decodeSpectrumMap(nested)
			if err != nil {
				return err
			}
			meta.SpectrumMap = sm
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func decodeRunStop(r *fieldReader) (*records.RunStop, error) {
	stop := &records.RunStop{}
	err := r.each(func(f field) error {
		switch f.num {
		case stopRunNumber:
			stop.RunNumber = f.sint()
		case stopTime:
			stop.StopTime = fromUnixNano(f.sint())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stop, nil
}

func decodeSampleEnv(r *fieldReader) (*records.SampleEnvLog, error) {
	var (
		log     = &records.SampleEnvLog{}
		kind    records.ValueKind
		integer uint64
		double  float64
		str     string
	)
	err := r.each(func(f field) error {
		switch f.num {
		case seName:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			log.Name = string(f.bytes)
		case seTimestamp:
			log.Timestamp = f.value
		case seKind:
			kind = records.ValueKind(f.value)
		case seInteger:
			integer = f.value
		case seDouble:
			if err := f.expect(protowire.Fixed64Type); err != nil {
				return err
			}
			double = math.Float64frombits(f.value)
		case seString:
			if err := f.expect(protowire.BytesType); err != nil {
				return err
			}
			str = string(f.bytes)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch kind {
	case records.ValueInt:
		log.Value = records.IntValue(int32(protowire.DecodeZigZag(integer)))
	case records.ValueLong:
		log.Value = records.LongValue(protowire.DecodeZigZag(integer))
	case records.ValueUInt:
		log.Value = records.UIntValue(uint32(integer))
	case records.ValueULong:
		log.Value = records.ULongValue(integer)
	case records.ValueDouble:
		log.Value = records.DoubleValue(double)
	case records.ValueString:
		log.Value = records.StringValue(str)
	default:
		return nil, r.fail(fmt.Errorf("unknown value kind %d", kind))
	}
	return log, nil
}

func decodeSpectrumMap(r *fieldReader) (*records.DetectorSpectrumMap, error) {
	m := &records.DetectorSpectrumMap{}
	err := r.each(func(f field) error {
		var err error
		switch f.num {
		case dmDetectorIDs:
			m.DetectorIDs, err = f.sint32s(m.DetectorIDs)
		case dmSpectra:
			m.Spectra, err = f.sint32s(m.Spectra)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(m.DetectorIDs) != len(m.Spectra) {
		return nil, r.fail(fmt.Errorf("%d detector ids but %d spectra", len(m.DetectorIDs), len(m.Spectra)))
	}
	return m, nil
}
