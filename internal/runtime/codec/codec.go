// Package codec turns records into self-describing payloads and back. Every
// payload carries a four character schema identifier so a consumer can decode
// it without out-of-band context.
package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/drblury/pulseflow/internal/runtime/records"
)

// Schema identifiers, one per record kind.
const (
	SchemaEvents      = "ev42"
	SchemaRunStart    = "pl72"
	SchemaRunStop     = "6s4t"
	SchemaSampleEnv   = "f142"
	SchemaSpectrumMap = "df12"
)

const schemaLen = 4

var (
	ErrUnknownSchema     = errors.New("pulseflow: unknown payload schema")
	ErrUnsupportedRecord = errors.New("pulseflow: record type cannot be encoded")
	ErrUnknownCodec      = errors.New("pulseflow: unknown codec")
)

// Codec encodes and decodes records.
type Codec interface {
	Encode(rec records.Record) ([]byte, error)
	Decode(payload []byte) (records.Record, error)
	Name() string
}

// DecodeError reports a payload that could not be decoded.
type DecodeError struct {
	Schema string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Schema == "" {
		return fmt.Sprintf("pulseflow: decode payload: %v", e.Err)
	}
	return fmt.Sprintf("pulseflow: decode %s payload at byte %d: %v", e.Schema, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SchemaFor returns the identifier used for a record kind.
func SchemaFor(kind records.Kind) (string, error) {
	switch kind {
	case records.KindEvents:
		return SchemaEvents, nil
	case records.KindRunStart:
		return SchemaRunStart, nil
	case records.KindRunStop:
		return SchemaRunStop, nil
	case records.KindSampleEnv:
		return SchemaSampleEnv, nil
	case records.KindSpectrumMap:
		return SchemaSpectrumMap, nil
	default:
		return "", fmt.Errorf("%w: kind %d", ErrUnsupportedRecord, kind)
	}
}

// ForName resolves a codec by its configured name.
func ForName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "binary":
		return Binary{}, nil
	case "json":
		return JSON{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// PeekSchema reads the schema identifier of a payload without decoding it.
// Binary payloads start with it; JSON payloads carry it in the envelope.
func PeekSchema(payload []byte) (string, error) {
	if len(payload) > 0 && payload[0] == '{' {
		return peekJSONSchema(payload)
	}
	if len(payload) < schemaLen {
		return "", &DecodeError{Err: errTruncated}
	}
	return string(payload[:schemaLen]), nil
}
