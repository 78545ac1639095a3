// Package jsoncodec centralises the JSON configuration used for frame files,
// the JSON wire codec and the JSON-lines message log.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var (
	std    = sonic.ConfigStd
	strict = sonic.Config{
		EscapeHTML:            true,
		SortMapKeys:           true,
		CompactMarshaler:      true,
		CopyString:            true,
		ValidateString:        true,
		DisallowUnknownFields: true,
	}.Froze()
)

func Marshal(v any) ([]byte, error) {
	return std.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return std.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return std.Unmarshal(data, v)
}

// UnmarshalStrict rejects documents carrying fields v does not declare.
func UnmarshalStrict(data []byte, v any) error {
	return strict.Unmarshal(data, v)
}

// Encode writes v followed by a newline, which makes it suitable for JSON lines.
func Encode(w io.Writer, v any) error {
	return std.NewEncoder(w).Encode(v)
}

func Decode(r io.Reader, v any) error {
	return std.NewDecoder(r).Decode(v)
}

// NewDecoder returns a streaming decoder for reading successive JSON values.
func NewDecoder(r io.Reader) sonic.Decoder {
	return std.NewDecoder(r)
}
