package records

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/bytedance/sonic"
)

// ValueKind tags the variant held by a Value.
type ValueKind uint8

const (
	ValueInvalid ValueKind = iota
	ValueInt
	ValueLong
	ValueUInt
	ValueULong
	ValueDouble
	ValueString
)

var valueKindNames = map[ValueKind]string{
	ValueInt:    "int",
	ValueLong:   "long",
	ValueUInt:   "uint",
	ValueULong:  "ulong",
	ValueDouble: "double",
	ValueString: "string",
}

func (k ValueKind) String() string {
	if name, ok := valueKindNames[k]; ok {
		return name
	}
	return "invalid"
}

// ParseValueKind is the inverse of ValueKind.String.
func ParseValueKind(s string) (ValueKind, error) {
	for k, name := range valueKindNames {
		if name == s {
			return k, nil
		}
	}
	return ValueInvalid, fmt.Errorf("unknown value kind %q", s)
}

// Value is a sample-environment reading of one of six scalar types. Integer
// variants share bits; the kind decides how they are read back.
type Value struct {
	kind ValueKind
	bits uint64
	str  string
}

func IntValue(v int32) Value      { return Value{kind: ValueInt, bits: uint64(int64(v))} }
func LongValue(v int64) Value     { return Value{kind: ValueLong, bits: uint64(v)} }
func UIntValue(v uint32) Value    { return Value{kind: ValueUInt, bits: uint64(v)} }
func ULongValue(v uint64) Value   { return Value{kind: ValueULong, bits: v} }
func DoubleValue(v float64) Value { return Value{kind: ValueDouble, bits: math.Float64bits(v)} }
func StringValue(v string) Value  { return Value{kind: ValueString, str: v} }

func (v Value) Kind() ValueKind { return v.kind }

// Int returns the int32 payload; ok is false for other kinds.
func (v Value) Int() (int32, bool) { return int32(int64(v.bits)), v.kind == ValueInt }

func (v Value) Long() (int64, bool) { return int64(v.bits), v.kind == ValueLong }

func (v Value) UInt() (uint32, bool) { return uint32(v.bits), v.kind == ValueUInt }

func (v Value) ULong() (uint64, bool) { return v.bits, v.kind == ValueULong }

func (v Value) Double() (float64, bool) { return math.Float64frombits(v.bits), v.kind == ValueDouble }

func (v Value) Str() (string, bool) { return v.str, v.kind == ValueString }

// String formats the payload for logs.
func (v Value) String() string {
	switch v.kind {
	case ValueInt, ValueLong:
		return strconv.FormatInt(int64(v.bits), 10)
	case ValueUInt, ValueULong:
		return strconv.FormatUint(v.bits, 10)
	case ValueDouble:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	case ValueString:
		return v.str
	default:
		return "<invalid>"
	}
}

type valueJSON struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// MarshalJSON writes {"type": kind, "value": payload}. 64-bit integers are
// written as strings so they survive float64 round trips.
func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Type: v.kind.String()}
	switch v.kind {
	case ValueInt:
		out.Value = int32(int64(v.bits))
	case ValueUInt:
		out.Value = uint32(v.bits)
	case ValueLong, ValueULong:
		out.Value = v.String()
	case ValueDouble:
		out.Value = math.Float64frombits(v.bits)
	case ValueString:
		out.Value = v.str
	default:
		return nil, fmt.Errorf("marshal invalid sample env value")
	}
	return sonic.Marshal(out)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := sonic.Unmarshal(data, &in); err != nil {
		return err
	}
	kind, err := ParseValueKind(in.Type)
	if err != nil {
		return err
	}
	raw := []byte(in.Value)

	switch kind {
	case ValueInt:
		var n int32
		err = sonic.Unmarshal(raw, &n)
		*v = IntValue(n)
	case ValueUInt:
		var n uint32
		err = sonic.Unmarshal(raw, &n)
		*v = UIntValue(n)
	case ValueLong:
		var n int64
		n, err = parseQuotedInt(raw)
		*v = LongValue(n)
	case ValueULong:
		var n uint64
		n, err = parseQuotedUint(raw)
		*v = ULongValue(n)
	case ValueDouble:
		var f float64
		err = sonic.Unmarshal(raw, &f)
		*v = DoubleValue(f)
	case ValueString:
		var s string
		err = sonic.Unmarshal(raw, &s)
		*v = StringValue(s)
	}
	if err != nil {
		return fmt.Errorf("decode %s value: %w", kind, err)
	}
	return nil
}

func unquote(raw []byte) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		return string(raw[1 : len(raw)-1])
	}
	return string(raw)
}

func parseQuotedInt(raw []byte) (int64, error) {
	return strconv.ParseInt(unquote(raw), 10, 64)
}

func parseQuotedUint(raw []byte) (uint64, error) {
	return strconv.ParseUint(unquote(raw), 10, 64)
}
