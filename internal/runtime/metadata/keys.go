package metadata

import "strconv"

// Header keys pulseflow writes on every published message.
const (
	KeySchema      = "event_message_schema"
	KeyDestination = "pulseflow_destination"
	KeyUUID        = "pulseflow_uuid"
	KeyRunNumber   = "pulseflow_run_number"
	KeyFrameIndex  = "pulseflow_frame_index"
	KeyMessageID   = "pulseflow_message_id"
	KeyCodec       = "pulseflow_codec"
)

// WithInt returns a clone carrying key set to the decimal form of v.
func (m Metadata) WithInt(key string, v int64) Metadata {
	return m.With(key, strconv.FormatInt(v, 10))
}

// WithUint returns a clone carrying key set to the decimal form of v.
func (m Metadata) WithUint(key string, v uint64) Metadata {
	return m.With(key, strconv.FormatUint(v, 10))
}

// Int parses the value stored at key. Missing or malformed values report false.
func (m Metadata) Int(key string) (int64, bool) {
	raw, ok := m[key]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
