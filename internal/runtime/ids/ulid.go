// Package ids generates the identifiers pulseflow stamps on published data:
// ULIDs for broker message uuids and a monotonic sequence for message ids.
package ids

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULIDSource produces monotonic ULIDs from a single entropy stream.
type ULIDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewULIDSource builds a source reading entropy from r, or crypto/rand when r is nil.
func NewULIDSource(r io.Reader) *ULIDSource {
	if r == nil {
		r = rand.Reader
	}
	return &ULIDSource{entropy: ulid.Monotonic(r, 0), now: time.Now}
}

// Next returns the next ULID as a 26 character string.
func (s *ULIDSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

var defaultULIDs = NewULIDSource(nil)

// CreateULID returns a time-sortable ULID from the process-wide source.
func CreateULID() string {
	return defaultULIDs.Next()
}

// ULIDTime extracts the millisecond timestamp embedded in a ULID string.
func ULIDTime(id string) (time.Time, error) {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
