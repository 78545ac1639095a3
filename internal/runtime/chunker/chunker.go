// Package chunker splits a frame into the bounded messages that are published
// for it.
package chunker

import (
	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/records"
)

// Chunk splits frame into exactly messagesPerFrame messages.
//
// Every message but the last carries ceil(events/messagesPerFrame) events; the
// last carries whatever remains, which may be nothing. When the rounded slice
// size overshoots the event count the trailing messages are empty. Each
// message gets an equal share of the frame's proton charge regardless of how
// many events it holds. EndOfFrame is set on the last message only, and
// EndOfRun additionally when isLastFrameOfRun is true.
//
// Message ids are left at zero for the caller to assign.
func Chunk(frame records.Frame, messagesPerFrame int, isLastFrameOfRun bool) ([]records.Message, error) {
	if messagesPerFrame < 1 {
		return nil, pferrors.ErrInvalidMessagesPerFrame
	}
	if len(frame.DetectorIDs) != len(frame.TimesOfFlight) {
		return nil, &pferrors.MalformedFrameError{
			FrameIndex:    frame.Index,
			DetectorIDs:   len(frame.DetectorIDs),
			TimesOfFlight: len(frame.TimesOfFlight),
		}
	}

	total := frame.EventCount()
	size := SliceSize(total, messagesPerFrame)
	share := frame.ProtonCharge / float64(messagesPerFrame)

	out := make([]records.Message, messagesPerFrame)
	for i := range out {
		start := min(i*size, total)
		end := min(start+size, total)
		last := i == messagesPerFrame-1
		if last {
			end = total
		}
		out[i] = records.Message{
			FrameIndex:    frame.Index,
			DetectorIDs:   frame.DetectorIDs[start:end:end],
			TimesOfFlight: frame.TimesOfFlight[start:end:end],
			ProtonCharge:  share,
			Period:        frame.Period,
			Timestamp:     frame.Timestamp,
			EndOfFrame:    last,
			EndOfRun:      last && isLastFrameOfRun,
		}
	}
	return out, nil
}

// SliceSize is ceil(total/messagesPerFrame), the event count of every message
// except the last.
func SliceSize(total, messagesPerFrame int) int {
	if messagesPerFrame < 1 {
		return 0
	}
	return (total + messagesPerFrame - 1) / messagesPerFrame
}
