package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/records"
)

func TestTrackerHappyPath(t *testing.T) {
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tr := New()
	assert.Equal(t, NotStarted, tr.State())
	assert.Equal(t, -1, tr.CurrentFrame())

	require.NoError(t, tr.Begin(records.RunMetadata{RunNumber: 5, StartTime: start, Instrument: "LET", StopTime: start}))
	assert.Equal(t, Started, tr.State())
	assert.True(t, tr.Metadata().StopTime.IsZero(), "stop time is only set by Finish")

	assert.False(t, tr.Advance(0, 2))
	tr.Observe(records.Message{FrameIndex: 0, MessageID: 1, EndOfFrame: true})
	assert.True(t, tr.Advance(1, 2))
	tr.Observe(records.Message{FrameIndex: 1, MessageID: 2, EndOfFrame: true, EndOfRun: true})

	assert.Equal(t, 1, tr.CurrentFrame())
	assert.Equal(t, uint64(2), tr.LastMessageID())
	assert.Equal(t, 1, tr.LastMessageFrame())
	assert.True(t, tr.EndOfRunSent())

	stop := start.Add(time.Minute)
	rs, err := tr.Finish(stop)
	require.NoError(t, err)
	assert.Equal(t, records.RunStop{RunNumber: 5, StopTime: stop}, rs)
	assert.Equal(t, Stopped, tr.State())
	assert.Equal(t, stop, tr.Metadata().StopTime)
}

func TestTrackerTransitionsAreOneWay(t *testing.T) {
	tr := New()
	_, err := tr.Finish(time.Now())
	assert.ErrorIs(t, err, pferrors.ErrRunNotStarted)

	require.NoError(t, tr.Begin(records.RunMetadata{RunNumber: 1}))
	assert.ErrorIs(t, tr.Begin(records.RunMetadata{RunNumber: 2}), pferrors.ErrRunAlreadyStarted)
	assert.Equal(t, int64(1), tr.Metadata().RunNumber)

	first := time.Unix(100, 0)
	_, err = tr.Finish(first)
	require.NoError(t, err)
	_, err = tr.Finish(time.Unix(200, 0))
	assert.ErrorIs(t, err, pferrors.ErrRunAlreadyStopped)
	assert.Equal(t, first, tr.Metadata().StopTime, "stop time is set exactly once")
	assert.ErrorIs(t, tr.Begin(records.RunMetadata{}), pferrors.ErrRunAlreadyStarted)
}

func TestEndOfRunOnlyFromFlaggedMessage(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Begin(records.RunMetadata{}))
	tr.Advance(0, 1)
	tr.Observe(records.Message{EndOfFrame: true})
	assert.False(t, tr.EndOfRunSent())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "not_started", NotStarted.String())
	assert.Equal(t, "started", Started.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "state(4)", State(4).String())
}
