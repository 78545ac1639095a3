package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/transport"
)

func newTestPublisherSink(t *testing.T, pub *mockPublisher, caps transport.Capabilities) *PublisherSink {
	t.Helper()
	s, err := NewPublisherSink(pub, PublisherSinkConfig{Topics: DefaultTopics("MERLIN"), Capabilities: caps}, logging.NopLogger())
	require.NoError(t, err)
	return s
}

func TestDefaultTopics(t *testing.T) {
	topics := DefaultTopics("LET")
	assert.Equal(t, "LET_events", topics[Events])
	assert.Equal(t, "LET_runInfo", topics[RunInfo])
	assert.Equal(t, "LET_sampleEnv", topics[SampleEnv])
	assert.Equal(t, "LET_detSpecMap", topics[DetSpecMap])
	assert.Equal(t, "LET_histograms", topics[Histograms])

	custom := topics.With(Topics{Events: "raw", RunInfo: ""})
	assert.Equal(t, "raw", custom[Events])
	assert.Equal(t, "LET_runInfo", custom[RunInfo])
	assert.Equal(t, "LET_events", topics[Events], "With must not mutate the receiver")
}

func TestPublisherSinkPublishes(t *testing.T) {
	pub := newMockPublisher()
	s := newTestPublisherSink(t, pub, transport.Capabilities{Name: "channel"})

	md := metadata.New(metadata.KeySchema, "ev42", metadata.KeyUUID, "01HZZZ")
	res := s.Send(context.Background(), Events, []byte("abc"), md)
	require.Equal(t, StatusAccepted, res.Status)

	msgs := pub.published["MERLIN_events"]
	require.Len(t, msgs, 1)
	assert.Equal(t, "01HZZZ", msgs[0].UUID)
	assert.Equal(t, []byte("abc"), []byte(msgs[0].Payload))
	assert.Equal(t, "ev42", msgs[0].Metadata.Get(metadata.KeySchema))
	assert.Equal(t, "events", msgs[0].Metadata.Get(metadata.KeyDestination))
	assert.Empty(t, md[metadata.KeyDestination], "caller metadata must stay untouched")
	assert.Equal(t, int64(1), s.CurrentOffset())

	res = s.Send(context.Background(), RunInfo, []byte("x"), nil)
	require.Equal(t, StatusAccepted, res.Status)
	assert.Len(t, pub.published["MERLIN_runInfo"][0].UUID, 26, "uuid generated when missing")
}

func TestPublisherSinkRejections(t *testing.T) {
	pub := newMockPublisher()
	s := newTestPublisherSink(t, pub, transport.Capabilities{Name: "aws", MaxMessageSize: 4})

	res := s.Send(context.Background(), Events, []byte("12345"), nil)
	assert.Equal(t, StatusFatal, res.Status)
	assert.ErrorIs(t, res.Err, pferrors.ErrMessageTooLarge)

	res = s.Send(context.Background(), DestinationClass("unknown"), []byte("1"), nil)
	assert.Equal(t, StatusFatal, res.Status)
	assert.ErrorIs(t, res.Err, pferrors.ErrTopicRequired)

	assert.Empty(t, pub.published)
	assert.Zero(t, s.CurrentOffset())
}

func TestPublisherSinkClassifiesPublishErrors(t *testing.T) {
	pub := newMockPublisher()
	s := newTestPublisherSink(t, pub, transport.Capabilities{})

	pub.err = nats.ErrTimeout
	assert.Equal(t, StatusTransient, s.Send(context.Background(), Events, nil, nil).Status)

	pub.err = errors.New("permission denied")
	res := s.Send(context.Background(), Events, nil, nil)
	assert.Equal(t, StatusFatal, res.Status)
	assert.EqualError(t, res.Err, "permission denied")
}

func TestPublisherSinkUsesPublisherOffsetAndFlush(t *testing.T) {
	pub := &offsetPublisher{mockPublisher: newMockPublisher(), offset: 41}
	s, err := NewPublisherSink(pub, PublisherSinkConfig{Topics: DefaultTopics("X")}, logging.NopLogger())
	require.NoError(t, err)

	assert.Equal(t, int64(41), s.CurrentOffset())
	require.NoError(t, s.Flush(context.Background()))
	assert.Equal(t, 1, pub.flushes)
	require.NoError(t, s.Close())
	assert.True(t, pub.closed)

	plain := newTestPublisherSink(t, newMockPublisher(), transport.Capabilities{})
	assert.NoError(t, plain.Flush(context.Background()))
}

func TestNewPublisherSinkValidation(t *testing.T) {
	_, err := NewPublisherSink(nil, PublisherSinkConfig{Topics: DefaultTopics("X")}, logging.NopLogger())
	assert.ErrorIs(t, err, pferrors.ErrPublisherRequired)
	_, err = NewPublisherSink(newMockPublisher(), PublisherSinkConfig{Topics: DefaultTopics("X")}, nil)
	assert.ErrorIs(t, err, pferrors.ErrLoggerRequired)
	_, err = NewPublisherSink(newMockPublisher(), PublisherSinkConfig{}, logging.NopLogger())
	assert.ErrorIs(t, err, pferrors.ErrTopicRequired)
}

func TestRetryingOverPublisherSink(t *testing.T) {
	pub := newMockPublisher()
	pub.err = nats.ErrTimeout
	ps := newTestPublisherSink(t, pub, transport.Capabilities{})

	rs, err := NewRetryingSink(ps, RetryConfig{}, logging.NopLogger())
	require.NoError(t, err)
	rs.sleep = func(context.Context, time.Duration) error {
		pub.err = nil
		return nil
	}

	require.NoError(t, rs.Send(context.Background(), Events, []byte("p"), nil))
	assert.Equal(t, uint64(1), rs.Retries())
	require.Len(t, pub.published["MERLIN_events"], 1)
	assert.Len(t, pub.published["MERLIN_events"][0].UUID, 26)
}
