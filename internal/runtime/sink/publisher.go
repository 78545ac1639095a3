package sink

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/ids"
	"github.com/drblury/pulseflow/internal/runtime/logging"
	"github.com/drblury/pulseflow/internal/runtime/metadata"
	"github.com/drblury/pulseflow/transport"
)

// Topics routes destination classes to broker topics.
type Topics map[DestinationClass]string

// DefaultTopics derives the conventional topic names from an instrument name.
func DefaultTopics(prefix string) Topics {
	return Topics{
		Events:     prefix + "_events",
		RunInfo:    prefix + "_runInfo",
		SampleEnv:  prefix + "_sampleEnv",
		DetSpecMap: prefix + "_detSpecMap",
		Histograms: prefix + "_histograms",
	}
}

// With returns a copy of t with the given overrides applied. Empty override
// values are ignored.
func (t Topics) With(overrides Topics) Topics {
	out := make(Topics, len(t)+len(overrides))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

type offsetReporter interface {
	CurrentOffset() int64
}

type flusher interface {
	Flush(ctx context.Context) error
}

// PublisherSink is a Sink over a watermill publisher.
type PublisherSink struct {
	publisher message.Publisher
	topics    Topics
	caps      transport.Capabilities
	classify  Classifier
	logger    logging.ServiceLogger
	accepted  atomic.Int64
}

// PublisherSinkConfig configures NewPublisherSink.
type PublisherSinkConfig struct {
	Topics       Topics
	Capabilities transport.Capabilities
	// Classifier defaults to DefaultClassifier.
	Classifier Classifier
}

func NewPublisherSink(publisher message.Publisher, cfg PublisherSinkConfig, logger logging.ServiceLogger) (*PublisherSink, error) {
	if publisher == nil {
		return nil, pferrors.ErrPublisherRequired
	}
	if logger == nil {
		return nil, pferrors.ErrLoggerRequired
	}
	if len(cfg.Topics) == 0 {
		return nil, pferrors.ErrTopicRequired
	}
	return &PublisherSink{
		publisher: publisher,
		topics:    cfg.Topics,
		caps:      cfg.Capabilities,
		classify:  cfg.Classifier,
		logger:    logger.With(logging.LogFields{"component": "publisher_sink", "transport": cfg.Capabilities.Name}),
	}, nil
}

// Topic returns the topic for class.
func (s *PublisherSink) Topic(class DestinationClass) (string, error) {
	topic := s.topics[class]
	if topic == "" {
		return "", fmt.Errorf("%w for destination %q", pferrors.ErrTopicRequired, class)
	}
	return topic, nil
}

func (s *PublisherSink) Send(ctx context.Context, class DestinationClass, payload []byte, md metadata.Metadata) Result {
	topic, err := s.Topic(class)
	if err != nil {
		return FatalResult(err)
	}
	if !s.caps.Fits(len(payload)) {
		return FatalResult(fmt.Errorf("%w: %d bytes on %s, limit %d", pferrors.ErrMessageTooLarge, len(payload), topic, s.caps.MaxMessageSize))
	}

	uuid := md[metadata.KeyUUID]
	if uuid == "" {
		uuid = ids.CreateULID()
	}
	msg := message.NewMessage(uuid, payload)
	msg.Metadata = metadata.ToWatermill(md.With(metadata.KeyDestination, string(class)))
	msg.SetContext(ctx)

	if err := s.publisher.Publish(topic, msg); err != nil {
		res := s.classify.Classify(err)
		s.logger.Trace("Publish attempt failed", logging.LogFields{
			"topic":  topic,
			"uuid":   uuid,
			"status": res.Status.String(),
			"error":  err.Error(),
		})
		return res
	}

	s.accepted.Add(1)
	s.logger.Trace("Published", logging.LogFields{"topic": topic, "uuid": uuid, "bytes": len(payload)})
	return Accepted()
}

// Flush delegates to the publisher when it buffers; otherwise every accepted
// publish is already handed off and Flush is a no-op.
func (s *PublisherSink) Flush(ctx context.Context) error {
	if f, ok := s.publisher.(flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// CurrentOffset reports the publisher's own offset when it tracks one, and
// the number of accepted messages otherwise.
func (s *PublisherSink) CurrentOffset() int64 {
	if o, ok := s.publisher.(offsetReporter); ok {
		return o.CurrentOffset()
	}
	return s.accepted.Load()
}

func (s *PublisherSink) Close() error {
	return s.publisher.Close()
}
