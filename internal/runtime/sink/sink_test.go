package sink

import (
	"context"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pulseflow/internal/runtime/metadata"
)

type attempt struct {
	class   DestinationClass
	payload []byte
	md      metadata.Metadata
}

// scriptedSink replays results in order, then accepts everything.
type scriptedSink struct {
	mu       sync.Mutex
	script   []Result
	attempts []attempt
	flushed  int
	closed   bool
}

func (s *scriptedSink) Send(_ context.Context, class DestinationClass, payload []byte, md metadata.Metadata) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt{class: class, payload: append([]byte(nil), payload...), md: md.Clone()})
	if len(s.script) == 0 {
		return Accepted()
	}
	res := s.script[0]
	s.script = s.script[1:]
	return res
}

func (s *scriptedSink) Flush(context.Context) error {
	s.flushed++
	return nil
}

func (s *scriptedSink) CurrentOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.attempts))
}

func (s *scriptedSink) Close() error {
	s.closed = true
	return nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published map[string][]*message.Message
	err       error
	closed    bool
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{published: make(map[string][]*message.Message)}
}

func (m *mockPublisher) Publish(topic string, msgs ...*message.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published[topic] = append(m.published[topic], msgs...)
	return nil
}

func (m *mockPublisher) Close() error {
	m.closed = true
	return nil
}

type offsetPublisher struct {
	*mockPublisher
	offset  int64
	flushes int
}

func (o *offsetPublisher) CurrentOffset() int64 { return o.offset }

func (o *offsetPublisher) Flush(context.Context) error {
	o.flushes++
	return nil
}

func noSleep(calls *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*calls = append(*calls, d)
		return ctx.Err()
	}
}
