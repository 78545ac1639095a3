// Package pulseflow replays recorded or synthetic detector frames onto a
// message broker as if they came from a live instrument. It reads the target
// transport (Kafka, RabbitMQ, AWS SNS, NATS, NATS JetStream, HTTP, I/O,
// SQLite, PostgreSQL, or Go Channels) from Config, splits every frame into a
// fixed number of event messages, and publishes each run framed by a run
// start and a run stop record.
//
// Streamer wires the pieces: a frame Source, a Codec for self-describing
// payloads, a PublisherSink over the transport wrapped in a RetryingSink that
// rides out broker backpressure, and the Driver that streams runs in order.
// A minimal setup fills Config, creates a Streamer and calls Start; Close
// flushes and releases the transport.
//
// # Transports
//
// Every bundled transport registers itself with DefaultTransportRegistry:
//   - channel: In-memory Go channels for testing
//   - kafka: Synchronous producer with broker acknowledgement
//   - rabbitmq: Durable exchanges with publisher confirms
//   - aws: SNS topics with LocalStack support
//   - nats: Core NATS subjects
//   - jetstream: NATS JetStream with deduplication and stream offsets
//   - http: POST per message, 429 and 503 count as backpressure
//   - io: JSON lines in a local file
//   - sqlite: Message log table in an embedded database
//   - postgres: Message log table in PostgreSQL
//
// # Delivery
//
// Messages are sent strictly one after another. Backpressure is retried
// forever with the same payload and uuid until accepted or the context ends;
// any other failure aborts the run with a PublishError naming the run, frame
// and message id. Message ids keep increasing across runs.
//
// # Observability
//
// Driver statistics, Prometheus metrics served on MetricsPort, an
// OpenTelemetry span per run, and RunHooks for custom callbacks around run
// boundaries.
package pulseflow
