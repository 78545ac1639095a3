// Package transport defines how pulseflow reaches a message broker. Each
// broker lives in its own sub-package and registers a Builder with the
// registry from an init function; import transport/transports to get all of
// them.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport is what a Builder produces.
type Transport struct {
	Publisher message.Publisher
	// Subscriber is only set by transports that can read back what was
	// published in-process, such as channel.
	Subscriber message.Subscriber
	// Capabilities are the limits of this particular instance. Builders fill
	// them in from the registered defaults and the config, for example a
	// raised Kafka request size.
	Capabilities Capabilities
}

// Builder creates a transport from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config exposes only the keys transports need, so they do not depend on the
// full config package.
type Config interface {
	GetPubSubSystem() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaMaxMessageBytes() int
	GetKafkaCompression() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS and JetStream
	GetNATSURL() string

	// HTTP
	GetHTTPPublisherURL() string

	// IO
	GetIOFile() string

	// SQLite
	GetSQLiteFile() string

	// PostgreSQL
	GetPostgresURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// Flusher is implemented by publishers that buffer accepted messages.
type Flusher interface {
	Flush(ctx context.Context) error
}

// OffsetReporter is implemented by publishers that know the broker position of
// the last accepted message, such as a log table row id or a stream sequence.
type OffsetReporter interface {
	CurrentOffset() int64
}
