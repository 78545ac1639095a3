package transport

// Capabilities describes what a broker backend offers a publisher.
type Capabilities struct {
	Name string

	// SupportsOrdering: messages on one topic arrive in publish order.
	SupportsOrdering bool

	// SupportsTracing: the transport propagates tracing headers natively.
	SupportsTracing bool

	// SupportsAck: Publish returns only after the broker acknowledged the
	// message, so an accepted send is durable on the broker side.
	SupportsAck bool

	// SupportsOffsets: the publisher implements OffsetReporter.
	SupportsOffsets bool

	// SupportsBatching: the publisher may buffer and needs Flush.
	SupportsBatching bool

	// MaxMessageSize is the largest payload in bytes, 0 when unlimited or
	// unknown. Larger payloads are rejected before they reach the broker.
	MaxMessageSize int64
}

// Fits reports whether a payload of n bytes is within MaxMessageSize.
func (c Capabilities) Fits(n int) bool {
	return c.MaxMessageSize <= 0 || int64(n) <= c.MaxMessageSize
}

// WithMaxMessageSize returns a copy with the size limit replaced when n > 0.
func (c Capabilities) WithMaxMessageSize(n int64) Capabilities {
	if n > 0 {
		c.MaxMessageSize = n
	}
	return c
}

// Defaults for the bundled transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsBatching: true,
		MaxMessageSize:   1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		MaxMessageSize:   134217728,
	}

	NATSCapabilities = Capabilities{
		Name:            "nats",
		SupportsTracing: true,
		MaxMessageSize:  1048576,
	}

	JetStreamCapabilities = Capabilities{
		Name:             "jetstream",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsOffsets:  true,
		MaxMessageSize:   1048576,
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsBatching: true,
		MaxMessageSize:   262144,
	}

	SQLiteCapabilities = Capabilities{
		Name:             "sqlite",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsOffsets:  true,
	}

	PostgresCapabilities = Capabilities{
		Name:             "postgres",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsOffsets:  true,
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
		SupportsAck:     true,
	}

	IOCapabilities = Capabilities{
		Name:             "io",
		SupportsOrdering: true,
		SupportsOffsets:  true,
		SupportsBatching: true,
	}
)

// GetCapabilities returns the registered capabilities of a transport, or a
// zero value carrying only the name.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
