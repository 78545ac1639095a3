// Package transports registers every bundled broker transport. Import it for
// its side effects.
package transports

import (
	// Registered with transport.DefaultRegistry from their init functions.
	_ "github.com/drblury/pulseflow/transport/aws"
	_ "github.com/drblury/pulseflow/transport/channel"
	_ "github.com/drblury/pulseflow/transport/http"
	_ "github.com/drblury/pulseflow/transport/io"
	_ "github.com/drblury/pulseflow/transport/jetstream"
	_ "github.com/drblury/pulseflow/transport/kafka"
	_ "github.com/drblury/pulseflow/transport/nats"
	_ "github.com/drblury/pulseflow/transport/postgres"
	_ "github.com/drblury/pulseflow/transport/rabbitmq"
	_ "github.com/drblury/pulseflow/transport/sqlite"
)
