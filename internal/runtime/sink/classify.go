package sink

import (
	"context"
	"errors"
	"net"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
)

// Classifier maps a publish error to an attempt status.
type Classifier func(err error) Status

var transientErrors = []error{
	pferrors.ErrBackpressure,
	context.DeadlineExceeded,

	sarama.ErrOutOfBrokers,
	sarama.ErrNotConnected,
	sarama.ErrRequestTimedOut,
	sarama.ErrNotEnoughReplicas,
	sarama.ErrNotEnoughReplicasAfterAppend,
	sarama.ErrLeaderNotAvailable,
	sarama.ErrNotLeaderForPartition,
	sarama.ErrBrokerNotAvailable,

	nats.ErrTimeout,
	nats.ErrSlowConsumer,
	nats.ErrNoResponders,
	nats.ErrNoStreamResponse,
}

// DefaultClassifier treats broker congestion and timeouts as transient and
// everything else as fatal.
func DefaultClassifier(err error) Status {
	if err == nil {
		return StatusAccepted
	}
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return StatusTransient
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return StatusTransient
	}
	return StatusFatal
}

// Classify turns err into a Result using c, or DefaultClassifier when c is nil.
func (c Classifier) Classify(err error) Result {
	classify := c
	if classify == nil {
		classify = DefaultClassifier
	}
	return Result{Status: classify(err), Err: err}
}
