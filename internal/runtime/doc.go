/*
Package runtime provides the streaming engine behind pulseflow.

# Architecture Overview

A Streamer replays the frames of a source onto a broker, one run at a time.
Every run is framed by a run start and a run stop record; in between, each
frame is split into a fixed number of event messages that are published in
order, each only after the previous one was accepted.

# Package Structure

## Streamer (service.go)

The Streamer wires together:
  - The broker transport, built from the config through the transport registry
  - The codec that turns records into self-describing payloads
  - The frame source (synthetic or file backed)
  - A PublisherSink wrapped in a RetryingSink
  - The Driver, and the Prometheus metrics it feeds
  - An HTTP server exposing /metrics

# Sub-packages

  - chunker/: splits a frame into event messages
  - codec/: binary and JSON payload encodings
  - config/: settings, YAML and environment loading, validation
  - driver/: the run loop, repeat mode, hooks, statistics and metrics
  - errors/: sentinel errors and error types
  - ids/: message id sequence and ULIDs
  - jsoncodec/: JSON marshaling utilities
  - lifecycle/: run start and run stop ordering
  - logging/: logger interface and adapters
  - metadata/: per-payload metadata
  - records/: the data model
  - sink/: destination sinks, classification and retry
  - source/: frame sources
  - timer/: the periodic session timer
  - transport/: the factory the Streamer obtains its transport from

# Usage Example

	cfg := config.Default()
	cfg.PubSubSystem = "kafka"
	cfg.KafkaBrokers = []string{"localhost:9092"}
	cfg.Instrument = "MERLIN"

	s := runtime.NewStreamer(&cfg, logger, ctx, runtime.StreamerDependencies{})
	defer s.Close(context.Background())

	stats, err := s.Start(ctx)
*/
package runtime
