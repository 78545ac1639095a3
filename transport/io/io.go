// Package io appends every published message to a JSON-lines file. The file
// can be read back with ReadRecords, which is what `pulseflow decode` does.
package io

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is used when no file is configured.
const DefaultFilePath = "messages.jsonl"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("io: publisher is closed")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NewPublisher(filePath, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build opens the configured file for appending.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:    pub,
		Capabilities: Capabilities(),
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// Record is one line of the file.
type Record struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata"`
	Payload  []byte            `json:"payload"`
}

// Publisher writes records through a buffer; Flush makes them durable.
type Publisher struct {
	filePath string
	logger   watermill.LoggerAdapter

	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	lines  int64
	closed bool
}

// NewPublisher opens filePath for appending, creating it if needed.
func NewPublisher(filePath string, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("io: open %s: %w", filePath, err)
	}
	return &Publisher{filePath: filePath, logger: logger, file: f, w: bufio.NewWriter(f)}, nil
}

// Publish appends one line per message.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}

	for _, msg := range messages {
		b, err := jsoncodec.Marshal(Record{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return fmt.Errorf("io: encode %s: %w", msg.UUID, err)
		}
		b = append(b, '\n')
		if _, err := p.w.Write(b); err != nil {
			return fmt.Errorf("io: write %s: %w", p.filePath, err)
		}
		p.lines++
	}
	return nil
}

// CurrentOffset is the number of lines written by this publisher.
func (p *Publisher) CurrentOffset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

// Flush writes buffered lines and syncs the file.
func (p *Publisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return p.flushLocked()
}

func (p *Publisher) flushLocked() error {
	if err := p.w.Flush(); err != nil {
		return fmt.Errorf("io: flush %s: %w", p.filePath, err)
	}
	return p.file.Sync()
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	flushErr := p.flushLocked()
	closeErr := p.file.Close()
	p.logger.Debug("Closed message file", watermill.LogFields{"file": p.filePath, "lines": p.lines})
	return errors.Join(flushErr, closeErr)
}

// ReadRecords calls fn for every line of r, in order. Blank lines are skipped.
func ReadRecords(r io.Reader, fn func(Record) error) error {
	dec := jsoncodec.NewDecoder(r)
	for n := 1; dec.More(); n++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("io: record %d: %w", n, err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
