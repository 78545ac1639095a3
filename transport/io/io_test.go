package io

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/internal/runtime/config"
	"github.com/drblury/pulseflow/transport"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, Capabilities().SupportsOffsets)
}

func TestPublishFlushAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	tr, err := Build(context.Background(), &config.Config{IOFile: path}, watermill.NopLogger{})
	require.NoError(t, err)
	pub := tr.Publisher.(*Publisher)

	first := message.NewMessage("uuid-1", []byte{0x65, 0x76, 0x34, 0x32, 0x00})
	first.Metadata.Set("event_message_schema", "ev42")
	require.NoError(t, pub.Publish("LET_events", first))
	require.NoError(t, pub.Publish("LET_runInfo", message.NewMessage("uuid-2", []byte("pl72"))))
	assert.Equal(t, int64(2), pub.CurrentOffset())

	require.NoError(t, pub.Flush(context.Background()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	var got []Record
	require.NoError(t, ReadRecords(bytes.NewReader(data), func(r Record) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "uuid-1", got[0].UUID)
	assert.Equal(t, "LET_events", got[0].Topic)
	assert.Equal(t, "ev42", got[0].Metadata["event_message_schema"])
	assert.Equal(t, []byte{0x65, 0x76, 0x34, 0x32, 0x00}, got[0].Payload)
	assert.Equal(t, "LET_runInfo", got[1].Topic)

	require.NoError(t, pub.Close())
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish("t", message.NewMessage("u", nil)), ErrClosed)
}

func TestCloseFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	pub, err := NewPublisher(path, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish("t", message.NewMessage("u", []byte("x"))))
	require.NoError(t, pub.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	require.NoError(t, ReadRecords(f, func(Record) error { n++; return nil }))
	assert.Equal(t, 1, n)
}

func TestAppendsToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for i := 0; i < 2; i++ {
		pub, err := NewPublisher(path, watermill.NopLogger{})
		require.NoError(t, err)
		require.NoError(t, pub.Publish("t", message.NewMessage("u", nil)))
		require.NoError(t, pub.Close())
	}
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))
}

func TestReadRecordsErrors(t *testing.T) {
	t.Run("malformed line", func(t *testing.T) {
		err := ReadRecords(strings.NewReader(`{"uuid":"a"}`+"\n"+`{"uuid":`), func(Record) error { return nil })
		assert.ErrorContains(t, err, "record 2")
	})

	t.Run("callback error stops reading", func(t *testing.T) {
		stop := errors.New("stop")
		calls := 0
		err := ReadRecords(strings.NewReader(`{"uuid":"a"}`+"\n"+`{"uuid":"b"}`), func(Record) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})
}

func TestBuildErrors(t *testing.T) {
	_, err := Build(context.Background(), &config.Config{IOFile: filepath.Join(t.TempDir(), "missing", "out.jsonl")}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "io: open")

	original := PublisherFactory
	defer func() { PublisherFactory = original }()
	PublisherFactory = func(path string, _ watermill.LoggerAdapter) (message.Publisher, error) {
		assert.Equal(t, DefaultFilePath, path)
		return nil, errors.New("factory error")
	}
	_, err = Build(context.Background(), &config.Config{}, watermill.NopLogger{})
	assert.ErrorContains(t, err, "factory error")
}
