package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/internal/runtime/config"
	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/transport"
)

func newMemory(t *testing.T) *Publisher {
	t.Helper()
	p, err := New(context.Background(), Config{FilePath: ":memory:"}, watermill.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, Capabilities().SupportsOffsets)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultFilePath, cfg.FilePath)
	assert.Equal(t, 5000, cfg.BusyTimeoutMs)
	assert.Equal(t, "x.db?_journal_mode=WAL&_busy_timeout=10", Config{FilePath: "x.db", BusyTimeoutMs: 10}.dsn())
}

func TestPublishStoresRowsInOrder(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t)

	first := message.NewMessage("uuid-1", []byte("a"))
	first.Metadata.Set("event_message_schema", "ev42")
	require.NoError(t, p.Publish("LET_events", first, message.NewMessage("uuid-2", []byte("b"))))
	require.NoError(t, p.Publish("LET_runInfo", message.NewMessage("uuid-3", []byte("start"))))

	assert.Equal(t, int64(3), p.CurrentOffset())

	n, err := p.Count(ctx, "LET_events")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	payloads, err := p.Payloads(ctx, "LET_events")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, payloads)
}

func TestPublishSkipsDuplicateUUID(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t)

	msg := message.NewMessage("uuid-1", []byte("a"))
	require.NoError(t, p.Publish("t", msg))
	require.NoError(t, p.Publish("t", msg))

	n, err := p.Count(ctx, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), p.CurrentOffset())
}

func TestOffsetSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")
	ctx := context.Background()

	tr, err := Build(ctx, &config.Config{SQLiteFile: path}, watermill.NopLogger{})
	require.NoError(t, err)
	require.NoError(t, tr.Publisher.Publish("t", message.NewMessage("a", []byte("1")), message.NewMessage("b", []byte("2"))))
	require.NoError(t, tr.Publisher.Close())

	p, err := New(ctx, Config{FilePath: path}, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, int64(2), p.CurrentOffset())
}

func TestClosed(t *testing.T) {
	p := newMemory(t)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish("t", message.NewMessage("u", nil)), ErrClosed)
}

func TestClassify(t *testing.T) {
	busy := classify(sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.True(t, errors.Is(busy, pferrors.ErrBackpressure))

	locked := classify(sqlite3.Error{Code: sqlite3.ErrLocked})
	assert.True(t, errors.Is(locked, pferrors.ErrBackpressure))

	other := classify(sqlite3.Error{Code: sqlite3.ErrConstraint})
	assert.False(t, errors.Is(other, pferrors.ErrBackpressure))
}
