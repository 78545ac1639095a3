// Package sqlite appends published messages to a table in a SQLite file. It
// suits single-host setups and tests that want to inspect what was sent.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/mattn/go-sqlite3"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "sqlite"

// DefaultFilePath is used when no file is configured.
const DefaultFilePath = "pulseflow_messages.db"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("sqlite: publisher is closed")

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.SQLiteCapabilities)
}

// Build opens the configured database and creates the message table.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	p, err := New(ctx, Config{FilePath: cfg.GetSQLiteFile()}, logger)
	if err != nil {
		return transport.Transport{}, err
	}
	return transport.Transport{
		Publisher:    p,
		Capabilities: Capabilities(),
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.SQLiteCapabilities
}

// Config holds SQLite specific settings.
type Config struct {
	// FilePath may be ":memory:".
	FilePath string
	// BusyTimeoutMs is how long a write waits for a lock before SQLITE_BUSY.
	BusyTimeoutMs int
}

func (c Config) withDefaults() Config {
	if c.FilePath == "" {
		c.FilePath = DefaultFilePath
	}
	if c.BusyTimeoutMs <= 0 {
		c.BusyTimeoutMs = 5000
	}
	return c
}

func (c Config) dsn() string {
	return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d", c.FilePath, c.BusyTimeoutMs)
}

const schema = `
CREATE TABLE IF NOT EXISTS pulseflow_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	topic TEXT NOT NULL,
	payload BLOB NOT NULL,
	metadata TEXT,
	published_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_pulseflow_messages_topic ON pulseflow_messages(topic, id);
`

// Publisher inserts one row per message. A uuid that is already stored is
// skipped, so a resend after an ambiguous failure does not duplicate rows.
type Publisher struct {
	db     *sql.DB
	config Config
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	offset atomic.Int64
	closed atomic.Bool
}

// New opens the database and ensures the schema.
func New(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	db, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.FilePath, err)
	}
	// a single connection keeps ":memory:" databases alive and serialises writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: initialize schema: %w", err)
	}

	p := &Publisher{db: db, config: cfg, logger: logger}
	var last sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(id) FROM pulseflow_messages`).Scan(&last); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: read offset: %w", err)
	}
	p.offset.Store(last.Int64)
	return p, nil
}

// Publish inserts messages in one transaction.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	if p.closed.Load() {
		return ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := context.Background()
	if len(messages) > 0 {
		ctx = messages[0].Context()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("sqlite: begin: %w", err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			p.logger.Error("Failed to roll back publish", err, nil)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pulseflow_messages (uuid, topic, payload, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(uuid) DO NOTHING`)
	if err != nil {
		return classify(fmt.Errorf("sqlite: prepare: %w", err))
	}
	defer stmt.Close()

	last := p.offset.Load()
	for _, msg := range messages {
		md, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: encode metadata of %s: %w", msg.UUID, err)
		}
		res, err := stmt.ExecContext(ctx, msg.UUID, topic, msg.Payload, string(md))
		if err != nil {
			return classify(fmt.Errorf("sqlite: insert %s: %w", msg.UUID, err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			p.logger.Debug("Skipped duplicate message", watermill.LogFields{"uuid": msg.UUID, "topic": topic})
			continue
		}
		if id, err := res.LastInsertId(); err == nil {
			last = id
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("sqlite: commit: %w", err))
	}
	p.offset.Store(last)
	return nil
}

// classify marks lock contention as backpressure.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %w", pferrors.ErrBackpressure, err)
	}
	return err
}

// CurrentOffset is the row id of the last stored message.
func (p *Publisher) CurrentOffset() int64 {
	return p.offset.Load()
}

// Count returns the number of stored messages on topic.
func (p *Publisher) Count(ctx context.Context, topic string) (int64, error) {
	var n int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pulseflow_messages WHERE topic = ?`, topic).Scan(&n)
	return n, err
}

// Payloads returns the stored payloads of topic in insertion order.
func (p *Publisher) Payloads(ctx context.Context, topic string) ([][]byte, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT payload FROM pulseflow_messages WHERE topic = ? ORDER BY id`, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var b []byte
		if err := rows.Scan(&b); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.db.Close()
}
