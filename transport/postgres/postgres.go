// Package postgres appends published messages to a table in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lib/pq"

	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
	"github.com/drblury/pulseflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "postgres"

// DefaultSchema holds the message table when none is configured.
const DefaultSchema = "pulseflow"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("postgres: publisher is closed")

// SQL states that mean the server is temporarily refusing work.
var transientStates = map[pq.ErrorCode]struct{}{
	"53300": {}, // too_many_connections
	"40001": {}, // serialization_failure
	"57P03": {}, // cannot_connect_now
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.PostgresCapabilities)
	transport.RegisterWithCapabilities("postgresql", Build, transport.PostgresCapabilities)
}

// Build connects to the configured database and creates the message table.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	p, err := New(ctx, Config{ConnectionString: cfg.GetPostgresURL()}, logger)
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
	return transport.PostgresCapabilities
}

// Config holds PostgreSQL specific settings.
type Config struct {
	ConnectionString string
	SchemaName       string
	MaxOpenConns     int
	MaxIdleConns     int
}

func (c Config) withDefaults() Config {
	if c.SchemaName == "" {
		c.SchemaName = DefaultSchema
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 4
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	return c
}

// Publisher inserts one row per message. Rows are keyed by message uuid so
// a resend after an ambiguous failure is a no-op.
type Publisher struct {
	db     *sql.DB
	config Config
	table  string
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	offset atomic.Int64
	closed atomic.Bool
}

// New opens a connection pool and ensures the schema.
func New(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Publisher, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("postgres: connection string is required")
	}
	cfg = cfg.withDefaults()

	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	p, err := NewWithDB(ctx, db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// NewWithDB uses an already opened pool. The publisher owns db afterwards.
func NewWithDB(ctx context.Context, db *sql.DB, cfg Config, logger watermill.LoggerAdapter) (*Publisher, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	schema := pq.QuoteIdentifier(cfg.SchemaName)
	p := &Publisher{
		db:     db,
		config: cfg,
		table:  schema + ".pulseflow_messages",
		logger: logger,
	}

	if err := p.initSchema(ctx, schema); err != nil {
		return nil, err
	}

	var last int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM "+p.table).Scan(&last); err != nil {
		return nil, fmt.Errorf("postgres: read offset: %w", err)
	}
	p.offset.Store(last)
	return p, nil
}

func (p *Publisher) initSchema(ctx context.Context, schema string) error {
	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + schema,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			uuid TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			payload BYTEA NOT NULL,
			metadata JSONB,
			published_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_pulseflow_messages_topic ON %s (topic, id)", p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: initialize schema: %w", err)
		}
	}
	return nil
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
		return classify(fmt.Errorf("postgres: begin: %w", err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			p.logger.Error("Failed to roll back publish", err, nil)
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s (uuid, topic, payload, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uuid) DO NOTHING
		RETURNING id`, p.table)

	last := p.offset.Load()
	for _, msg := range messages {
		md, err := jsoncodec.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: encode metadata of %s: %w", msg.UUID, err)
		}
		var id int64
		err = tx.QueryRowContext(ctx, query, msg.UUID, topic, msg.Payload, string(md)).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			p.logger.Debug("Skipped duplicate message", watermill.LogFields{"uuid": msg.UUID, "topic": topic})
		case err != nil:
			return classify(fmt.Errorf("postgres: insert %s: %w", msg.UUID, err))
		default:
			last = id
		}
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("postgres: commit: %w", err))
	}
	p.offset.Store(last)
	return nil
}

// classify marks server side throttling as backpressure.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if _, ok := transientStates[pqErr.Code]; ok {
			return fmt.Errorf("%w: %w", pferrors.ErrBackpressure, err)
		}
	}
	return err
}

// CurrentOffset is the id of the last stored message.
func (p *Publisher) CurrentOffset() int64 {
	return p.offset.Load()
}

func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.db.Close()
}
