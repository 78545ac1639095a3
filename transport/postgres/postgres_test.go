package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/pulseflow/internal/runtime/config"
	pferrors "github.com/drblury/pulseflow/internal/runtime/errors"
	"github.com/drblury/pulseflow/transport"
)

const table = `"pulseflow".pulseflow_messages`

func newMocked(t *testing.T, lastID int64) (*Publisher, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE SCHEMA IF NOT EXISTS "pulseflow"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + table)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(id), 0) FROM " + table)).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(lastID))

	p, err := NewWithDB(context.Background(), db, Config{}, watermill.NopLogger{})
	require.NoError(t, err)
	return p, mock
}

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.True(t, transport.DefaultRegistry.Has("postgresql"))
	assert.Equal(t, transport.PostgresCapabilities, Capabilities())
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, DefaultSchema, cfg.SchemaName)
	assert.Equal(t, 4, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)

	custom := Config{SchemaName: "beam", MaxOpenConns: 9, MaxIdleConns: 1}.withDefaults()
	assert.Equal(t, "beam", custom.SchemaName)
	assert.Equal(t, 9, custom.MaxOpenConns)
}

func TestBuildRequiresConnectionString(t *testing.T) {
	_, err := Build(context.Background(), &config.Config{}, watermill.NopLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection string is required")
}

func TestNewWithDBReadsOffset(t *testing.T) {
	p, mock := newMocked(t, 41)
	assert.Equal(t, int64(41), p.CurrentOffset())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishInsertsRows(t *testing.T) {
	p, mock := newMocked(t, 0)

	first := message.NewMessage("uuid-1", []byte("a"))
	second := message.NewMessage("uuid-2", []byte("b"))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO").
		WithArgs("uuid-1", "LET_events", []byte("a"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery("INSERT INTO").
		WithArgs("uuid-2", "LET_events", []byte("b"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(8))
	mock.ExpectCommit()

	require.NoError(t, p.Publish("LET_events", first, second))
	assert.Equal(t, int64(8), p.CurrentOffset())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishSkipsDuplicates(t *testing.T) {
	p, mock := newMocked(t, 3)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO").WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	require.NoError(t, p.Publish("t", message.NewMessage("uuid-1", []byte("a"))))
	assert.Equal(t, int64(3), p.CurrentOffset())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishMapsThrottlingToBackpressure(t *testing.T) {
	p, mock := newMocked(t, 0)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO").WillReturnError(&pq.Error{Code: "53300"})
	mock.ExpectRollback()

	err := p.Publish("t", message.NewMessage("uuid-1", []byte("a")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pferrors.ErrBackpressure))
	assert.Equal(t, int64(0), p.CurrentOffset())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"too many connections", &pq.Error{Code: "53300"}, true},
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"starting up", &pq.Error{Code: "57P03"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(classify(tt.err), pferrors.ErrBackpressure))
		})
	}
}

func TestClose(t *testing.T) {
	p, mock := newMocked(t, 0)
	mock.ExpectClose()

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.Publish("t", message.NewMessage("u", nil)), ErrClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
