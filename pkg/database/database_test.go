package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_InMemory(t *testing.T) {
	db, err := New(WithDriver(DriverSQLite), WithDataSource(":memory:"), WithMaxOpenConns(4))
	require.NoError(t, err)
	defer db.Close()

	// the pool stays pinned to one connection so the schema is not lost
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	require.NoError(t, db.Ping())
}

func TestNewContext_SQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "grades.db")

	db, err := NewContext(context.Background(), WithDriver(DriverSQLite), WithDataSource(path))
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
	assert.FileExists(t, path)
}

func TestNewContext_Validation(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{"empty driver", []Option{WithDriver("")}, "driver cannot be empty"},
		{"unknown driver", []Option{WithDriver("mysql")}, `unsupported database driver "mysql"`},
		{"blank data source", []Option{WithDataSource("  ")}, "data source cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := NewContext(context.Background(), tt.opts...)
			require.Error(t, err)
			assert.Nil(t, db)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewContext_RetriesThenFails(t *testing.T) {
	// postgres is not registered in this test binary, so every attempt fails
	start := time.Now()
	db, err := NewContext(context.Background(),
		WithDriver(DriverPostgres),
		WithDataSource("postgres://localhost/none"),
		WithRetry(3, 5*time.Millisecond),
	)
	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "after 3 attempts")
	// 5ms + 10ms of backoff
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestNewContext_CanceledStopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewContext(ctx,
		WithDriver(DriverPostgres),
		WithDataSource("postgres://localhost/none"),
		WithRetry(5, time.Hour),
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProfile(t *testing.T) {
	tests := []struct {
		name     string
		opts     options
		wantOpen int
		wantIdle int
	}{
		{"memory ignores override", options{driver: DriverSQLite, dataSource: ":memory:", maxOpenConns: 8}, 1, 1},
		{"sqlite file", options{driver: DriverSQLite, dataSource: "data/grades.db"}, 1, 1},
		{"postgres default", options{driver: DriverPostgres, dataSource: "dsn"}, 25, 5},
		{"postgres override", options{driver: DriverPostgres, dataSource: "dsn", maxOpenConns: 3}, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.opts.profile()
			assert.Equal(t, tt.wantOpen, p.maxOpen)
			assert.Equal(t, tt.wantIdle, p.maxIdle)
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, ":memory:", sqliteDSN(":memory:"))
	assert.Equal(t, "file:x.db?mode=ro", sqliteDSN("file:x.db?mode=ro"))
	assert.Equal(t, "x.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", sqliteDSN("x.db"))
}
