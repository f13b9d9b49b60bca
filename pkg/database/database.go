// Package database opens the SQL pool backing the grading store.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Drivers understood by the builder. Each must be registered by a blank
// import in the binary that opens the pool.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	memoryDSN = ":memory:"
)

type options struct {
	driver        string
	dataSource    string
	maxOpenConns  int
	retryAttempts int
	retryDelay    time.Duration
	pingTimeout   time.Duration
}

type Option func(*options)

func WithDriver(driver string) Option {
	return func(o *options) { o.driver = driver }
}

func WithDataSource(dsn string) Option {
	return func(o *options) { o.dataSource = dsn }
}

// WithMaxOpenConns overrides the driver's default pool size.
func WithMaxOpenConns(count int) Option {
	return func(o *options) { o.maxOpenConns = count }
}

// WithRetry makes up to attempts connection tries, doubling delay after
// each failure.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryDelay = delay
	}
}

func WithPingTimeout(d time.Duration) Option {
	return func(o *options) { o.pingTimeout = d }
}

// pool is the connection profile applied after open.
type pool struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

func (o *options) validate() error {
	var errs []error
	switch o.driver {
	case DriverSQLite, DriverPostgres:
	case "":
		errs = append(errs, errors.New("database driver cannot be empty"))
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", o.driver))
	}
	if strings.TrimSpace(o.dataSource) == "" {
		errs = append(errs, errors.New("database data source cannot be empty"))
	}
	return errors.Join(errs...)
}

// profile picks pool limits per driver. SQLite allows one writer, so file
// databases get a single connection; an in-memory database lives and dies
// with its connection and must never be recycled.
func (o *options) profile() pool {
	var p pool
	switch {
	case o.driver == DriverSQLite && o.dataSource == memoryDSN:
		p = pool{maxOpen: 1, maxIdle: 1}
	case o.driver == DriverSQLite:
		p = pool{maxOpen: 1, maxIdle: 1, maxIdleTime: 10 * time.Minute}
	default:
		p = pool{maxOpen: 25, maxIdle: 5, maxLifetime: 5 * time.Minute, maxIdleTime: 2 * time.Minute}
	}
	if o.maxOpenConns > 0 && o.dataSource != memoryDSN {
		p.maxOpen = o.maxOpenConns
		p.maxIdle = min(p.maxIdle, o.maxOpenConns)
	}
	return p
}

// sqliteDSN adds a busy timeout and WAL journaling to a plain file path.
// DSNs that already carry parameters are used as given.
func sqliteDSN(dsn string) string {
	if dsn == memoryDSN || strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// ensureDir creates the parent directory of a SQLite file.
func ensureDir(dsn string) error {
	if dsn == memoryDSN {
		return nil
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create database directory: %w", err)
	}
	return nil
}

// New opens a pool with the given options and waits until it answers a ping.
func New(opts ...Option) (*sql.DB, error) {
	return NewContext(context.Background(), opts...)
}

// NewContext is New bounded by ctx; retries stop as soon as ctx is done.
func NewContext(ctx context.Context, opts ...Option) (*sql.DB, error) {
	o := &options{
		driver:        DriverSQLite,
		dataSource:    memoryDSN,
		retryAttempts: 3,
		retryDelay:    time.Second,
		pingTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	if o.retryAttempts < 1 {
		o.retryAttempts = 1
	}

	dsn := o.dataSource
	if o.driver == DriverSQLite {
		if err := ensureDir(dsn); err != nil {
			return nil, err
		}
		dsn = sqliteDSN(dsn)
	}
	p := o.profile()

	var err error
	delay := o.retryDelay
	for attempt := 1; ; attempt++ {
		var db *sql.DB
		db, err = open(ctx, o.driver, dsn, p, o.pingTimeout)
		if err == nil {
			return db, nil
		}
		if attempt == o.retryAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("database connect canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", o.retryAttempts, err)
}

func open(ctx context.Context, driver, dsn string, p pool, pingTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(p.maxOpen)
	db.SetMaxIdleConns(p.maxIdle)
	db.SetConnMaxLifetime(p.maxLifetime)
	db.SetConnMaxIdleTime(p.maxIdleTime)

	pingCtx := ctx
	if pingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, pingTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
