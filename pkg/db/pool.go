package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fluxorio/todo/pkg/core/failfast"
)

// PoolConfig configures the database connection pool
type PoolConfig struct {
	// DSN is the database connection string
	DSN string

	// DriverName is the database/sql driver ("sqlite3", "postgres", "pgx", "mysql")
	DriverName string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle
	ConnMaxIdleTime time.Duration

	// PingTimeout bounds the startup connectivity check (default 5s)
	PingTimeout time.Duration
}

// DefaultPoolConfig returns the default pool sizing for dsn
func DefaultPoolConfig(dsn string, driverName string) PoolConfig {
	return PoolConfig{
		DSN:             dsn,
		DriverName:      driverName,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

// Pool represents a database connection pool
type Pool struct {
	db      *sql.DB
	config  PoolConfig
	dialect Dialect
}

// NewPool creates a new database connection pool.
// Fail-fast: the configuration is validated and the database pinged before returning.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.DSN == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DSN cannot be empty"}
	}
	if config.DriverName == "" {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "DriverName cannot be empty"}
	}
	dialect, err := DialectFor(config.DriverName)
	if err != nil {
		return nil, err
	}
	if config.MaxOpenConns <= 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxOpenConns must be positive"}
	}
	if config.MaxIdleConns < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot be negative"}
	}
	if config.MaxIdleConns > config.MaxOpenConns {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "MaxIdleConns cannot exceed MaxOpenConns"}
	}
	if config.ConnMaxLifetime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxLifetime cannot be negative"}
	}
	if config.ConnMaxIdleTime < 0 {
		return nil, &Error{Code: "INVALID_CONFIG", Message: "ConnMaxIdleTime cannot be negative"}
	}
	if config.PingTimeout <= 0 {
		config.PingTimeout = 5 * time.Second
	}

	dsn, err := dialect.NormalizeDSN(config.DSN)
	if err != nil {
		return nil, err
	}

	// An in-memory SQLite database lives and dies with its connection, so the
	// pool is pinned to a single connection that is never recycled.
	if dialect == SQLite && IsMemoryDSN(config.DSN) {
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
		config.ConnMaxLifetime = 0
		config.ConnMaxIdleTime = 0
	}

	db, err := sql.Open(config.DriverName, dsn)
	if err != nil {
		return nil, &Error{Code: "INVALID_CONFIG", Message: fmt.Sprintf("open %s: %v", config.DriverName, err), Err: err}
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &Error{Code: "UNAVAILABLE", Message: fmt.Sprintf("ping %s: %v", config.DriverName, err), Err: err}
	}

	return &Pool{
		db:      db,
		config:  config,
		dialect: dialect,
	}, nil
}

// Error represents a database error (fail-fast)
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DB returns the underlying *sql.DB
// Fail-fast: Panics if pool is nil (invalid state)
func (p *Pool) DB() *sql.DB {
	failfast.NotNil(p, "pool")
	failfast.If(p.db != nil, "pool not initialized")
	return p.db
}

// Dialect returns the SQL dialect of the pool's driver
func (p *Pool) Dialect() Dialect {
	return p.dialect
}

// Config returns the effective pool configuration
func (p *Pool) Config() PoolConfig {
	return p.config
}

// Close closes the connection pool
func (p *Pool) Close() error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool already closed"}
	}
	return p.db.Close()
}

// Ping tests the connection
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.check(ctx); err != nil {
		return err
	}
	return p.db.PingContext(ctx)
}

// Stats returns pool statistics
func (p *Pool) Stats() sql.DBStats {
	if p == nil || p.db == nil {
		return sql.DBStats{}
	}
	return p.db.Stats()
}

// Conn reserves a single connection from the pool. The caller must Close it
// to hand the connection back.
func (p *Pool) Conn(ctx context.Context) (*sql.Conn, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	return p.db.Conn(ctx)
}

// Exec executes a command
func (p *Pool) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, &Error{Code: "INVALID_INPUT", Message: "query cannot be empty"}
	}
	return p.db.ExecContext(ctx, query, args...)
}

func (p *Pool) check(ctx context.Context) error {
	if p == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool cannot be nil"}
	}
	if p.db == nil {
		return &Error{Code: "INVALID_STATE", Message: "pool not initialized"}
	}
	if ctx == nil {
		return &Error{Code: "INVALID_INPUT", Message: "context cannot be nil"}
	}
	return nil
}
