package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// postgresClient implements the DB interface for PostgreSQL
type postgresClient struct {
	db     *sql.DB
	config ConnectionConfig
}

// NewPostgresClient opens a pool on dsn and pings it once.
func NewPostgresClient(dsn string, config ConnectionConfig) (DB, error) {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	client := NewFromSQL(sqlDB, config)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return client, nil
}

// NewFromSQL wraps an already opened pool and applies config to it.
func NewFromSQL(sqlDB *sql.DB, config ConnectionConfig) DB {
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
	return &postgresClient{db: sqlDB, config: config}
}

// withTimeout applies the configured query timeout unless ctx already carries
// a deadline.
func (c *postgresClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.QueryTimeout)
}

// ExecContext executes a query without returning any rows
func (c *postgresClient) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns multiple rows. The caller's
// context bounds the rows; no extra timeout is applied.
func (c *postgresClient) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns a single row
func (c *postgresClient) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Close closes the database connection
func (c *postgresClient) Close() error {
	return c.db.Close()
}

// Ping verifies the database connection
func (c *postgresClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// IsTimeoutError checks if an error is a database timeout error
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "57014", // query_canceled
			"55P03": // lock_not_available
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{"i/o timeout", "connection timed out"} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}
