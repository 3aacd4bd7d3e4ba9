package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 1 * time.Minute
	maxRetries      = 3
	retryDelay      = 100 * time.Millisecond
)

// Database wraps *sql.DB with retrying Exec/Query helpers for transient
// failures (sqlite busy, postgres serialization conflicts).
type Database struct {
	*sql.DB
	driver string
}

func NewDatabase(databaseURL string) (*Database, error) {
	driver, dsn := resolveDriver(databaseURL)

	db, err := openWithRetry(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	return &Database{DB: db, driver: driver}, nil
}

func resolveDriver(databaseURL string) (driver, dsn string) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return "postgres", databaseURL
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return "sqlite3", sqliteDSN(strings.TrimPrefix(databaseURL, "sqlite://"))
	default:
		return "sqlite3", sqliteDSN(databaseURL)
	}
}

// sqliteDSN appends connection options every pooled connection needs.
// foreign_keys and busy_timeout are per-connection settings, so they have to
// ride in the DSN rather than a one-off PRAGMA. WAL lets the enforcement
// pollers read while sales commit.
func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL"
}

func openWithRetry(driver, dsn string) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = sql.Open(driver, dsn)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err = db.PingContext(ctx)
			cancel()
			if err == nil {
				return db, nil
			}
			db.Close()
		}
		if attempt < maxRetries {
			time.Sleep(retryDelay * time.Duration(attempt))
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", maxRetries, err)
}

func (d *Database) ExecWithRetry(query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		result, err = d.Exec(query, args...)
		if err == nil {
			return result, nil
		}
		if !isRetryableError(err) {
			return nil, err
		}
		if attempt < maxRetries {
			time.Sleep(retryDelay * time.Duration(attempt))
		}
	}

	return nil, fmt.Errorf("exec failed after %d attempts: %w", maxRetries, err)
}

func (d *Database) QueryWithRetry(query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		rows, err = d.Query(query, args...)
		if err == nil {
			return rows, nil
		}
		if !isRetryableError(err) {
			return nil, err
		}
		if attempt < maxRetries {
			time.Sleep(retryDelay * time.Duration(attempt))
		}
	}

	return nil, fmt.Errorf("query failed after %d attempts: %w", maxRetries, err)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	retryable := []string{
		"database is locked",
		"database table is locked",
		"busy",
		"serialization failure",
		"deadlock detected",
		"connection refused",
		"connection reset",
	}
	for _, pattern := range retryable {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// BeginSerializableTx starts a serializable transaction for operations that
// must observe a consistent snapshot, like sale creation and device eviction.
func (d *Database) BeginSerializableTx(ctx context.Context) (*sql.Tx, error) {
	return d.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}
