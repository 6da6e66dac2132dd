// Package db provides the detection store for newhosts.
// It persists one detection row per address and scan cycle, keeps the
// saved network configurations and answers the historical lookups used by
// compare mode. SQLite is the default backend; PostgreSQL is supported
// through the same queries.
package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/anstrom/newhosts/internal/errors"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	// Default database configuration values.
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5
	defaultConnMaxIdleTime = 5
	defaultStoreFile       = "hosts.db"
)

// sanitizeDBError converts raw driver errors into DatabaseError values with
// a stable code. The original error is preserved in the Cause field.
func sanitizeDBError(operation string, err error) error {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewDatabaseError(errors.CodeNotFound, "Resource not found")
	}

	var dbErr *errors.DatabaseError
	if stderrors.As(err, &dbErr) {
		return err
	}

	var pqErr *pq.Error
	var liteErr sqlite3.Error
	switch {
	case stderrors.As(err, &pqErr):
		dbErr = sanitizePostgresError(pqErr)
	case stderrors.As(err, &liteErr):
		dbErr = sanitizeSQLiteError(liteErr)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		dbErr = errors.NewDatabaseError(errors.CodeCanceled, "Database operation was canceled")
	default:
		dbErr = errors.NewDatabaseError(errors.CodeDatabaseQuery, fmt.Sprintf("Database operation failed: %s", operation))
	}
	dbErr.Operation = operation
	dbErr.Cause = err
	return dbErr
}

func sanitizePostgresError(pqErr *pq.Error) *errors.DatabaseError {
	switch pqErr.Code {
	case "23505": // unique_violation
		return errors.NewDatabaseError(errors.CodeConflict, "Resource already exists")
	case "23502": // not_null_violation
		return errors.NewDatabaseError(errors.CodeValidation, "Required field is missing")
	case "42P01", "42703": // undefined_table, undefined_column
		return errors.NewDatabaseError(errors.CodeDatabaseSchema, "Database schema is missing or incompatible")
	case "57014": // query_canceled
		return errors.NewDatabaseError(errors.CodeCanceled, "Database operation was canceled")
	case "57P01", "08000", "08003", "08006":
		return errors.NewDatabaseError(errors.CodeDatabaseConnection, "Database connection error")
	default:
		return errors.NewDatabaseError(errors.CodeDatabaseQuery, "Database operation failed")
	}
}

func sanitizeSQLiteError(liteErr sqlite3.Error) *errors.DatabaseError {
	switch liteErr.Code {
	case sqlite3.ErrConstraint:
		if liteErr.ExtendedCode == sqlite3.ErrConstraintNotNull {
			return errors.NewDatabaseError(errors.CodeValidation, "Required field is missing")
		}
		return errors.NewDatabaseError(errors.CodeConflict, "Resource already exists")
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return errors.NewDatabaseError(errors.CodeDatabaseConnection, "Database is locked")
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrCorrupt:
		return errors.NewDatabaseError(errors.CodeDatabaseConnection, "Database file cannot be used")
	case sqlite3.ErrError:
		// "no such table" and "no such column" surface as generic errors.
		return errors.NewDatabaseError(errors.CodeDatabaseSchema, "Database schema is missing or incompatible")
	default:
		return errors.NewDatabaseError(errors.CodeDatabaseQuery, "Database operation failed")
	}
}

// DB wraps sqlx.DB with the detection store operations.
type DB struct {
	*sqlx.DB
	now func() time.Time
}

// New wraps an existing connection. The driver name registered on conn
// decides the placeholder style of every query.
func New(conn *sqlx.DB) *DB {
	return &DB{DB: conn, now: time.Now}
}

// Config holds database configuration.
type Config struct {
	Driver          string        `yaml:"driver" json:"driver" validate:"oneof=sqlite3 postgres"`
	Path            string        `yaml:"path" json:"path" validate:"required_if=Driver sqlite3"`
	Host            string        `yaml:"host" json:"host" validate:"required_if=Driver postgres"`
	Port            int           `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Database        string        `yaml:"database" json:"database" validate:"required_if=Driver postgres"`
	Username        string        `yaml:"username" json:"username" validate:"required_if=Driver postgres"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

// DefaultConfig returns the default database configuration: a SQLite file
// in the user configuration directory.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		Path:            DefaultStorePath(),
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime * time.Minute,
		ConnMaxIdleTime: defaultConnMaxIdleTime * time.Minute,
	}
}

// DefaultStorePath returns $XDG_CONFIG_HOME/newhosts/hosts.db, or a file in
// the working directory when no configuration directory is known.
func DefaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return defaultStoreFile
	}
	return filepath.Join(dir, "newhosts", defaultStoreFile)
}

// Connect opens the configured store and verifies the connection.
// Returned errors never contain the DSN.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	var (
		conn *sqlx.DB
		err  error
	)

	switch config.Driver {
	case DriverSQLite, "":
		conn, err = connectSQLite(ctx, config.Path)
	case DriverPostgres:
		conn, err = connectPostgres(ctx, config)
	default:
		return nil, errors.ErrConfigInvalid("database.driver", config.Driver)
	}
	if err != nil {
		return nil, errors.ErrDatabaseConnection(err)
	}
	return New(conn), nil
}

func connectSQLite(ctx context.Context, path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	conn, err := sqlx.ConnectContext(ctx, DriverSQLite, path)
	if err != nil {
		return nil, err
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	conn.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func connectPostgres(ctx context.Context, config *Config) (*sqlx.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database,
		config.Username, config.Password, config.SSLMode,
	)

	conn, err := sqlx.ConnectContext(ctx, DriverPostgres, dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(config.MaxOpenConns)
	conn.SetMaxIdleConns(config.MaxIdleConns)
	conn.SetConnMaxLifetime(config.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	return conn, nil
}

// Driver returns the name of the underlying driver.
func (db *DB) Driver() string {
	return db.DriverName()
}
