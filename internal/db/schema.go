package db

import (
	"context"
	"fmt"

	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
	"github.com/anstrom/newhosts/internal/metrics"
)

// Table definitions. The timestamp column holds epoch seconds; PostgreSQL
// needs BIGINT for that, SQLite INTEGER is already 64 bit.
const (
	createDetectionsTable = `CREATE TABLE %s detections (
	timestamp %s NOT NULL,
	ip TEXT NOT NULL,
	mac TEXT NULL,
	hostname TEXT NOT NULL,
	PRIMARY KEY(timestamp, ip)
)`
	createNetworksTable = `CREATE TABLE %s networks (
	name TEXT NOT NULL PRIMARY KEY,
	ip_starting TEXT NOT NULL,
	ip_ending TEXT NOT NULL
)`

	dropDetectionsTable = `DROP TABLE IF EXISTS detections`
	dropNetworksTable   = `DROP TABLE IF EXISTS networks`

	probeDetectionsColumns = `SELECT timestamp, ip, mac, hostname FROM detections LIMIT 0`
	probeNetworksColumns   = `SELECT name, ip_starting, ip_ending FROM networks LIMIT 0`
)

func (db *DB) schemaStatements(reset bool) []string {
	timestampType := "INTEGER"
	if db.DriverName() == DriverPostgres {
		timestampType = "BIGINT"
	}
	existence := "IF NOT EXISTS"

	var stmts []string
	if reset {
		existence = ""
		stmts = append(stmts, dropDetectionsTable, dropNetworksTable)
	}
	return append(stmts,
		fmt.Sprintf(createDetectionsTable, existence, timestampType),
		fmt.Sprintf(createNetworksTable, existence),
	)
}

// CreateSchema creates the detections and networks tables. With reset set
// both tables are dropped first, discarding all history and saved networks.
// Without reset, existing tables are kept and checked for compatibility.
func (db *DB) CreateSchema(ctx context.Context, reset bool) (err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("create_schema", err) }()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return sanitizeDBError("create_schema", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range db.schemaStatements(reset) {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return errors.WrapDatabaseError(errors.CodeDatabaseSchema, "Failed to create schema", err).WithQuery(stmt)
		}
	}
	for _, probe := range []string{probeDetectionsColumns, probeNetworksColumns} {
		if _, err = tx.ExecContext(ctx, probe); err != nil {
			return errors.WrapDatabaseError(errors.CodeDatabaseSchema, "Existing schema is incompatible", err).WithQuery(probe)
		}
	}

	if err = tx.Commit(); err != nil {
		return sanitizeDBError("create_schema", err)
	}

	logging.InfoDatabase("Schema created", "reset", reset, "driver", db.DriverName())
	return nil
}

// IsEmpty reports whether the store holds neither of the newhosts tables.
func (db *DB) IsEmpty(ctx context.Context) (bool, error) {
	var query string
	switch db.DriverName() {
	case DriverPostgres:
		query = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name IN ('detections', 'networks')`
	default:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('detections', 'networks')`
	}

	var count int
	if err := db.GetContext(ctx, &count, query); err != nil {
		return false, sanitizeDBError("is_empty", err)
	}
	return count == 0, nil
}
