package db

import (
	"context"
	"net/netip"

	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/logging"
	"github.com/anstrom/newhosts/internal/metrics"
)

const (
	insertDetection = `INSERT INTO detections (timestamp, ip, mac, hostname) VALUES (?, ?, ?, ?)`
	selectSnapshot  = `SELECT timestamp, ip, mac, hostname FROM detections WHERE timestamp = ? ORDER BY ip`
	selectHistory   = `SELECT timestamp, COUNT(*) AS hosts, COUNT(mac) AS with_mac
		FROM detections GROUP BY timestamp ORDER BY timestamp DESC`
)

// AddDetection appends a single detection stamped with the current time.
func (db *DB) AddDetection(ctx context.Context, ip netip.Addr, mac *string, hostname string) (int64, error) {
	return db.AddDetections(ctx, []Detection{{IP: IPAddr{ip}, MAC: mac, Hostname: hostname}})
}

// AddDetections appends the detections of one scan cycle in a single
// transaction. Every row gets the same timestamp, which is returned. Either
// all rows are written or none.
func (db *DB) AddDetections(ctx context.Context, detections []Detection) (ts int64, err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("add_detections", err) }()

	ts = db.now().Unix()
	if len(detections) == 0 {
		return ts, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, sanitizeDBError("add_detections", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertDetection))
	if err != nil {
		return 0, sanitizeDBError("add_detections", err)
	}
	defer stmt.Close()

	for i := range detections {
		d := &detections[i]
		if !d.IP.IsValid() {
			err = errors.NewDatabaseError(errors.CodeValidation, "Detection has no address")
			return 0, err
		}
		d.Timestamp = ts
		if _, err = stmt.ExecContext(ctx, d.Timestamp, d.IP, d.MAC, d.Hostname); err != nil {
			err = sanitizeDBError("add_detections", err)
			logging.ErrorDatabase("Failed to append detection", err, "ip", d.IP.String(), "timestamp", ts)
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, sanitizeDBError("add_detections", err)
	}
	return ts, nil
}

// GetDetections returns the detections recorded at exactly timestamp. The
// snapshot is empty, not nil, when nothing was recorded then.
func (db *DB) GetDetections(ctx context.Context, timestamp int64) (snapshot Snapshot, err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("get_detections", err) }()

	var rows []Detection
	if err = db.SelectContext(ctx, &rows, db.Rebind(selectSnapshot), timestamp); err != nil {
		return nil, sanitizeDBError("get_detections", err)
	}

	snapshot = make(Snapshot, len(rows))
	for _, row := range rows {
		snapshot[row.IP.Addr] = row
	}
	return snapshot, nil
}

// ListTimestamps returns one entry per recorded scan cycle, newest first.
// A limit of zero or less returns every cycle.
func (db *DB) ListTimestamps(ctx context.Context, limit int) (entries []HistoryEntry, err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("list_timestamps", err) }()

	query := selectHistory
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	if err = db.SelectContext(ctx, &entries, db.Rebind(query), args...); err != nil {
		return nil, sanitizeDBError("list_timestamps", err)
	}
	return entries, nil
}
