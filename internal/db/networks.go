package db

import (
	"context"
	stderrors "errors"

	"github.com/anstrom/newhosts/internal/errors"
	"github.com/anstrom/newhosts/internal/metrics"
)

const (
	selectNetworks = `SELECT name, ip_starting, ip_ending FROM networks ORDER BY name`
	selectNetwork  = `SELECT name, ip_starting, ip_ending FROM networks WHERE name = ?`
	upsertNetwork  = `INSERT INTO networks (name, ip_starting, ip_ending) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET ip_starting = excluded.ip_starting, ip_ending = excluded.ip_ending`
	deleteNetwork = `DELETE FROM networks WHERE name = ?`
)

// ListNetworks returns all saved networks ordered by name.
func (db *DB) ListNetworks(ctx context.Context) (networks []Network, err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("list_networks", err) }()

	if err = db.SelectContext(ctx, &networks, selectNetworks); err != nil {
		return nil, sanitizeDBError("list_networks", err)
	}
	return networks, nil
}

// GetNetwork returns the saved network with the given name. A missing
// network yields a DatabaseError with CodeNotFound.
func (db *DB) GetNetwork(ctx context.Context, name string) (network *Network, err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("get_network", err) }()

	var n Network
	if err = db.GetContext(ctx, &n, db.Rebind(selectNetwork), name); err != nil {
		return nil, sanitizeDBError("get_network", err)
	}
	return &n, nil
}

// SaveNetwork creates or replaces a saved network.
func (db *DB) SaveNetwork(ctx context.Context, network Network) (err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("save_network", err) }()

	if network.Name == "" || !network.Start.IsValid() || !network.End.IsValid() {
		err = errors.NewDatabaseError(errors.CodeValidation, "Network name, start and end are required")
		return err
	}

	_, err = db.ExecContext(ctx, db.Rebind(upsertNetwork), network.Name, network.Start, network.End)
	if err != nil {
		return sanitizeDBError("save_network", err)
	}
	return nil
}

// DeleteNetwork removes a saved network. Deleting an unknown name yields a
// DatabaseError with CodeNotFound.
func (db *DB) DeleteNetwork(ctx context.Context, name string) (err error) {
	timer := metrics.NewTimer()
	defer func() { timer.ObserveDatabase("delete_network", err) }()

	result, err := db.ExecContext(ctx, db.Rebind(deleteNetwork), name)
	if err != nil {
		return sanitizeDBError("delete_network", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return sanitizeDBError("delete_network", err)
	}
	if rows == 0 {
		err = errors.NewDatabaseError(errors.CodeNotFound, "Network not found")
		return err
	}
	return nil
}

// IsNotFound reports whether err is a store lookup miss.
func IsNotFound(err error) bool {
	var dbErr *errors.DatabaseError
	return stderrors.As(err, &dbErr) && dbErr.Code == errors.CodeNotFound
}
