package cli

import (
	"context"

	"github.com/anstrom/newhosts/internal/config"
	"github.com/anstrom/newhosts/internal/db"
	"github.com/anstrom/newhosts/internal/logging"
)

// DatabaseOperation represents a function that operates on a database connection.
type DatabaseOperation func(*db.DB) error

// withDatabase executes the given operation with a database connection.
// It handles all database setup and cleanup, returning any errors that occur.
func withDatabase(ctx context.Context, cfg *config.Config, operation DatabaseOperation) error {
	database, err := db.Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}

	// Ensure database is closed
	defer func() {
		if closeErr := database.Close(); closeErr != nil {
			logging.Warn("Failed to close database connection", "error", closeErr)
		}
	}()

	return operation(database)
}

// prepareSchema creates the tables of a new store, recreates them when
// reset is requested and otherwise checks that the existing schema is
// usable.
func prepareSchema(ctx context.Context, database *db.DB, reset bool) error {
	empty, err := database.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if empty || reset {
		logging.InfoDatabase("Creating detection schema", "reset", reset, "driver", database.Driver())
		return database.CreateSchema(ctx, true)
	}
	return database.CreateSchema(ctx, false)
}
