package main

import (
	"context"
	"fmt"

	_ "github.com/nerrad567/gray-logic-relay/migrations"

	"github.com/nerrad567/gray-logic-relay/internal/api"
	"github.com/nerrad567/gray-logic-relay/internal/command"
	"github.com/nerrad567/gray-logic-relay/internal/device"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/mailbox"
	"github.com/nerrad567/gray-logic-relay/internal/store/mongostore"
)

// backend is the repository set for the configured driver.
type backend struct {
	devices   device.Repository
	commands  command.Repository
	responses mailbox.Repository

	health api.HealthChecker
	pool   api.PoolStatser // nil for mongodb
	close  func() error
}

// openBackend connects to the configured store. SQLite databases are
// migrated before use; MongoDB indexes are ensured on connect.
func openBackend(ctx context.Context, cfg *config.Config, log *logging.Logger) (*backend, error) {
	switch cfg.Database.Driver {
	case config.DriverMongoDB:
		st, err := mongostore.Connect(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, fmt.Errorf("opening mongodb store: %w", err)
		}
		log.Info("mongodb connected", "database", cfg.Database.Mongo.Database)
		return &backend{
			devices:   st.Devices(),
			commands:  st.Commands(),
			responses: st.Responses(),
			health:    st,
			close:     st.Close,
		}, nil

	default:
		db, err := openSQLite(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &backend{
			devices:   device.NewSQLiteRepository(db.DB),
			commands:  command.NewSQLiteRepository(db.DB),
			responses: mailbox.NewSQLiteRepository(db.DB),
			health:    db,
			pool:      db,
			close:     db.Close,
		}, nil
	}
}

// openSQLite opens the database file and applies pending migrations.
func openSQLite(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}
