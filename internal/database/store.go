package database

import (
	"context"
	"fmt"
	"log/slog"

	dbconfig "globalchat/pkg/database"
	"globalchat/pkg/interfaces"
)

// Open migrates the configured database and returns the matching store.
func Open(ctx context.Context, config *dbconfig.Config, log *slog.Logger) (interfaces.Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	version, err := dbconfig.RunMigrations(config)
	if err != nil {
		return nil, err
	}
	log.Info("Migrations applied", "driver", config.Driver, "version", version)

	if config.Driver == dbconfig.DriverPostgres {
		return NewPGStore(ctx, config, log)
	}

	manager, err := NewManager(config, log)
	if err != nil {
		return nil, err
	}
	if err := dbconfig.NewSchemaValidator(manager.DB()).Validate(); err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("schema check failed: %w", err)
	}
	return manager, nil
}
