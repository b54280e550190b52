package commands

import (
	"database/sql"

	"github.com/modelry/modelry/config"
	"github.com/modelry/modelry/db"
	"github.com/modelry/modelry/errors"
	"github.com/modelry/modelry/logger"
)

// openDatabase opens and migrates the repository database. An empty dbPath
// falls back to the configured database.path.
func openDatabase(dbPath string) (*sql.DB, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to load configuration")
	}

	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dbPath = "modelry.db"
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, cfg, nil
}
