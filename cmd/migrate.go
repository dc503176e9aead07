package cmd

import (
	"fmt"
	"log/slog"

	"github.com/isabella-tue/retrofit/db"
	"github.com/isabella-tue/retrofit/internal/config"
)

// runMigrate applies pending database migrations and exits.
// serve and index also migrate on startup; this command exists for
// deploy pipelines that migrate before rolling the service.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.DatabaseURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("migrations applied",
		"host", cfg.PostgresHost,
		"database", cfg.PostgresDBName)
	return nil
}
