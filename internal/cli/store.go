package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/feedline/feedline/internal/db"
)

// openStore opens the configured database and applies migrations.
func openStore(ctx context.Context) (*db.DB, error) {
	if err := os.MkdirAll(cfg.Global.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	database, err := db.Open(cfg.Database.Path, cfg.Database.BusyTimeout)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateUp(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// viewerID resolves the acting user, preferring the config over $USER.
func viewerID() string {
	if cfg.Global.Viewer != "" {
		return cfg.Global.Viewer
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "me"
}
