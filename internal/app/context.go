package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bountypot/internal/access"
	"bountypot/internal/config"
	"bountypot/internal/db"
	"bountypot/internal/migrate"
	"bountypot/internal/repo"
)

// Bootstrap opens the workspace ledger, applies migrations, and loads the
// stored config. It fails if the workspace has not been initialized.
func Bootstrap(ctx context.Context, workspace string) (*sql.DB, *config.Config, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, nil, err
	}
	cfg, err := ResolveConfig(ctx, repo.Repo{DB: conn})
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, cfg, nil
}

// ResolveConfig returns the config fixed at init time. The workspace yaml
// file only matters at init; afterwards the stored copy is authoritative.
func ResolveConfig(ctx context.Context, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, access.ErrNotInitialized
	}
	return nil, fmt.Errorf("load config: %w", err)
}

// SeedConfig picks the config for a fresh workspace: the workspace yaml
// file when present, the built-in defaults otherwise.
func SeedConfig(workspace string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}
