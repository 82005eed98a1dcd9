package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/spotkit/internal/repositories"
	"github.com/desertthunder/spotkit/internal/shared"
)

// Setup writes config.toml from the template when missing and prepares the configured credential store.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	if _, err := os.Stat(r.configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Info("config file not found, creating from template", "path", r.configPath)
		if err := shared.CreateConfigFile(r.configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}

		config, err := shared.LoadConfig(r.configPath)
		if err != nil {
			return fmt.Errorf("failed to load created config: %w", err)
		}
		if err := shared.LoadEnv(config); err != nil {
			r.logger.Warn("failed to load .env", "err", err)
		}
		r.config = config
		r.writePlain("%s\n", r.palette.OK("Created "+r.configPath))
	}

	switch r.config.Storage.Backend {
	case shared.StorageSQLite:
		path := r.config.Storage.Path
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}

		r.logger.Info("initializing database", "path", path)
		db, err := shared.NewDatabase(path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()

		applied, err := shared.RunMigrations(db)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		r.logger.Info("migrations applied", "count", applied)
		r.writePlain("%s\n", r.palette.OK(fmt.Sprintf("Database ready at %s (%d migrations applied)", path, applied)))

	case shared.StorageRedis:
		_, closer, err := repositories.NewStore(ctx, r.config, r.config.Credentials.Spotify.Flow)
		if err != nil {
			return err
		}
		defer closer.Close()
		r.writePlain("%s\n", r.palette.OK("Redis reachable at "+r.config.Storage.RedisAddr))

	default:
		r.writePlain("%s\n", r.palette.Warn("No credential storage configured; logins last for one command"))
	}

	if r.config.Credentials.Spotify.ClientID == "" {
		r.writePlainln("Next steps:")
		r.writePlain("1. Create an app at https://developer.spotify.com/dashboard\n")
		r.writePlain("2. Set credentials.spotify.client_id in %s (or SPOTIFY_CLIENT_ID)\n", r.configPath)
		r.writePlain("3. Run 'spotkit auth login'\n")
	}
	return nil
}
