package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/idevgames/internal/config"
	"github.com/sakif/idevgames/internal/github"
	"github.com/sakif/idevgames/internal/metrics"
	sqliteRepo "github.com/sakif/idevgames/internal/repository/sqlite"
	"github.com/sakif/idevgames/internal/service"
)

type storeBackend struct {
	db    *sqliteRepo.DB
	perms *service.PermissionService
}

func (b *storeBackend) Migrate(ctx context.Context) error { return b.db.Migrate(ctx) }
func (b *storeBackend) Permissions() PermissionAdmin      { return b.perms }
func (b *storeBackend) Close() error                      { return b.db.Close() }

// SQLiteOpener opens the configured database and wires the permission
// service to it. Profile lookups by login go to the configured GitHub API.
func SQLiteOpener(cfg config.Config, logger *slog.Logger) Opener {
	return func(_ context.Context) (Backend, error) {
		if dir := filepath.Dir(cfg.DBPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}

		db, err := sqliteRepo.New(cfg.DBPath,
			sqliteRepo.WithMaxOpenConns(cfg.DBMaxOpenConns),
			sqliteRepo.WithOpTimeout(cfg.StoreTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}

		gh := github.NewClient(github.Config{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			CallbackURL:  cfg.GitHub.CallbackURL,
			WebURL:       cfg.GitHub.WebURL,
			APIURL:       cfg.GitHub.APIURL,
			Timeout:      cfg.GitHub.Timeout,
		}, logger, metrics.New())

		return &storeBackend{
			db:    db,
			perms: service.NewPermissionService(db, gh, logger),
		}, nil
	}
}
