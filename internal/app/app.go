// Package app wires configuration, logging and storage for the commands.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/isdelr/blog-be/internal/assets"
	"github.com/isdelr/blog-be/internal/config"
	"github.com/isdelr/blog-be/internal/database"
	"github.com/isdelr/blog-be/internal/logger"
)

// Open loads the configuration, initialises the global logger and opens
// the migrated database. The caller closes the database.
func Open(ctx context.Context, configFile string) (*config.Config, *database.DB, error) {
	v, err := config.NewViper(configFile)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Info().Str("dialect", db.Dialect.String()).Msg("Database ready")
	return cfg, db, nil
}

// NewAssetStore picks Cloudinary when it is configured and the local disk
// otherwise.
func NewAssetStore(cfg *config.Config) (assets.Store, error) {
	if cfg.UseCloudinary() {
		log.Info().Str("cloud", cfg.CloudinaryCloudName).Msg("Using Cloudinary asset store")
		return assets.NewCloudinaryStore(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
	}
	log.Info().Str("dir", cfg.UploadDir).Msg("Using local asset store")
	return assets.NewLocalStore(cfg.UploadDir, cfg.PublicURL)
}
