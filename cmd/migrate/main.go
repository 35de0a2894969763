package main

import (
	"errors"
	"flag"
	"os"

	migrate "github.com/golang-migrate/migrate/v4"

	"github.com/noah-isme/storefront-pricing/internal/config"
	"github.com/noah-isme/storefront-pricing/internal/obs"
	"github.com/noah-isme/storefront-pricing/internal/repo"
)

func main() {
	steps := flag.Int("down", 0, "roll back this many migrations instead of migrating up")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger("storefront-migrate", cfg.LogFormat, cfg.LogLevel)

	m, err := repo.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("init migrator")
	}
	defer m.Close()

	if *steps > 0 {
		if err := m.Steps(-*steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Error().Err(err).Int("steps", *steps).Msg("roll back migrations")
			os.Exit(1)
		}
	} else if err := repo.RunMigrations(m); err != nil {
		logger.Error().Err(err).Msg("apply migrations")
		os.Exit(1)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Error().Err(err).Msg("read schema version")
		os.Exit(1)
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema up to date")
}
