package main

import (
	"context"
	"flag"

	"github.com/grachmannico95/residue-market-be/internal/config"
	"github.com/grachmannico95/residue-market-be/internal/fixtures"
	"github.com/grachmannico95/residue-market-be/internal/service"
	"github.com/grachmannico95/residue-market-be/internal/storage"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
)

func main() {
	path := flag.String("file", "fixtures/listings.yaml", "YAML file with panchayats and their listings")
	flag.Parse()

	cfg := config.Load()

	log := logger.New(cfg.Logging.Level)
	defer log.Sync()

	ctx := context.Background()

	if cfg.Storage.Driver != config.StorageDriverSQLite {
		log.Fatal(ctx, "Seeding needs a persistent store",
			"driver", cfg.Storage.Driver,
		)
	}

	store, err := storage.NewSQLiteStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal(ctx, "Failed to open database",
			"path", cfg.Storage.Path,
			"error", err,
		)
	}
	defer store.Close()

	file, err := fixtures.Load(*path)
	if err != nil {
		log.Fatal(ctx, "Failed to load fixtures",
			"file", *path,
			"error", err,
		)
	}

	listings := service.NewListingService(store, cfg.Settlement.QuantityScale, log)
	ids, err := fixtures.Apply(ctx, listings, file)
	if err != nil {
		log.Fatal(ctx, "Failed to seed listings",
			"created", len(ids),
			"error", err,
		)
	}

	log.Info(ctx, "Seed completed",
		"file", *path,
		"database", cfg.Storage.Path,
		"listings", len(ids),
	)
}
