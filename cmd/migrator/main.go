package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"shopauth/internal/config"
	"shopauth/internal/lib/sl"
	"shopauth/internal/storage/migrator"
	"shopauth/internal/storage/mongodb"
	"shopauth/migrations"
)

func main() {
	var configPath, migrationsTable string
	flag.StringVar(&configPath, "config", "", "path to config file (or use CONFIG_PATH env)")
	flag.StringVar(&migrationsTable, "migrations-table", migrator.DefaultTable, "name of the migrations table")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}

	if configPath == "" {
		configPath = os.Getenv("CONFIG_PATH")
	}
	if configPath == "" {
		panic("config path is empty")
	}

	cfg := config.MustLoadPath(configPath)
	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).
		With(slog.String("storage", cfg.Storage.Driver))

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		migrate(log, migrations.SQLiteDir, migrator.SQLiteURL(cfg.Storage.Path, migrationsTable))
	case config.DriverPostgres:
		migrate(log, migrations.PostgresDir, migrator.PostgresURL(cfg.Storage.PostgresDSN, migrationsTable))
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// New creates the unique indexes on connect.
		storage, err := mongodb.New(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
		if err != nil {
			log.Error("failed to prepare mongodb", sl.Err(err))
			os.Exit(1)
		}
		defer storage.Close(ctx)

		log.Info("indexes ensured", slog.String("database", cfg.Storage.Mongo.Database))
	}
}

func migrate(log *slog.Logger, dir, databaseURL string) {
	applied, err := migrator.Up(dir, databaseURL)
	if err != nil {
		log.Error("failed to apply migrations", sl.Err(err))
		os.Exit(1)
	}

	if !applied {
		log.Info("no migrations to apply")
		return
	}

	log.Info("migrations applied")
}
