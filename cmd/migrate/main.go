package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/flexprice/ebilling/internal/config"
	"github.com/flexprice/ebilling/internal/logger"
	"github.com/flexprice/ebilling/internal/postgres"
	"github.com/flexprice/ebilling/migrations"
	"github.com/samber/lo"
)

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    VARCHAR(255) PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

func main() {
	dryRun := flag.Bool("dry-run", false, "Print pending migration SQL without executing it")
	flag.Parse()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("connecting to database", "host", cfg.Postgres.Host)
	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	all, err := migrations.Load()
	if err != nil {
		logger.Fatalw("failed to load migrations", "error", err)
	}

	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		logger.Fatalw("failed to create schema_migrations", "error", err)
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		logger.Fatalw("failed to read applied migrations", "error", err)
	}

	pending := lo.Filter(all, func(m migrations.Migration, _ int) bool {
		return !lo.Contains(applied, m.Version)
	})
	if len(pending) == 0 {
		logger.Info("schema is up to date")
		return
	}

	if *dryRun {
		logger.Infow("dry run mode, printing pending migrations", "count", len(pending))
		for _, m := range pending {
			fmt.Printf("-- %s\n%s\n", m.Version, m.SQL)
		}
		return
	}

	for _, m := range pending {
		err := db.WithTx(ctx, func(ctx context.Context) error {
			q := db.GetQuerier(ctx)
			if _, err := q.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := q.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			logger.Fatalw("migration failed", "version", m.Version, "error", err)
		}
		logger.Infow("applied migration", "version", m.Version)
	}

	fmt.Println("Migration process completed")
}
